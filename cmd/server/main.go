package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"docvault-backend/internal/admin"
	"docvault-backend/internal/audit"
	"docvault-backend/internal/auth"
	"docvault-backend/internal/authz"
	"docvault-backend/internal/config"
	"docvault-backend/internal/docs"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s/%s)", cfg.Server.Port, cfg.Database.Driver, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Policy service and namespace setup
	policySvc := policy.NewService(db, cfg.Policy.DefaultTenant)
	if cfg.Policy.SetupOnBoot {
		if err := policy.Setup(ctx, policySvc); err != nil {
			log.Fatalf("Failed to set up policy namespace: %v", err)
		}
		log.Println("Policy namespace ready")
	}

	// 5. Permission engine over the policy data, with the decision log
	engine := authz.NewEngine(policySvc)
	var recorder audit.Recorder = audit.NoopRecorder{}
	if cfg.Audit.Enabled {
		recorder = audit.NewLog(db, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		log.Println("Decision log enabled")
	}
	defer recorder.Stop()
	checker := audit.NewRecordingChecker(engine, recorder)

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (no auth required)
	authHandler := auth.NewHandler(db, policySvc, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	// 9. Protected folder/document routes
	authMW := auth.Middleware(cfg.JWTSecret)
	gate := docs.NewGate(docs.NewResolver(db), checker, cfg.Policy.DefaultTenant)
	docsHandler := docs.NewHandler(db, policySvc, checker)
	docs.RegisterRoutes(app, docsHandler, gate, authMW)

	// 10. Policy inspection routes
	admin.RegisterRoutes(app, admin.NewHandler(db), authMW)

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *authz.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(authz.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(authz.ErrorResponse{
		Error: &authz.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
