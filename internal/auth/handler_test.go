package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/config"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

func testApp(t *testing.T) (*fiber.App, *store.Store, *policy.Service) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "auth_test",
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	svc := policy.NewService(s, "default")

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *authz.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(authz.ErrorResponse{Error: appErr})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	RegisterRoutes(app, NewHandler(s, svc, "test-secret"))
	return app, s, svc
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestRegister_SyncsPolicyUser(t *testing.T) {
	app, _, svc := testApp(t)

	status, _ := postJSON(t, app, "/api/auth/register", map[string]any{
		"email":          "alice@acme.io",
		"password":       "s3cret",
		"department":     "Engineering",
		"classification": "Admin",
	})
	if status != 201 {
		t.Fatalf("register: status %d", status)
	}

	attrs, err := svc.UserAttributes(context.Background(), "alice@acme.io")
	if err != nil {
		t.Fatalf("user attributes: %v", err)
	}
	if attrs["department"] != "Engineering" || attrs["classification"] != "Admin" {
		t.Fatalf("unexpected synced attributes: %v", attrs)
	}
}

func TestLogin_RepairsFailedSync(t *testing.T) {
	app, s, svc := testApp(t)
	ctx := context.Background()

	status, _ := postJSON(t, app, "/api/auth/register", map[string]any{
		"email":          "alice@acme.io",
		"password":       "s3cret",
		"department":     "QA",
		"classification": "Admin",
	})
	if status != 201 {
		t.Fatalf("register: status %d", status)
	}

	// Simulate a registration whose policy sync never landed
	if _, err := store.Exec(ctx, s.DB,
		"DELETE FROM policy_users WHERE key = $1", "alice@acme.io"); err != nil {
		t.Fatalf("remove synced user: %v", err)
	}

	// Registering again reports the existing account and does not repair
	status, _ = postJSON(t, app, "/api/auth/register", map[string]any{
		"email":      "alice@acme.io",
		"password":   "s3cret",
		"department": "QA",
	})
	if status != 409 {
		t.Fatalf("duplicate register: status %d", status)
	}

	// Logging in re-syncs the account into the policy namespace
	status, body := postJSON(t, app, "/api/auth/login", map[string]any{
		"email":    "alice@acme.io",
		"password": "s3cret",
	})
	if status != 200 {
		t.Fatalf("login: status %d", status)
	}
	if token, _ := body["token"].(string); token == "" {
		t.Fatal("login returned no token")
	}

	attrs, err := svc.UserAttributes(ctx, "alice@acme.io")
	if err != nil {
		t.Fatalf("user attributes: %v", err)
	}
	if attrs["department"] != "QA" || attrs["classification"] != "Admin" {
		t.Fatalf("account not re-synced, attributes: %v", attrs)
	}
}
