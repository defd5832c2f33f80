// Command policysetup writes the folder/document policy namespace. It is
// safe to run repeatedly and under concurrent deployments: every step is an
// idempotent upsert.
package main

import (
	"context"
	"log"

	"docvault-backend/internal/config"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}

	svc := policy.NewService(db, cfg.Policy.DefaultTenant)
	if err := policy.Setup(ctx, svc); err != nil {
		log.Fatalf("Policy setup failed: %v", err)
	}
	log.Println("Policy setup complete")
}
