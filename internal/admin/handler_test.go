package admin

import (
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

func testApp(t *testing.T) (*fiber.App, *store.Store) {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "admin_test",
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := policy.Setup(ctx, policy.NewService(s, "default")); err != nil {
		t.Fatalf("policy setup: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *authz.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(authz.ErrorResponse{Error: appErr})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	RegisterRoutes(app, NewHandler(s), passthrough)
	return app, s
}

func getJSON(t *testing.T, app *fiber.App, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestListResourceTypes(t *testing.T) {
	app, _ := testApp(t)

	status, body := getJSON(t, app, "/api/_admin/resource-types")
	if status != 200 {
		t.Fatalf("status %d", status)
	}
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected the 2 configured resource types, got %d", len(data))
	}
}

func TestGetResourceType_NotFound(t *testing.T) {
	app, _ := testApp(t)

	status, _ := getJSON(t, app, "/api/_admin/resource-types/Widget")
	if status != 404 {
		t.Fatalf("expected 404 for unknown type, got %d", status)
	}
}

func TestGetEndpoints_StoreFailureIsNot404(t *testing.T) {
	app, s := testApp(t)
	s.Close()

	status, _ := getJSON(t, app, "/api/_admin/resource-types/Folder")
	if status != 500 {
		t.Fatalf("expected 500 when the store is unavailable, got %d", status)
	}
	status, _ = getJSON(t, app, "/api/_admin/condition-sets/departmental_hierarchy")
	if status != 500 {
		t.Fatalf("expected 500 when the store is unavailable, got %d", status)
	}
}

func TestListAssignments_FilterByUser(t *testing.T) {
	app, _ := testApp(t)

	// Empty namespace lists as an empty array, not null
	status, body := getJSON(t, app, "/api/_admin/assignments?user="+"alice%40acme.io")
	if status != 200 {
		t.Fatalf("status %d", status)
	}
	data, ok := body["data"].([]any)
	if !ok {
		t.Fatalf("expected a data array, got %T", body["data"])
	}
	if len(data) != 0 {
		t.Fatalf("expected no assignments, got %d", len(data))
	}
}

func TestListDerivations(t *testing.T) {
	app, _ := testApp(t)

	status, body := getJSON(t, app, "/api/_admin/derivations")
	if status != 200 {
		t.Fatalf("status %d", status)
	}
	data, _ := body["data"].([]any)
	if len(data) != 2 {
		t.Fatalf("expected the 2 configured derivations, got %d", len(data))
	}
}
