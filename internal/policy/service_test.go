package policy

import (
	"context"
	"errors"
	"testing"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/config"
	"docvault-backend/internal/store"
)

func testService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Path:   t.TempDir(),
		Name:   "policy_test",
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return NewService(s, "default")
}

func countRows(t *testing.T, svc *Service, table string) int64 {
	t.Helper()
	row, err := store.QueryRow(context.Background(), svc.store.DB, "SELECT COUNT(*) AS n FROM "+table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	n, _ := row["n"].(int64)
	return n
}

func TestSetup_Idempotent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("first setup: %v", err)
	}
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("second setup: %v", err)
	}

	if n := countRows(t, svc, "policy_resource_types"); n != 2 {
		t.Fatalf("expected 2 resource types, got %d", n)
	}
	if n := countRows(t, svc, "policy_relations"); n != 1 {
		t.Fatalf("expected 1 relation, got %d", n)
	}
	if n := countRows(t, svc, "policy_role_derivations"); n != 2 {
		t.Fatalf("expected 2 derivations, got %d", n)
	}
	if n := countRows(t, svc, "policy_condition_sets"); n != 3 {
		t.Fatalf("expected 3 condition sets, got %d", n)
	}
	if n := countRows(t, svc, "policy_condition_set_rules"); n != 4 {
		t.Fatalf("expected 4 condition set rules, got %d", n)
	}
}

func TestUpsertResourceType_UpdatesInPlace(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	def := authz.ResourceType{
		Key:     "Report",
		Name:    "Report",
		Actions: []string{authz.ActionRead},
		Roles:   []authz.Role{{Name: "reader", Permissions: []string{authz.ActionRead}}},
	}
	if err := svc.UpsertResourceType(ctx, def); err != nil {
		t.Fatalf("create: %v", err)
	}

	def.Description = "A periodic report"
	def.Roles = []authz.Role{{Name: "reader", Permissions: []string{authz.ActionRead, authz.ActionDelete}}}
	if err := svc.UpsertResourceType(ctx, def); err != nil {
		t.Fatalf("update: %v", err)
	}

	if n := countRows(t, svc, "policy_resource_types"); n != 1 {
		t.Fatalf("expected a single definition after repeated upsert, got %d", n)
	}
	perms, err := svc.RolePermissions(ctx, "Report", "reader")
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("expected updated permissions to be visible, got %v", perms)
	}
}

func TestCreateInstance_RetryAndConflict(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	ref := authz.InstanceRef{
		Type:       "Document",
		Key:        "d1",
		Attributes: map[string]any{"department": "QA"},
	}
	if err := svc.CreateInstance(ctx, ref); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same key, same attributes: a retry, not an error
	if err := svc.CreateInstance(ctx, ref); err != nil {
		t.Fatalf("retry with identical attributes: %v", err)
	}
	if n := countRows(t, svc, "policy_instances"); n != 1 {
		t.Fatalf("retry must not duplicate the instance, got %d rows", n)
	}

	// Same key, different attributes: a conflict
	ref.Attributes = map[string]any{"department": "Engineering"}
	err := svc.CreateInstance(ctx, ref)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateRelationshipTuple_Validation(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}

	folder := authz.InstanceRef{Type: TypeFolder, Key: "f1"}
	doc := authz.InstanceRef{Type: TypeDocument, Key: "d1"}

	// Undefined relation for the type pair
	if err := svc.CreateRelationshipTuple(ctx, doc, RelationParent, folder); err == nil {
		t.Fatal("expected error for relation undefined on (Document, Folder)")
	}

	// Endpoints not registered yet
	if err := svc.CreateRelationshipTuple(ctx, folder, RelationParent, doc); err == nil {
		t.Fatal("expected error for unregistered endpoints")
	}

	if err := svc.CreateInstance(ctx, folder); err != nil {
		t.Fatalf("create folder instance: %v", err)
	}
	if err := svc.CreateInstance(ctx, doc); err != nil {
		t.Fatalf("create document instance: %v", err)
	}

	if err := svc.CreateRelationshipTuple(ctx, folder, RelationParent, doc); err != nil {
		t.Fatalf("create tuple: %v", err)
	}
	// Duplicate tuple is a no-op
	if err := svc.CreateRelationshipTuple(ctx, folder, RelationParent, doc); err != nil {
		t.Fatalf("retry tuple: %v", err)
	}
	if n := countRows(t, svc, "policy_tuples"); n != 1 {
		t.Fatalf("expected a single tuple, got %d", n)
	}
}

func TestAssignRole_Idempotent(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}

	ref := authz.InstanceRef{Type: TypeFolder, Key: "f1"}
	if err := svc.AssignRole(ctx, "alice@acme.io", RoleFolderAdmin, ref); err == nil {
		t.Fatal("expected error assigning a role on an unregistered instance")
	}

	if err := svc.CreateInstance(ctx, ref); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if err := svc.AssignRole(ctx, "alice@acme.io", RoleFolderAdmin, ref); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := svc.AssignRole(ctx, "alice@acme.io", RoleFolderAdmin, ref); err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if n := countRows(t, svc, "policy_role_assignments"); n != 1 {
		t.Fatalf("expected a single assignment, got %d", n)
	}
}

func TestSyncUser_Upserts(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if err := svc.SyncUser(ctx, "alice@acme.io", map[string]any{"department": "QA"}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := svc.SyncUser(ctx, "alice@acme.io", map[string]any{"department": "Engineering"}); err != nil {
		t.Fatalf("re-sync: %v", err)
	}

	attrs, err := svc.UserAttributes(ctx, "alice@acme.io")
	if err != nil {
		t.Fatalf("user attributes: %v", err)
	}
	if attrs["department"] != "Engineering" {
		t.Fatalf("expected updated department, got %v", attrs["department"])
	}
	if n := countRows(t, svc, "policy_users"); n != 1 {
		t.Fatalf("expected a single user row, got %d", n)
	}
}

func TestEditorRolePermissions_Pinned(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}

	// The configured editor role carries delete but not create; this pins
	// the configured behavior so a change to it is deliberate.
	perms, err := svc.RolePermissions(ctx, TypeDocument, RoleDocumentEdit)
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	want := map[string]bool{authz.ActionRead: true, authz.ActionDelete: true}
	if len(perms) != len(want) {
		t.Fatalf("expected editor permissions read+delete, got %v", perms)
	}
	for _, p := range perms {
		if !want[p] {
			t.Fatalf("unexpected editor permission %q", p)
		}
	}
}
