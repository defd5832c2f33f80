package policy

import (
	"context"
	"testing"

	"docvault-backend/internal/authz"
)

// End-to-end engine checks over the real policy tables and the configured
// folder/document namespace.

func checkAllowed(t *testing.T, engine *authz.Engine, user, action string, ref authz.InstanceRef) bool {
	t.Helper()
	allowed, err := engine.Check(context.Background(), user, action, ref)
	if err != nil {
		t.Fatalf("check %s %s on %s:%s: %v", user, action, ref.Type, ref.Key, err)
	}
	return allowed
}

func TestScenario_FolderCreationAndLink(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}
	engine := authz.NewEngine(svc)

	creator := "carol@acme.io"
	if err := svc.SyncUser(ctx, creator, map[string]any{"department": "Sales", "classification": "regular"}); err != nil {
		t.Fatalf("sync creator: %v", err)
	}

	// Creating folder F registers the instance and assigns admin to the creator
	folder := authz.InstanceRef{Type: TypeFolder, Key: "F"}
	if err := svc.CreateInstance(ctx, folder); err != nil {
		t.Fatalf("create folder instance: %v", err)
	}
	if err := svc.AssignRole(ctx, creator, RoleFolderAdmin, folder); err != nil {
		t.Fatalf("assign admin: %v", err)
	}

	// Creating document D inside F links it with a parent tuple and assigns
	// no direct role
	doc := authz.InstanceRef{Type: TypeDocument, Key: "D", Attributes: map[string]any{"department": "Sales"}}
	if err := svc.CreateInstance(ctx, doc); err != nil {
		t.Fatalf("create document instance: %v", err)
	}
	if err := svc.CreateRelationshipTuple(ctx, folder, RelationParent, doc); err != nil {
		t.Fatalf("create parent tuple: %v", err)
	}

	// The creator can delete D, via derivation rather than direct assignment
	if !checkAllowed(t, engine, creator, authz.ActionDelete, doc) {
		t.Fatal("expected folder admin to delete the nested document")
	}
	direct, err := svc.RolesAssigned(ctx, creator, doc)
	if err != nil {
		t.Fatalf("roles assigned: %v", err)
	}
	if len(direct) != 0 {
		t.Fatalf("expected no direct role on the nested document, got %v", direct)
	}

	// Another user with no grants is denied
	if checkAllowed(t, engine, "nobody@acme.io", authz.ActionRead, doc) {
		t.Fatal("expected default deny for a stranger")
	}
}

func TestScenario_StandaloneDocument(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}
	engine := authz.NewEngine(svc)

	creator := "dave@acme.io"
	doc := authz.InstanceRef{Type: TypeDocument, Key: "D2", Attributes: map[string]any{"department": "Sales"}}
	if err := svc.CreateInstance(ctx, doc); err != nil {
		t.Fatalf("create document instance: %v", err)
	}
	if err := svc.AssignRole(ctx, creator, RoleDocumentOwner, doc); err != nil {
		t.Fatalf("assign owner: %v", err)
	}

	if !checkAllowed(t, engine, creator, authz.ActionDelete, doc) {
		t.Fatal("expected the direct owner to delete the document")
	}
	tuples, err := svc.TuplesForObject(ctx, doc)
	if err != nil {
		t.Fatalf("tuples: %v", err)
	}
	if len(tuples) != 0 {
		t.Fatalf("expected no relation tuples for a standalone document, got %v", tuples)
	}
}

func TestScenario_DepartmentAttributeRule(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	if err := Setup(ctx, svc); err != nil {
		t.Fatalf("setup: %v", err)
	}
	engine := authz.NewEngine(svc)

	if err := svc.SyncUser(ctx, "eng-admin@acme.io", map[string]any{"department": "Engineering", "classification": "Admin"}); err != nil {
		t.Fatalf("sync user: %v", err)
	}
	if err := svc.SyncUser(ctx, "qa-admin@acme.io", map[string]any{"department": "QA", "classification": "Admin"}); err != nil {
		t.Fatalf("sync user: %v", err)
	}
	if err := svc.SyncUser(ctx, "eng-regular@acme.io", map[string]any{"department": "Engineering", "classification": "regular"}); err != nil {
		t.Fatalf("sync user: %v", err)
	}

	doc := authz.InstanceRef{Type: TypeDocument, Key: "D3", Attributes: map[string]any{"department": "Engineering"}}
	if err := svc.CreateInstance(ctx, doc); err != nil {
		t.Fatalf("create document instance: %v", err)
	}

	// Engineering admin reads an Engineering document with no role at all
	if !checkAllowed(t, engine, "eng-admin@acme.io", authz.ActionRead, doc) {
		t.Fatal("expected attribute grant for matching department")
	}
	// QA admin's department does not match the document's
	if checkAllowed(t, engine, "qa-admin@acme.io", authz.ActionRead, doc) {
		t.Fatal("expected deny for differing departments")
	}
	// Non-admin classification fails the userset
	if checkAllowed(t, engine, "eng-regular@acme.io", authz.ActionRead, doc) {
		t.Fatal("expected deny for regular classification")
	}
	// The configured rules cover create and read, never delete
	if checkAllowed(t, engine, "eng-admin@acme.io", authz.ActionDelete, doc) {
		t.Fatal("attribute rules must not grant delete")
	}

	// Pre-creation check against a synthetic document
	synthetic := authz.InstanceRef{Type: TypeDocument, Attributes: map[string]any{"department": "Engineering"}}
	if !checkAllowed(t, engine, "eng-admin@acme.io", authz.ActionCreate, synthetic) {
		t.Fatal("expected create grant for a synthetic same-department document")
	}
	synthetic.Attributes = map[string]any{"department": "Sales"}
	if checkAllowed(t, engine, "eng-admin@acme.io", authz.ActionCreate, synthetic) {
		t.Fatal("expected create deny for a synthetic other-department document")
	}
}
