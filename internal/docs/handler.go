package docs

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault-backend/internal/auth"
	"docvault-backend/internal/authz"
	"docvault-backend/internal/policy"
	"docvault-backend/internal/store"
)

// Handler implements the folder/document endpoints. Creation is a multi-step
// sequence of remote writes: the application row goes first and is the
// source of truth; any downstream policy write failure is reported as a
// creation failure so the caller can retry. The policy writes are idempotent
// on the same key, so retries never duplicate instances or assignments.
type Handler struct {
	store   *store.Store
	policy  *policy.Service
	checker authz.Checker
}

func NewHandler(s *store.Store, p *policy.Service, checker authz.Checker) *Handler {
	return &Handler{store: s, policy: p, checker: checker}
}

// CreateFolder handles POST /api/folders. The creator is granted the folder
// admin role, which derivation rules extend to documents placed inside.
func (h *Handler) CreateFolder(c *fiber.Ctx) error {
	principal := auth.GetPrincipal(c)
	if principal == nil {
		return authz.UnauthorizedError("Authentication required")
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return authz.NewAppError("INVALID_PAYLOAD", 400, "Folder name is required")
	}

	ctx := c.Context()
	folderID := uuid.New().String()

	_, err := store.Exec(ctx, h.store.DB,
		`INSERT INTO folder_documents (pk, sk, name, owner_id) VALUES ($1, $2, $3, $4)`,
		folderKeyPrefix+folderID, skFolder, body.Name, principal.Key)
	if err != nil {
		log.Printf("ERROR: insert folder %s: %v", folderID, err)
		return authz.InternalError("Error creating folder")
	}

	ref := authz.InstanceRef{Type: policy.TypeFolder, Key: folderID, Tenant: h.policy.Tenant()}
	if err := h.policy.CreateInstance(ctx, ref); err != nil {
		log.Printf("ERROR: register folder instance %s: %v", folderID, err)
		return authz.InternalError("Folder created but permission setup failed")
	}
	if err := h.policy.AssignRole(ctx, principal.Key, policy.RoleFolderAdmin, ref); err != nil {
		log.Printf("ERROR: assign admin on folder %s: %v", folderID, err)
		return authz.InternalError("Folder created but permission setup failed")
	}

	return c.Status(201).JSON(&Resource{
		Kind:    KindFolder,
		ID:      folderID,
		Name:    body.Name,
		OwnerID: principal.Key,
	})
}

// CreateDocument handles POST /api/documents. Creation is gated by an
// attribute check against a synthetic about-to-exist document carrying the
// caller's department. A document nested in a folder gets a parent tuple and
// no direct role (the creator's access derives from the folder); a
// standalone document gets a direct owner assignment.
func (h *Handler) CreateDocument(c *fiber.Ctx) error {
	principal := auth.GetPrincipal(c)
	if principal == nil {
		return authz.UnauthorizedError("Authentication required")
	}

	var body struct {
		Name     string `json:"name"`
		FolderID string `json:"folderId"`
	}
	if err := c.BodyParser(&body); err != nil || body.Name == "" {
		return authz.NewAppError("INVALID_PAYLOAD", 400, "Document name is required")
	}

	ctx := c.Context()
	attributes := map[string]any{"department": principal.Department}

	allowed, err := h.checker.Check(ctx, principal.Key, authz.ActionCreate, authz.InstanceRef{
		Type:       policy.TypeDocument,
		Tenant:     h.policy.Tenant(),
		Attributes: attributes,
	})
	if err != nil {
		log.Printf("ERROR: document create check for %s: %v", principal.Key, err)
		return authz.InternalError("Internal server error")
	}
	if !allowed {
		return authz.ForbiddenError("Permission denied")
	}

	documentID := uuid.New().String()
	pk := documentKeyPrefix + documentID
	sk := skMetadata
	if body.FolderID != "" {
		pk = folderKeyPrefix + body.FolderID
		sk = documentKeyPrefix + documentID
	}

	_, err = store.Exec(ctx, h.store.DB,
		`INSERT INTO folder_documents (pk, sk, name, department, owner_id) VALUES ($1, $2, $3, $4, $5)`,
		pk, sk, body.Name, principal.Department, principal.Key)
	if err != nil {
		log.Printf("ERROR: insert document %s: %v", documentID, err)
		return authz.InternalError("Error creating document")
	}

	docRef := authz.InstanceRef{
		Type:       policy.TypeDocument,
		Key:        documentID,
		Tenant:     h.policy.Tenant(),
		Attributes: attributes,
	}
	if err := h.policy.CreateInstance(ctx, docRef); err != nil {
		log.Printf("ERROR: register document instance %s: %v", documentID, err)
		return authz.InternalError("Document created but permission setup failed")
	}

	if body.FolderID != "" {
		folderRef := authz.InstanceRef{Type: policy.TypeFolder, Key: body.FolderID, Tenant: h.policy.Tenant()}
		if err := h.policy.CreateRelationshipTuple(ctx, folderRef, policy.RelationParent, docRef); err != nil {
			log.Printf("ERROR: link document %s to folder %s: %v", documentID, body.FolderID, err)
			return authz.InternalError("Document created but permission setup failed")
		}
	} else {
		if err := h.policy.AssignRole(ctx, principal.Key, policy.RoleDocumentOwner, docRef); err != nil {
			log.Printf("ERROR: assign owner on document %s: %v", documentID, err)
			return authz.InternalError("Document created but permission setup failed")
		}
	}

	res := &Resource{
		Kind:       KindDocument,
		ID:         documentID,
		FolderID:   body.FolderID,
		Name:       body.Name,
		Department: principal.Department,
		OwnerID:    principal.Key,
	}
	return c.Status(201).JSON(res)
}

// GetDocument handles GET /api/documents/:id behind the read gate.
func (h *Handler) GetDocument(c *fiber.Ctx) error {
	resource := GetResource(c)
	if resource == nil {
		return authz.InternalError("Internal server error")
	}
	return c.JSON(resource)
}

// DeleteDocument handles DELETE /api/documents/:id behind the delete gate.
// Policy-side instances, tuples, and assignments are not removed here;
// cleanup of the policy namespace is an explicit operational task.
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	resource := GetResource(c)
	if resource == nil {
		return authz.InternalError("Internal server error")
	}

	_, err := store.Exec(c.Context(), h.store.DB,
		"DELETE FROM folder_documents WHERE pk = $1 AND sk = $2", resource.PK, resource.SK)
	if err != nil {
		log.Printf("ERROR: delete document %s: %v", resource.ID, err)
		return authz.InternalError("Error deleting document")
	}

	return c.JSON(fiber.Map{"message": "Document deleted"})
}

// RegisterRoutes registers the folder/document routes. authMW authenticates;
// the gate authorizes routes that target an existing resource.
func RegisterRoutes(app *fiber.App, h *Handler, gate *Gate, authMW fiber.Handler) {
	folders := app.Group("/api/folders", authMW)
	folders.Post("/", h.CreateFolder)

	documents := app.Group("/api/documents", authMW)
	documents.Post("/", h.CreateDocument)
	documents.Get("/:id", gate.Require(authz.ActionRead), h.GetDocument)
	documents.Delete("/:id", gate.Require(authz.ActionDelete), h.DeleteDocument)
}
