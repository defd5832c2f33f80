package admin

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/store"
)

// Handler exposes read-only views of the policy namespace for operators:
// the configured schema, the registered instances, and the raw grant data
// the engine evaluates. All writes go through the policy service.
type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

// RegisterRoutes registers the inspection routes. The caller is expected to
// put an authentication middleware in front.
func RegisterRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	grp := app.Group("/api/_admin", authMW)

	grp.Get("/resource-types", h.ListResourceTypes)
	grp.Get("/resource-types/:key", h.GetResourceType)
	grp.Get("/relations", h.ListRelations)
	grp.Get("/derivations", h.ListDerivations)
	grp.Get("/condition-sets", h.ListConditionSets)
	grp.Get("/condition-sets/:key", h.GetConditionSet)
	grp.Get("/rules", h.ListRules)
	grp.Get("/instances", h.ListInstances)
	grp.Get("/tuples", h.ListTuples)
	grp.Get("/assignments", h.ListAssignments)
	grp.Get("/decisions", h.ListDecisions)
}

func (h *Handler) ListResourceTypes(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT key, name, description, actions, roles, attributes FROM policy_resource_types ORDER BY key")
	if err != nil {
		return fmt.Errorf("list resource types: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) GetResourceType(c *fiber.Ctx) error {
	key := c.Params("key")
	row, err := store.QueryRow(c.Context(), h.store.DB,
		"SELECT key, name, description, actions, roles, attributes FROM policy_resource_types WHERE key = $1", key)
	if errors.Is(err, store.ErrNotFound) {
		return authz.NotFoundError("Resource type not found: " + key)
	}
	if err != nil {
		return fmt.Errorf("get resource type %s: %w", key, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) ListRelations(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT subject_type, relation, object_type, name FROM policy_relations ORDER BY subject_type, relation")
	if err != nil {
		return fmt.Errorf("list relations: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) ListDerivations(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT source_type, source_role, relation, object_type, target_role
		 FROM policy_role_derivations ORDER BY source_type, source_role`)
	if err != nil {
		return fmt.Errorf("list derivations: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) ListConditionSets(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT key, name, set_type, resource_type FROM policy_condition_sets ORDER BY key")
	if err != nil {
		return fmt.Errorf("list condition sets: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) GetConditionSet(c *fiber.Ctx) error {
	key := c.Params("key")
	row, err := store.QueryRow(c.Context(), h.store.DB,
		`SELECT key, name, description, set_type, resource_type, conditions, expression
		 FROM policy_condition_sets WHERE key = $1`, key)
	if errors.Is(err, store.ErrNotFound) {
		return authz.NotFoundError("Condition set not found: " + key)
	}
	if err != nil {
		return fmt.Errorf("get condition set %s: %w", key, err)
	}
	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) ListRules(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT user_set, resource_set, resource_type, action
		 FROM policy_condition_set_rules ORDER BY resource_type, action`)
	if err != nil {
		return fmt.Errorf("list condition set rules: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) ListInstances(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT resource_type, key, tenant, attributes FROM policy_instances ORDER BY resource_type, key")
	if err != nil {
		return fmt.Errorf("list instances: %w", err)
	}
	return dataResponse(c, rows)
}

func (h *Handler) ListTuples(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT subject_type, subject_key, relation, object_type, object_key, tenant
		 FROM policy_tuples ORDER BY object_type, object_key`)
	if err != nil {
		return fmt.Errorf("list tuples: %w", err)
	}
	return dataResponse(c, rows)
}

// ListAssignments lists direct role assignments, optionally filtered with
// the user query parameter.
func (h *Handler) ListAssignments(c *fiber.Ctx) error {
	sql := `SELECT user_key, role, resource_type, resource_key, tenant
	        FROM policy_role_assignments`
	var args []any
	if user := c.Query("user"); user != "" {
		sql += " WHERE user_key = $1"
		args = append(args, user)
	}
	sql += " ORDER BY user_key, resource_type, resource_key"

	rows, err := store.QueryRows(c.Context(), h.store.DB, sql, args...)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}
	return dataResponse(c, rows)
}

// ListDecisions lists the most recent entries of the decision log.
func (h *Handler) ListDecisions(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT decided_at, tenant, user_key, action, resource_type, resource_key, allowed
		 FROM policy_decisions ORDER BY decided_at DESC LIMIT 100`)
	if err != nil {
		return fmt.Errorf("list decisions: %w", err)
	}
	return dataResponse(c, rows)
}

func dataResponse(c *fiber.Ctx, rows []map[string]any) error {
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}
