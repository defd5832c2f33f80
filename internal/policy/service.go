package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/store"
)

// Service is the policy store: it owns the policy namespace configuration
// (resource types, relations, derivations, condition sets and rules) and the
// runtime registry (instances, tuples, role assignments, synced users).
// Configuration writes follow a fetch-then-create-or-update contract so the
// setup procedure can run repeatedly with identical input.
type Service struct {
	store  *store.Store
	tenant string
}

func NewService(s *store.Store, tenant string) *Service {
	if tenant == "" {
		tenant = "default"
	}
	return &Service{store: s, tenant: tenant}
}

// Tenant returns the default tenant scope for runtime writes.
func (s *Service) Tenant() string {
	return s.tenant
}

// UpsertResourceType creates the definition if absent, otherwise updates all
// mutable fields in place.
func (s *Service) UpsertResourceType(ctx context.Context, def authz.ResourceType) error {
	actions, err := json.Marshal(def.Actions)
	if err != nil {
		return fmt.Errorf("encode actions for %q: %w", def.Key, err)
	}
	roles, err := json.Marshal(def.Roles)
	if err != nil {
		return fmt.Errorf("encode roles for %q: %w", def.Key, err)
	}
	var attributes any
	if len(def.Attributes) > 0 {
		b, err := json.Marshal(def.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes for %q: %w", def.Key, err)
		}
		attributes = string(b)
	}

	_, err = store.QueryRow(ctx, s.store.DB,
		"SELECT key FROM policy_resource_types WHERE key = $1", def.Key)
	if errors.Is(err, store.ErrNotFound) {
		_, err = store.Exec(ctx, s.store.DB,
			`INSERT INTO policy_resource_types (key, name, description, actions, roles, attributes)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			def.Key, def.Name, def.Description, string(actions), string(roles), attributes)
		if err != nil {
			return fmt.Errorf("create resource type %q: %w", def.Key, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch resource type %q: %w", def.Key, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`UPDATE policy_resource_types
		 SET name = $2, description = $3, actions = $4, roles = $5, attributes = $6
		 WHERE key = $1`,
		def.Key, def.Name, def.Description, string(actions), string(roles), attributes)
	if err != nil {
		return fmt.Errorf("update resource type %q: %w", def.Key, err)
	}
	return nil
}

// UpsertRelationDefinition registers a named relation between two resource
// types. At most one definition exists per (subject, relation, object) triple.
func (s *Service) UpsertRelationDefinition(ctx context.Context, def authz.RelationDefinition) error {
	_, err := store.QueryRow(ctx, s.store.DB,
		`SELECT relation FROM policy_relations
		 WHERE subject_type = $1 AND relation = $2 AND object_type = $3`,
		def.SubjectType, def.Relation, def.ObjectType)
	if errors.Is(err, store.ErrNotFound) {
		_, err = store.Exec(ctx, s.store.DB,
			`INSERT INTO policy_relations (subject_type, relation, object_type, name)
			 VALUES ($1, $2, $3, $4)`,
			def.SubjectType, def.Relation, def.ObjectType, def.Name)
		if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
			return fmt.Errorf("create relation %q (%s -> %s): %w", def.Relation, def.SubjectType, def.ObjectType, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch relation %q (%s -> %s): %w", def.Relation, def.SubjectType, def.ObjectType, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`UPDATE policy_relations SET name = $4
		 WHERE subject_type = $1 AND relation = $2 AND object_type = $3`,
		def.SubjectType, def.Relation, def.ObjectType, def.Name)
	if err != nil {
		return fmt.Errorf("update relation %q (%s -> %s): %w", def.Relation, def.SubjectType, def.ObjectType, err)
	}
	return nil
}

// UpsertRoleDerivationRule records a role propagation across a relation.
// Every field is part of the rule's identity, so a repeat run is a no-op.
func (s *Service) UpsertRoleDerivationRule(ctx context.Context, rule authz.RoleDerivationRule) error {
	_, err := store.QueryRow(ctx, s.store.DB,
		`SELECT relation FROM policy_role_derivations
		 WHERE source_type = $1 AND source_role = $2 AND relation = $3 AND object_type = $4 AND target_role = $5`,
		rule.SourceType, rule.SourceRole, rule.Relation, rule.ObjectType, rule.TargetRole)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("fetch derivation %s:%s -> %s:%s: %w", rule.SourceType, rule.SourceRole, rule.ObjectType, rule.TargetRole, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`INSERT INTO policy_role_derivations (source_type, source_role, relation, object_type, target_role)
		 VALUES ($1, $2, $3, $4, $5)`,
		rule.SourceType, rule.SourceRole, rule.Relation, rule.ObjectType, rule.TargetRole)
	if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
		return fmt.Errorf("create derivation %s:%s -> %s:%s: %w", rule.SourceType, rule.SourceRole, rule.ObjectType, rule.TargetRole, err)
	}
	return nil
}

// UpsertConditionSet creates or updates a named attribute predicate.
func (s *Service) UpsertConditionSet(ctx context.Context, cs authz.ConditionSet) error {
	var conditions any
	if cs.Conditions != nil {
		b, err := json.Marshal(cs.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions for %q: %w", cs.Key, err)
		}
		conditions = string(b)
	}

	_, err := store.QueryRow(ctx, s.store.DB,
		"SELECT key FROM policy_condition_sets WHERE key = $1", cs.Key)
	if errors.Is(err, store.ErrNotFound) {
		_, err = store.Exec(ctx, s.store.DB,
			`INSERT INTO policy_condition_sets (key, name, description, set_type, resource_type, conditions, expression)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			cs.Key, cs.Name, cs.Description, string(cs.Type), cs.ResourceType, conditions, cs.Expression)
		if err != nil {
			return fmt.Errorf("create condition set %q: %w", cs.Key, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch condition set %q: %w", cs.Key, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`UPDATE policy_condition_sets
		 SET name = $2, description = $3, set_type = $4, resource_type = $5, conditions = $6, expression = $7
		 WHERE key = $1`,
		cs.Key, cs.Name, cs.Description, string(cs.Type), cs.ResourceType, conditions, cs.Expression)
	if err != nil {
		return fmt.Errorf("update condition set %q: %w", cs.Key, err)
	}
	return nil
}

// UpsertConditionSetRule links a userset and a resourceset to a permission.
// The rule is its own identity, so a repeat run is a no-op.
func (s *Service) UpsertConditionSetRule(ctx context.Context, rule authz.ConditionSetRule) error {
	_, err := store.QueryRow(ctx, s.store.DB,
		`SELECT action FROM policy_condition_set_rules
		 WHERE user_set = $1 AND resource_set = $2 AND resource_type = $3 AND action = $4`,
		rule.UserSet, rule.ResourceSet, rule.ResourceType, rule.Action)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("fetch condition set rule %s/%s %s:%s: %w", rule.UserSet, rule.ResourceSet, rule.ResourceType, rule.Action, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`INSERT INTO policy_condition_set_rules (user_set, resource_set, resource_type, action)
		 VALUES ($1, $2, $3, $4)`,
		rule.UserSet, rule.ResourceSet, rule.ResourceType, rule.Action)
	if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
		return fmt.Errorf("create condition set rule %s/%s %s:%s: %w", rule.UserSet, rule.ResourceSet, rule.ResourceType, rule.Action, err)
	}
	return nil
}
