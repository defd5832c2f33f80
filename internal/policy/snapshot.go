package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/store"
)

// The Service doubles as the engine's data snapshot: each method is one
// read against the policy tables.
var _ authz.Snapshot = (*Service)(nil)

func (s *Service) RolePermissions(ctx context.Context, resourceType, role string) ([]string, error) {
	row, err := store.QueryRow(ctx, s.store.DB,
		"SELECT roles FROM policy_resource_types WHERE key = $1", resourceType)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch resource type %q: %w", resourceType, err)
	}

	var roles []authz.Role
	if err := json.Unmarshal([]byte(rowString(row, "roles")), &roles); err != nil {
		return nil, fmt.Errorf("decode roles for %q: %w", resourceType, err)
	}
	for _, r := range roles {
		if r.Name == role {
			return r.Permissions, nil
		}
	}
	return nil, nil
}

func (s *Service) RolesAssigned(ctx context.Context, userKey string, ref authz.InstanceRef) ([]string, error) {
	rows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT role FROM policy_role_assignments
		 WHERE user_key = $1 AND resource_type = $2 AND resource_key = $3 AND tenant = $4`,
		userKey, ref.Type, ref.Key, s.tenantOf(ref))
	if err != nil {
		return nil, fmt.Errorf("fetch role assignments for %q on %s:%s: %w", userKey, ref.Type, ref.Key, err)
	}
	roles := make([]string, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, rowString(row, "role"))
	}
	return roles, nil
}

func (s *Service) TuplesForObject(ctx context.Context, ref authz.InstanceRef) ([]authz.RelationshipTuple, error) {
	rows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT subject_type, subject_key, relation, object_type, object_key, tenant FROM policy_tuples
		 WHERE object_type = $1 AND object_key = $2 AND tenant = $3`,
		ref.Type, ref.Key, s.tenantOf(ref))
	if err != nil {
		return nil, fmt.Errorf("fetch tuples for %s:%s: %w", ref.Type, ref.Key, err)
	}
	tuples := make([]authz.RelationshipTuple, 0, len(rows))
	for _, row := range rows {
		tuples = append(tuples, authz.RelationshipTuple{
			SubjectType: rowString(row, "subject_type"),
			SubjectKey:  rowString(row, "subject_key"),
			Relation:    rowString(row, "relation"),
			ObjectType:  rowString(row, "object_type"),
			ObjectKey:   rowString(row, "object_key"),
			Tenant:      rowString(row, "tenant"),
		})
	}
	return tuples, nil
}

func (s *Service) DerivationsFor(ctx context.Context, relation, subjectType, objectType string) ([]authz.RoleDerivationRule, error) {
	rows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT source_type, source_role, relation, object_type, target_role FROM policy_role_derivations
		 WHERE relation = $1 AND source_type = $2 AND object_type = $3`,
		relation, subjectType, objectType)
	if err != nil {
		return nil, fmt.Errorf("fetch derivations for %q (%s -> %s): %w", relation, subjectType, objectType, err)
	}
	rules := make([]authz.RoleDerivationRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, authz.RoleDerivationRule{
			SourceType: rowString(row, "source_type"),
			SourceRole: rowString(row, "source_role"),
			Relation:   rowString(row, "relation"),
			ObjectType: rowString(row, "object_type"),
			TargetRole: rowString(row, "target_role"),
		})
	}
	return rules, nil
}

func (s *Service) RulesForPermission(ctx context.Context, resourceType, action string) ([]authz.ConditionSetRule, error) {
	rows, err := store.QueryRows(ctx, s.store.DB,
		`SELECT user_set, resource_set, resource_type, action FROM policy_condition_set_rules
		 WHERE resource_type = $1 AND action = $2`,
		resourceType, action)
	if err != nil {
		return nil, fmt.Errorf("fetch condition set rules for %s:%s: %w", resourceType, action, err)
	}
	rules := make([]authz.ConditionSetRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, authz.ConditionSetRule{
			UserSet:      rowString(row, "user_set"),
			ResourceSet:  rowString(row, "resource_set"),
			ResourceType: rowString(row, "resource_type"),
			Action:       rowString(row, "action"),
		})
	}
	return rules, nil
}

func (s *Service) ConditionSet(ctx context.Context, key string) (*authz.ConditionSet, error) {
	row, err := store.QueryRow(ctx, s.store.DB,
		`SELECT key, name, description, set_type, resource_type, conditions, expression
		 FROM policy_condition_sets WHERE key = $1`, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch condition set %q: %w", key, err)
	}

	cs := &authz.ConditionSet{
		Key:          rowString(row, "key"),
		Name:         rowString(row, "name"),
		Description:  rowString(row, "description"),
		Type:         authz.ConditionSetType(rowString(row, "set_type")),
		ResourceType: rowString(row, "resource_type"),
		Expression:   rowString(row, "expression"),
	}
	if raw := rowString(row, "conditions"); raw != "" {
		var cond authz.Condition
		if err := json.Unmarshal([]byte(raw), &cond); err != nil {
			return nil, fmt.Errorf("decode conditions for %q: %w", key, err)
		}
		cs.Conditions = &cond
	}
	return cs, nil
}

func (s *Service) UserAttributes(ctx context.Context, userKey string) (map[string]any, error) {
	row, err := store.QueryRow(ctx, s.store.DB,
		"SELECT attributes FROM policy_users WHERE key = $1", userKey)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch user %q: %w", userKey, err)
	}
	return decodeAttributes(rowString(row, "attributes"))
}

func (s *Service) InstanceAttributes(ctx context.Context, ref authz.InstanceRef) (map[string]any, error) {
	row, err := store.QueryRow(ctx, s.store.DB,
		"SELECT attributes FROM policy_instances WHERE resource_type = $1 AND key = $2 AND tenant = $3",
		ref.Type, ref.Key, s.tenantOf(ref))
	if errors.Is(err, store.ErrNotFound) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch instance %s:%s: %w", ref.Type, ref.Key, err)
	}
	return decodeAttributes(rowString(row, "attributes"))
}

func decodeAttributes(raw string) (map[string]any, error) {
	attrs := map[string]any{}
	if raw == "" {
		return attrs, nil
	}
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}

func rowString(row map[string]any, col string) string {
	if v, ok := row[col].(string); ok {
		return v
	}
	return ""
}
