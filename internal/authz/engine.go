package authz

import (
	"context"
	"fmt"
)

// Snapshot is the data-access surface the engine evaluates over. The policy
// service implements it against SQL; tests implement it in memory. Every
// method is a suspension point; the engine holds no state between calls.
type Snapshot interface {
	// RolePermissions returns the actions permitted by a role on a resource
	// type, or nil if the role is not defined.
	RolePermissions(ctx context.Context, resourceType, role string) ([]string, error)

	// RolesAssigned returns the roles the user holds directly on the instance.
	RolesAssigned(ctx context.Context, userKey string, ref InstanceRef) ([]string, error)

	// TuplesForObject returns every relationship tuple whose object is the
	// given instance.
	TuplesForObject(ctx context.Context, ref InstanceRef) ([]RelationshipTuple, error)

	// DerivationsFor returns the role-derivation rules crossing the named
	// relation between the two resource types.
	DerivationsFor(ctx context.Context, relation, subjectType, objectType string) ([]RoleDerivationRule, error)

	// RulesForPermission returns the condition-set rules granting the
	// (resource type, action) permission.
	RulesForPermission(ctx context.Context, resourceType, action string) ([]ConditionSetRule, error)

	// ConditionSet fetches a condition set by key.
	ConditionSet(ctx context.Context, key string) (*ConditionSet, error)

	// UserAttributes returns the synced attributes of a user, empty if the
	// user is unknown to the policy namespace.
	UserAttributes(ctx context.Context, userKey string) (map[string]any, error)

	// InstanceAttributes returns the registered attributes of an instance,
	// empty if the instance is unknown.
	InstanceAttributes(ctx context.Context, ref InstanceRef) (map[string]any, error)
}

// Checker is the decision surface consumed by request handlers. Engine
// implements it; wrappers can layer recording or caching on top.
type Checker interface {
	Check(ctx context.Context, userKey, action string, ref InstanceRef) (bool, error)
}

// Engine evaluates permission checks. Decisions default to deny; any one of
// the three grant paths (direct role, one-hop derived role, attribute rule)
// is sufficient to allow. No result is cached across calls.
type Engine struct {
	data Snapshot
}

var _ Checker = (*Engine)(nil)

func NewEngine(data Snapshot) *Engine {
	return &Engine{data: data}
}

// Check reports whether the user may perform the action on the referenced
// instance. Synthetic refs (no key) are evaluated against attribute rules
// only, since no assignments or tuples can exist for them yet.
func (e *Engine) Check(ctx context.Context, userKey, action string, ref InstanceRef) (bool, error) {
	if !ref.Synthetic() {
		allowed, err := e.checkDirect(ctx, userKey, action, ref)
		if err != nil {
			return false, fmt.Errorf("direct role check: %w", err)
		}
		if allowed {
			return true, nil
		}

		allowed, err = e.checkDerived(ctx, userKey, action, ref)
		if err != nil {
			return false, fmt.Errorf("derived role check: %w", err)
		}
		if allowed {
			return true, nil
		}
	}

	allowed, err := e.checkConditionRules(ctx, userKey, action, ref)
	if err != nil {
		return false, fmt.Errorf("condition rule check: %w", err)
	}
	return allowed, nil
}

// checkDirect looks for a role assignment on the exact instance whose role
// permits the action.
func (e *Engine) checkDirect(ctx context.Context, userKey, action string, ref InstanceRef) (bool, error) {
	roles, err := e.data.RolesAssigned(ctx, userKey, ref)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		permitted, err := e.rolePermits(ctx, ref.Type, role, action)
		if err != nil {
			return false, err
		}
		if permitted {
			return true, nil
		}
	}
	return false, nil
}

// checkDerived walks every tuple pointing at this instance and applies the
// derivation rules for that relation. The source role must be held directly
// on the subject instance: derivation is exactly one hop and never chains
// through another derived role.
func (e *Engine) checkDerived(ctx context.Context, userKey, action string, ref InstanceRef) (bool, error) {
	tuples, err := e.data.TuplesForObject(ctx, ref)
	if err != nil {
		return false, err
	}
	for _, tuple := range tuples {
		rules, err := e.data.DerivationsFor(ctx, tuple.Relation, tuple.SubjectType, ref.Type)
		if err != nil {
			return false, err
		}
		for _, rule := range rules {
			permitted, err := e.rolePermits(ctx, ref.Type, rule.TargetRole, action)
			if err != nil {
				return false, err
			}
			if !permitted {
				continue
			}
			subject := InstanceRef{Type: tuple.SubjectType, Key: tuple.SubjectKey, Tenant: ref.Tenant}
			held, err := e.data.RolesAssigned(ctx, userKey, subject)
			if err != nil {
				return false, err
			}
			for _, role := range held {
				if role == rule.SourceRole {
					return true, nil
				}
			}
		}
	}
	return false, nil
}

// checkConditionRules grants when the user matches a rule's userset and the
// resource matches its resourceset, with no instance-level role involved.
func (e *Engine) checkConditionRules(ctx context.Context, userKey, action string, ref InstanceRef) (bool, error) {
	rules, err := e.data.RulesForPermission(ctx, ref.Type, action)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}

	userAttrs, err := e.data.UserAttributes(ctx, userKey)
	if err != nil {
		return false, err
	}
	resourceAttrs := ref.Attributes
	if !ref.Synthetic() {
		resourceAttrs, err = e.data.InstanceAttributes(ctx, ref)
		if err != nil {
			return false, err
		}
	}

	for _, rule := range rules {
		userSet, err := e.data.ConditionSet(ctx, rule.UserSet)
		if err != nil {
			return false, err
		}
		resourceSet, err := e.data.ConditionSet(ctx, rule.ResourceSet)
		if err != nil {
			return false, err
		}
		if userSet == nil || resourceSet == nil {
			continue
		}
		if resourceSet.ResourceType != "" && resourceSet.ResourceType != ref.Type {
			continue
		}

		userMatch, err := userSet.Matches(userAttrs, resourceAttrs)
		if err != nil {
			return false, err
		}
		if !userMatch {
			continue
		}
		resourceMatch, err := resourceSet.Matches(userAttrs, resourceAttrs)
		if err != nil {
			return false, err
		}
		if resourceMatch {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) rolePermits(ctx context.Context, resourceType, role, action string) (bool, error) {
	permissions, err := e.data.RolePermissions(ctx, resourceType, role)
	if err != nil {
		return false, err
	}
	for _, p := range permissions {
		if p == action {
			return true, nil
		}
	}
	return false, nil
}
