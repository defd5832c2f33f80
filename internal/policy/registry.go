package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docvault-backend/internal/authz"
	"docvault-backend/internal/store"
)

// ErrConflict reports a registration that collides with an existing key in a
// way that is not a no-op retry (same key, different content).
var ErrConflict = errors.New("registry conflict")

// CreateInstance registers a policy resource instance. A duplicate
// registration with identical attributes is treated as a retry and succeeds;
// a duplicate with different attributes is a conflict.
func (s *Service) CreateInstance(ctx context.Context, ref authz.InstanceRef) error {
	if ref.Type == "" || ref.Key == "" {
		return fmt.Errorf("instance type and key are required")
	}
	tenant := s.tenantOf(ref)

	var attributes any
	if len(ref.Attributes) > 0 {
		b, err := json.Marshal(ref.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes for %s:%s: %w", ref.Type, ref.Key, err)
		}
		attributes = string(b)
	}

	_, err := store.Exec(ctx, s.store.DB,
		`INSERT INTO policy_instances (resource_type, key, tenant, attributes)
		 VALUES ($1, $2, $3, $4)`,
		ref.Type, ref.Key, tenant, attributes)
	if err == nil {
		return nil
	}
	if !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
		return fmt.Errorf("create instance %s:%s: %w", ref.Type, ref.Key, err)
	}

	existing, lookupErr := s.InstanceAttributes(ctx, ref)
	if lookupErr != nil {
		return fmt.Errorf("create instance %s:%s: %w", ref.Type, ref.Key, lookupErr)
	}
	if attributesEqual(existing, ref.Attributes) {
		return nil
	}
	return fmt.Errorf("%w: instance %s:%s already registered with different attributes", ErrConflict, ref.Type, ref.Key)
}

// CreateRelationshipTuple links a subject instance to an object instance via
// a named relation. Both endpoints must be registered and the relation must
// be defined for the type pair. A duplicate tuple is a no-op.
func (s *Service) CreateRelationshipTuple(ctx context.Context, subject authz.InstanceRef, relation string, object authz.InstanceRef) error {
	_, err := store.QueryRow(ctx, s.store.DB,
		`SELECT relation FROM policy_relations
		 WHERE subject_type = $1 AND relation = $2 AND object_type = $3`,
		subject.Type, relation, object.Type)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("relation %q is not defined for (%s, %s)", relation, subject.Type, object.Type)
	}
	if err != nil {
		return fmt.Errorf("fetch relation %q: %w", relation, err)
	}

	for _, endpoint := range []authz.InstanceRef{subject, object} {
		registered, err := s.instanceExists(ctx, endpoint)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("instance %s:%s is not registered", endpoint.Type, endpoint.Key)
		}
	}

	_, err = store.Exec(ctx, s.store.DB,
		`INSERT INTO policy_tuples (subject_type, subject_key, relation, object_type, object_key, tenant)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		subject.Type, subject.Key, relation, object.Type, object.Key, s.tenantOf(object))
	if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
		return fmt.Errorf("create tuple (%s:%s, %s, %s:%s): %w",
			subject.Type, subject.Key, relation, object.Type, object.Key, err)
	}
	return nil
}

// AssignRole grants a role to a user directly on a resource instance.
// Re-assigning an identical binding is a no-op.
func (s *Service) AssignRole(ctx context.Context, userKey, role string, ref authz.InstanceRef) error {
	registered, err := s.instanceExists(ctx, ref)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("instance %s:%s is not registered", ref.Type, ref.Key)
	}

	_, err = store.Exec(ctx, s.store.DB,
		`INSERT INTO policy_role_assignments (user_key, role, resource_type, resource_key, tenant)
		 VALUES ($1, $2, $3, $4, $5)`,
		userKey, role, ref.Type, ref.Key, s.tenantOf(ref))
	if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
		return fmt.Errorf("assign role %q to %s on %s:%s: %w", role, userKey, ref.Type, ref.Key, err)
	}
	return nil
}

// SyncUser upserts the policy-side record of an application user and the
// attribute snapshot policy rules evaluate against.
func (s *Service) SyncUser(ctx context.Context, userKey string, attributes map[string]any) error {
	b, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("encode attributes for user %q: %w", userKey, err)
	}

	_, err = store.QueryRow(ctx, s.store.DB,
		"SELECT key FROM policy_users WHERE key = $1", userKey)
	if errors.Is(err, store.ErrNotFound) {
		_, err = store.Exec(ctx, s.store.DB,
			"INSERT INTO policy_users (key, attributes) VALUES ($1, $2)", userKey, string(b))
		if err != nil && !errors.Is(s.store.MapError(err), store.ErrUniqueViolation) {
			return fmt.Errorf("create user %q: %w", userKey, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch user %q: %w", userKey, err)
	}

	_, err = store.Exec(ctx, s.store.DB,
		"UPDATE policy_users SET attributes = $2 WHERE key = $1", userKey, string(b))
	if err != nil {
		return fmt.Errorf("update user %q: %w", userKey, err)
	}
	return nil
}

func (s *Service) instanceExists(ctx context.Context, ref authz.InstanceRef) (bool, error) {
	_, err := store.QueryRow(ctx, s.store.DB,
		"SELECT key FROM policy_instances WHERE resource_type = $1 AND key = $2 AND tenant = $3",
		ref.Type, ref.Key, s.tenantOf(ref))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch instance %s:%s: %w", ref.Type, ref.Key, err)
	}
	return true, nil
}

func (s *Service) tenantOf(ref authz.InstanceRef) string {
	if ref.Tenant != "" {
		return ref.Tenant
	}
	return s.tenant
}

func attributesEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || fmt.Sprintf("%v", av) != fmt.Sprintf("%v", bv) {
			return false
		}
	}
	return true
}
