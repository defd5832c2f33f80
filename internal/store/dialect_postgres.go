package store

import (
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via the pgx stdlib driver.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) SystemTablesSQL() string {
	return postgresSystemTablesSQL
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const postgresSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _users (
    email           TEXT PRIMARY KEY,
    password_hash   TEXT NOT NULL,
    department      TEXT NOT NULL,
    classification  TEXT NOT NULL DEFAULT 'regular',
    created_at      TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS folder_documents (
    pk          TEXT NOT NULL,
    sk          TEXT NOT NULL,
    name        TEXT NOT NULL,
    department  TEXT,
    owner_id    TEXT NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (pk, sk)
);

CREATE INDEX IF NOT EXISTS idx_folder_documents_sk ON folder_documents (sk);

CREATE TABLE IF NOT EXISTS policy_resource_types (
    key         TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT,
    actions     JSONB NOT NULL,
    roles       JSONB NOT NULL,
    attributes  JSONB,
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS policy_relations (
    subject_type  TEXT NOT NULL,
    relation      TEXT NOT NULL,
    object_type   TEXT NOT NULL,
    name          TEXT,
    PRIMARY KEY (subject_type, relation, object_type)
);

CREATE TABLE IF NOT EXISTS policy_role_derivations (
    source_type  TEXT NOT NULL,
    source_role  TEXT NOT NULL,
    relation     TEXT NOT NULL,
    object_type  TEXT NOT NULL,
    target_role  TEXT NOT NULL,
    PRIMARY KEY (source_type, source_role, relation, object_type, target_role)
);

CREATE TABLE IF NOT EXISTS policy_condition_sets (
    key            TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    description    TEXT,
    set_type       TEXT NOT NULL,
    resource_type  TEXT,
    conditions     JSONB,
    expression     TEXT,
    updated_at     TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS policy_condition_set_rules (
    user_set       TEXT NOT NULL,
    resource_set   TEXT NOT NULL,
    resource_type  TEXT NOT NULL,
    action         TEXT NOT NULL,
    PRIMARY KEY (user_set, resource_set, resource_type, action)
);

CREATE TABLE IF NOT EXISTS policy_instances (
    resource_type  TEXT NOT NULL,
    key            TEXT NOT NULL,
    tenant         TEXT NOT NULL,
    attributes     JSONB,
    created_at     TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (resource_type, key, tenant)
);

CREATE TABLE IF NOT EXISTS policy_tuples (
    subject_type  TEXT NOT NULL,
    subject_key   TEXT NOT NULL,
    relation      TEXT NOT NULL,
    object_type   TEXT NOT NULL,
    object_key    TEXT NOT NULL,
    tenant        TEXT NOT NULL,
    PRIMARY KEY (subject_type, subject_key, relation, object_type, object_key, tenant)
);

CREATE INDEX IF NOT EXISTS idx_policy_tuples_object ON policy_tuples (object_type, object_key, tenant);

CREATE TABLE IF NOT EXISTS policy_role_assignments (
    user_key       TEXT NOT NULL,
    role           TEXT NOT NULL,
    resource_type  TEXT NOT NULL,
    resource_key   TEXT NOT NULL,
    tenant         TEXT NOT NULL,
    PRIMARY KEY (user_key, role, resource_type, resource_key, tenant)
);

CREATE TABLE IF NOT EXISTS policy_users (
    key         TEXT PRIMARY KEY,
    attributes  JSONB NOT NULL,
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS policy_decisions (
    decided_at     TIMESTAMPTZ NOT NULL,
    tenant         TEXT NOT NULL,
    user_key       TEXT NOT NULL,
    action         TEXT NOT NULL,
    resource_type  TEXT NOT NULL,
    resource_key   TEXT,
    allowed        BOOLEAN NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_decisions_user ON policy_decisions (user_key, decided_at);
`
