package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _users (
    email           TEXT PRIMARY KEY,
    password_hash   TEXT NOT NULL,
    department      TEXT NOT NULL,
    classification  TEXT NOT NULL DEFAULT 'regular',
    created_at      TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS folder_documents (
    pk          TEXT NOT NULL,
    sk          TEXT NOT NULL,
    name        TEXT NOT NULL,
    department  TEXT,
    owner_id    TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (pk, sk)
);

CREATE INDEX IF NOT EXISTS idx_folder_documents_sk ON folder_documents (sk);

CREATE TABLE IF NOT EXISTS policy_resource_types (
    key         TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT,
    actions     TEXT NOT NULL,
    roles       TEXT NOT NULL,
    attributes  TEXT,
    updated_at  TEXT DEFAULT (datetime('now'))
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
    conditions     TEXT,
    expression     TEXT,
    updated_at     TEXT DEFAULT (datetime('now'))
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
    attributes     TEXT,
    created_at     TEXT DEFAULT (datetime('now')),
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
    attributes  TEXT NOT NULL,
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS policy_decisions (
    decided_at     TEXT NOT NULL,
    tenant         TEXT NOT NULL,
    user_key       TEXT NOT NULL,
    action         TEXT NOT NULL,
    resource_type  TEXT NOT NULL,
    resource_key   TEXT,
    allowed        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_policy_decisions_user ON policy_decisions (user_key, decided_at);
`
