package store

// Dialect abstracts database-specific DDL and error mapping.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// SystemTablesSQL returns the DDL for the application and policy tables.
	SystemTablesSQL() string

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error
}

// NewDialect returns the dialect for the given driver name.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return &SQLiteDialect{}
	}
	return &PostgresDialect{}
}
