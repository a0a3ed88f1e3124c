package store

// MigrationState describes the schema_migrations row golang-migrate keeps.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// HealthStore provides health check operations
type HealthStore interface {
	// CheckConnectivity verifies database connectivity
	CheckConnectivity() error

	// MigrationState reports the current schema migration version.
	MigrationState() (*MigrationState, error)
}
