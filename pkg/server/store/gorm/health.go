package gorm

import (
	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/server/store"
)

// Ensure HealthStore implements store.HealthStore
var _ store.HealthStore = (*HealthStore)(nil)

// HealthStore provides health check operations using GORM
type HealthStore struct {
	db *gorm.DB
}

// NewHealthStore creates a new HealthStore
func NewHealthStore(db *gorm.DB) *HealthStore {
	return &HealthStore{db: db}
}

// CheckConnectivity verifies database connectivity
func (s *HealthStore) CheckConnectivity() error {
	return s.db.Exec("SELECT 1").Error
}

// MigrationState reports the schema version golang-migrate recorded. A zero
// version means no migrations have run.
func (s *HealthStore) MigrationState() (*store.MigrationState, error) {
	var state store.MigrationState
	err := s.db.Raw("SELECT version, dirty FROM schema_migrations LIMIT 1").Scan(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}
