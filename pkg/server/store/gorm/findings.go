package gorm

import (
	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// Ensure FindingStore implements store.FindingStore
var _ store.FindingStore = (*FindingStore)(nil)

// FindingStore implements store.FindingStore using GORM
type FindingStore struct {
	db *gorm.DB
}

// NewFindingStore creates a new FindingStore
func NewFindingStore(db *gorm.DB) *FindingStore {
	return &FindingStore{db: db}
}

// ReplaceFindings atomically replaces a run's findings.
func (s *FindingStore) ReplaceFindings(runID string, findings []model.Finding) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", runID).Delete(&model.Finding{}).Error; err != nil {
			return err
		}
		if len(findings) == 0 {
			return nil
		}
		for i := range findings {
			findings[i].RunID = runID
		}
		return tx.Create(&findings).Error
	})
}

// ListFindings returns a run's findings with their identities, highest risk
// first.
func (s *FindingStore) ListFindings(runID string, band string) ([]model.Finding, error) {
	q := s.db.Preload("Identity").
		Where("run_id = ?", runID).
		Order("risk_score DESC, identity_id ASC")
	if band != "" {
		q = q.Where("band = ?", band)
	}

	var findings []model.Finding
	if err := q.Find(&findings).Error; err != nil {
		return nil, err
	}
	return findings, nil
}
