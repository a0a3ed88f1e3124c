package gorm

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// Ensure IdentityStore implements store.IdentityStore
var _ store.IdentityStore = (*IdentityStore)(nil)

// IdentityStore implements store.IdentityStore using GORM
type IdentityStore struct {
	db *gorm.DB
}

// NewIdentityStore creates a new IdentityStore
func NewIdentityStore(db *gorm.DB) *IdentityStore {
	return &IdentityStore{db: db}
}

type identityKey struct {
	source     string
	externalID string
}

// UpsertIdentities inserts or updates identities keyed by
// (source, external_id). Existing rows keep their id.
func (s *IdentityStore) UpsertIdentities(identities []model.Identity) (store.UpsertResult, error) {
	var result store.UpsertResult
	if len(identities) == 0 {
		return result, nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := existingKeys(tx, identities)
		if err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "kind", "owner", "usage_count", "ip_restriction",
				"scopes", "last_used_at", "rotated_at", "metadata", "updated_at",
			}),
		}).Create(&identities).Error; err != nil {
			return err
		}

		for _, ident := range identities {
			if existing[identityKey{ident.Source, ident.ExternalID}] {
				result.Updated++
			} else {
				result.Created++
			}
		}
		return nil
	})
	if err != nil {
		return store.UpsertResult{}, err
	}
	return result, nil
}

func existingKeys(tx *gorm.DB, identities []model.Identity) (map[identityKey]bool, error) {
	bySource := make(map[string][]string)
	for _, ident := range identities {
		bySource[ident.Source] = append(bySource[ident.Source], ident.ExternalID)
	}

	existing := make(map[identityKey]bool)
	for source, externalIDs := range bySource {
		var found []string
		err := tx.Model(&model.Identity{}).
			Where("source = ? AND external_id IN ?", source, externalIDs).
			Pluck("external_id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, externalID := range found {
			existing[identityKey{source, externalID}] = true
		}
	}
	return existing, nil
}

// GetIdentity retrieves an identity by its id.
func (s *IdentityStore) GetIdentity(id string) (*model.Identity, error) {
	var ident model.Identity
	err := s.db.Where("id = ?", id).First(&ident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// ListIdentities returns identities matching the filter, most recently
// updated first.
func (s *IdentityStore) ListIdentities(filter store.IdentityFilter) ([]model.Identity, error) {
	q := s.filtered(filter).Order("identities.updated_at DESC, identities.external_id ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var identities []model.Identity
	if err := q.Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// CountIdentities counts identities matching the filter.
func (s *IdentityStore) CountIdentities(filter store.IdentityFilter) (int64, error) {
	var count int64
	if err := s.filtered(filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// filtered applies the filter's criteria. The band filter joins each
// identity's most recent finding.
func (s *IdentityStore) filtered(filter store.IdentityFilter) *gorm.DB {
	q := s.db.Model(&model.Identity{})
	if filter.Kind != "" {
		q = q.Where("identities.kind = ?", filter.Kind)
	}
	if filter.Source != "" {
		q = q.Where("identities.source = ?", filter.Source)
	}
	if filter.Band != "" {
		q = q.Joins(`JOIN (
			SELECT DISTINCT ON (identity_id) identity_id, band
			FROM findings
			ORDER BY identity_id, id DESC
		) latest ON latest.identity_id = identities.id`).
			Where("latest.band = ?", filter.Band)
	}
	return q
}

// LatestSource returns the source tag of the most recently ingested
// identity.
func (s *IdentityStore) LatestSource() (string, error) {
	var source string
	err := s.db.Model(&model.Identity{}).
		Order("updated_at DESC").
		Limit(1).
		Pluck("source", &source).Error
	if err != nil {
		return "", err
	}
	return source, nil
}
