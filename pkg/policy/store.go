package policy

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/model"
)

// ErrVersionNotFound is returned when no policy version matches a lookup.
var ErrVersionNotFound = errors.New("policy version not found")

// Store abstracts policy version storage so versioning logic can be tested
// against a mock backend.
type Store interface {
	// Transaction wraps operations in a database transaction. The provided
	// function receives a transactional Store; returning an error rolls the
	// transaction back.
	Transaction(fn func(Store) error) error

	// CurrentVersion retrieves the most recently loaded policy version.
	CurrentVersion() (*model.PolicyVersion, error)

	// FindVersionBySHA256 retrieves the version with the given document
	// digest.
	FindVersionBySHA256(sha string) (*model.PolicyVersion, error)

	// CreateVersion creates a policy version record and populates its
	// auto-generated fields.
	CreateVersion(pv *model.PolicyVersion) error

	// GetVersion retrieves a specific policy version.
	GetVersion(version int) (*model.PolicyVersion, error)

	// ListVersions returns versions newest first, all of them when limit
	// is 0.
	ListVersions(limit int) ([]model.PolicyVersion, error)
}

// SaveVersion records a parsed policy as a new version, deduplicating by
// SHA-256: saving an unchanged document returns the existing version and
// created=false.
func SaveVersion(store Store, p *Policy, loadedBy string) (*model.PolicyVersion, bool, error) {
	if p.SHA256() == "" {
		return nil, false, errors.New("policy has no source document")
	}

	var (
		pv      *model.PolicyVersion
		created bool
	)
	err := store.Transaction(func(tx Store) error {
		existing, err := tx.FindVersionBySHA256(p.SHA256())
		switch {
		case err == nil:
			pv = existing
			return nil
		case !errors.Is(err, ErrVersionNotFound):
			return err
		}

		pv = &model.PolicyVersion{
			SHA256:     p.SHA256(),
			SourcePath: p.SourcePath(),
			Raw:        string(p.Raw()),
			LoadedBy:   loadedBy,
		}
		created = true
		return tx.CreateVersion(pv)
	})
	if err != nil {
		return nil, false, err
	}
	return pv, created, nil
}

// LoadCurrent parses the most recently loaded policy version from the
// store.
func LoadCurrent(store Store) (*Policy, *model.PolicyVersion, error) {
	pv, err := store.CurrentVersion()
	if err != nil {
		return nil, nil, err
	}
	p, err := Parse([]byte(pv.Raw))
	if err != nil {
		return nil, nil, fmt.Errorf("stored policy version %d: %w", pv.Version, err)
	}
	p.sourcePath = pv.SourcePath
	return p, pv, nil
}

// Ensure GormStore implements Store
var _ Store = (*GormStore)(nil)

// GormStore implements Store using GORM for database operations.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Transaction wraps operations in a database transaction.
func (s *GormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// CurrentVersion retrieves the most recently loaded policy version.
func (s *GormStore) CurrentVersion() (*model.PolicyVersion, error) {
	var pv model.PolicyVersion
	err := s.db.Order("version DESC").First(&pv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current policy version: %w", err)
	}
	return &pv, nil
}

// FindVersionBySHA256 retrieves the version with the given document digest.
func (s *GormStore) FindVersionBySHA256(sha string) (*model.PolicyVersion, error) {
	var pv model.PolicyVersion
	err := s.db.Where("sha256 = ?", sha).First(&pv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find policy version: %w", err)
	}
	return &pv, nil
}

// CreateVersion creates a policy version record. The auto-incremented
// version number is populated on the passed record.
func (s *GormStore) CreateVersion(pv *model.PolicyVersion) error {
	if err := s.db.Create(pv).Error; err != nil {
		return fmt.Errorf("failed to create policy version: %w", err)
	}
	return nil
}

// GetVersion retrieves a specific policy version.
func (s *GormStore) GetVersion(version int) (*model.PolicyVersion, error) {
	var pv model.PolicyVersion
	err := s.db.Where("version = ?", version).First(&pv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy version: %w", err)
	}
	return &pv, nil
}

// ListVersions returns versions newest first.
func (s *GormStore) ListVersions(limit int) ([]model.PolicyVersion, error) {
	q := s.db.Order("version DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var versions []model.PolicyVersion
	if err := q.Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list policy versions: %w", err)
	}
	return versions, nil
}
