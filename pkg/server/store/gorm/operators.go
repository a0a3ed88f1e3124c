package gorm

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// Ensure OperatorStore implements store.OperatorStore
var _ store.OperatorStore = (*OperatorStore)(nil)

// OperatorStore implements store.OperatorStore using GORM
type OperatorStore struct {
	db *gorm.DB
}

// NewOperatorStore creates a new OperatorStore
func NewOperatorStore(db *gorm.DB) *OperatorStore {
	return &OperatorStore{db: db}
}

// CreateOperator creates an operator.
func (s *OperatorStore) CreateOperator(op *model.Operator) error {
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(op)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrOperatorExists
	}
	return nil
}

// GetOperator retrieves an operator by login.
func (s *OperatorStore) GetOperator(login string) (*model.Operator, error) {
	var op model.Operator
	err := s.db.Where("login = ?", login).First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrOperatorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// ValidateAPIKey checks an API key against the operator's stored digest.
func (s *OperatorStore) ValidateAPIKey(op *model.Operator, apiKey []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(op.APIKeyDigest), apiKey) == nil
}

// TouchLastLogin stamps the operator's last successful authentication.
func (s *OperatorStore) TouchLastLogin(login string) error {
	return s.db.Model(&model.Operator{}).
		Where("login = ?", login).
		Update("last_login_at", time.Now()).Error
}

// ListOperators returns all operators ordered by login.
func (s *OperatorStore) ListOperators() ([]model.Operator, error) {
	var operators []model.Operator
	if err := s.db.Order("login ASC").Find(&operators).Error; err != nil {
		return nil, err
	}
	return operators, nil
}
