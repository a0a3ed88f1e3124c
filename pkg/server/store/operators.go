package store

import (
	"errors"

	"github.com/aegisid/aegisid/pkg/model"
)

// ErrOperatorNotFound is returned when an operator doesn't exist
var ErrOperatorNotFound = errors.New("operator not found")

// ErrOperatorExists is returned when creating an operator whose login is
// taken
var ErrOperatorExists = errors.New("operator already exists")

// OperatorStore abstracts operator credential operations
type OperatorStore interface {
	// CreateOperator creates an operator.
	// Returns ErrOperatorExists if the login is taken.
	CreateOperator(op *model.Operator) error

	// GetOperator retrieves an operator by login.
	// Returns ErrOperatorNotFound if it doesn't exist.
	GetOperator(login string) (*model.Operator, error)

	// ValidateAPIKey checks an API key against the operator's stored
	// digest.
	ValidateAPIKey(op *model.Operator, apiKey []byte) bool

	// TouchLastLogin stamps the operator's last successful authentication.
	TouchLastLogin(login string) error

	// ListOperators returns all operators ordered by login.
	ListOperators() ([]model.Operator, error)
}
