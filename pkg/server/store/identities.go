package store

import (
	"errors"

	"github.com/aegisid/aegisid/pkg/model"
)

// ErrIdentityNotFound is returned when an identity doesn't exist
var ErrIdentityNotFound = errors.New("identity not found")

// IdentityFilter narrows identity listings. Zero values match everything.
// Band filters on the band of the identity's most recent finding.
type IdentityFilter struct {
	Kind   string
	Source string
	Band   string
	Limit  int
	Offset int
}

// UpsertResult reports what an identity upsert did.
type UpsertResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// IdentityStore abstracts machine identity storage operations
type IdentityStore interface {
	// UpsertIdentities inserts or updates identities keyed by
	// (source, external_id). Existing rows keep their id.
	UpsertIdentities(identities []model.Identity) (UpsertResult, error)

	// GetIdentity retrieves an identity by its id.
	// Returns ErrIdentityNotFound if it doesn't exist.
	GetIdentity(id string) (*model.Identity, error)

	// ListIdentities returns identities matching the filter, most recently
	// updated first. A zero Limit means no limit.
	ListIdentities(filter IdentityFilter) ([]model.Identity, error)

	// CountIdentities counts identities matching the filter, ignoring
	// Limit and Offset.
	CountIdentities(filter IdentityFilter) (int64, error)

	// LatestSource returns the source tag of the most recently ingested
	// identity, or an empty string when none exist.
	LatestSource() (string, error)
}
