package store

import "github.com/aegisid/aegisid/pkg/model"

// FindingStore abstracts finding storage operations
type FindingStore interface {
	// ReplaceFindings atomically replaces a run's findings, so a retried
	// decide stage never leaves partial results behind.
	ReplaceFindings(runID string, findings []model.Finding) error

	// ListFindings returns a run's findings with their identities, highest
	// risk first. An empty band returns all bands.
	ListFindings(runID string, band string) ([]model.Finding, error)
}
