package store

import (
	"errors"

	"github.com/aegisid/aegisid/pkg/model"
)

// ErrRunNotFound is returned when a review run doesn't exist
var ErrRunNotFound = errors.New("review run not found")

// ErrRunFinished is returned when cancelling a run that already reached a
// terminal state
var ErrRunFinished = errors.New("review run already finished")

// RunStore abstracts review run and stage lifecycle operations
type RunStore interface {
	// CreateRun creates a run together with its initial stage rows in one
	// transaction.
	CreateRun(run *model.ReviewRun, stages []model.StageRun) error

	// GetRun retrieves a run by id.
	// Returns ErrRunNotFound if it doesn't exist.
	GetRun(id string) (*model.ReviewRun, error)

	// GetRunStages returns a run's stage rows in execution order, attempts
	// ascending within a stage.
	GetRunStages(id string) ([]model.StageRun, error)

	// ListRuns returns runs newest first.
	ListRuns(limit, offset int) ([]model.ReviewRun, error)

	// CountRuns counts all runs.
	CountRuns() (int64, error)

	// CountActiveRuns counts runs that are pending or running.
	CountActiveRuns() (int64, error)

	// UpdateRun persists every field of the run.
	UpdateRun(run *model.ReviewRun) error

	// CancelRun transitions a pending or running run to cancelled and
	// returns the updated run. Returns ErrRunFinished when the run already
	// reached a terminal state.
	CancelRun(id string) (*model.ReviewRun, error)

	// CreateStage records a new stage attempt.
	CreateStage(stage *model.StageRun) error

	// UpdateStage persists every field of the stage attempt.
	UpdateStage(stage *model.StageRun) error
}
