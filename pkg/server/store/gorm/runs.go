package gorm

import (
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// Ensure RunStore implements store.RunStore
var _ store.RunStore = (*RunStore)(nil)

// RunStore implements store.RunStore using GORM
type RunStore struct {
	db *gorm.DB
}

// NewRunStore creates a new RunStore
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRun creates a run together with its initial stage rows.
func (s *RunStore) CreateRun(run *model.ReviewRun, stages []model.StageRun) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return err
		}
		if len(stages) == 0 {
			return nil
		}
		for i := range stages {
			stages[i].RunID = run.ID
		}
		return tx.Create(&stages).Error
	})
}

// GetRun retrieves a run by id.
func (s *RunStore) GetRun(id string) (*model.ReviewRun, error) {
	var run model.ReviewRun
	err := s.db.Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunStages returns a run's stage rows in execution order, attempts
// ascending within a stage.
func (s *RunStore) GetRunStages(id string) ([]model.StageRun, error) {
	var stages []model.StageRun
	if err := s.db.Where("run_id = ?", id).Find(&stages).Error; err != nil {
		return nil, err
	}
	// Stage order lives in the enum, not in the stored string, so sort
	// here rather than in SQL.
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].Stage != stages[j].Stage {
			return stages[i].Stage < stages[j].Stage
		}
		return stages[i].Attempt < stages[j].Attempt
	})
	return stages, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(limit, offset int) ([]model.ReviewRun, error) {
	q := s.db.Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var runs []model.ReviewRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// CountRuns counts all runs.
func (s *RunStore) CountRuns() (int64, error) {
	var count int64
	if err := s.db.Model(&model.ReviewRun{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountActiveRuns counts runs that are pending or running.
func (s *RunStore) CountActiveRuns() (int64, error) {
	var count int64
	err := s.db.Model(&model.ReviewRun{}).
		Where("status IN ?", []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateRun persists every field of the run.
func (s *RunStore) UpdateRun(run *model.ReviewRun) error {
	return s.db.Save(run).Error
}

// CancelRun transitions a pending or running run to cancelled.
func (s *RunStore) CancelRun(id string) (*model.ReviewRun, error) {
	var run model.ReviewRun
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&run).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrRunNotFound
		}
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			return store.ErrRunFinished
		}

		now := time.Now()
		run.Status = model.RunStatusCancelled
		run.FinishedAt = &now
		return tx.Save(&run).Error
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CreateStage records a new stage attempt.
func (s *RunStore) CreateStage(stage *model.StageRun) error {
	return s.db.Create(stage).Error
}

// UpdateStage persists every field of the stage attempt.
func (s *RunStore) UpdateStage(stage *model.StageRun) error {
	return s.db.Save(stage).Error
}
