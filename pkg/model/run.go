package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

//go:generate go run github.com/dmarkham/enumer -type RunStatus -trimprefix RunStatus -transform lower -json -sql -output run_status.gen.go
//go:generate go run github.com/dmarkham/enumer -type Stage -trimprefix Stage -transform lower -json -sql -output stage.gen.go
//go:generate go run github.com/dmarkham/enumer -type Trigger -trimprefix Trigger -transform lower -json -sql -output trigger.gen.go

// RunStatus is the lifecycle state of a run or of a single stage.
type RunStatus int

const (
	RunStatusPending RunStatus = iota
	RunStatusRunning
	RunStatusSucceeded
	RunStatusFailed
	RunStatusCancelled
	RunStatusSkipped
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled, RunStatusSkipped:
		return true
	}
	return false
}

// Stage identifies one step of the review workflow, in execution order.
type Stage int

const (
	StageParse Stage = iota
	StageScore
	StageDecide
	StageAudit
	StageReport
)

// Trigger records what started a run.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerAPI
	TriggerScheduled
	TriggerUpload
)

// ReviewRun is one execution of the review pipeline.
type ReviewRun struct {
	ID              string     `gorm:"column:id;primaryKey" json:"id"`
	Trigger         Trigger    `gorm:"column:trigger" json:"trigger"`
	Status          RunStatus  `gorm:"column:status" json:"status"`
	Scorer          string     `gorm:"column:scorer" json:"scorer"`
	Source          string     `gorm:"column:source" json:"source,omitempty"`
	PolicyVersion   *int       `gorm:"column:policy_version" json:"policy_version,omitempty"`
	BatchSize       int        `gorm:"column:batch_size" json:"batch_size"`
	Parallelism     int        `gorm:"column:parallelism" json:"parallelism"`
	TotalIdentities int        `gorm:"column:total_identities" json:"total_identities"`
	Scored          int        `gorm:"column:scored" json:"scored"`
	Approved        int        `gorm:"column:approved" json:"approved"`
	Flagged         int        `gorm:"column:flagged" json:"flagged"`
	Rotations       int        `gorm:"column:rotations" json:"rotations"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Error           string     `gorm:"column:error" json:"error,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ReviewRun) TableName() string {
	return "review_runs"
}

func (r *ReviewRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Duration returns the wall-clock run time, or zero while pending.
func (r *ReviewRun) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(*r.StartedAt)
}

// StageRun is the state of one stage attempt within a run.
type StageRun struct {
	ID         uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID      string     `gorm:"column:run_id" json:"run_id"`
	Stage      Stage      `gorm:"column:stage" json:"stage"`
	Status     RunStatus  `gorm:"column:status" json:"status"`
	Attempt    int        `gorm:"column:attempt" json:"attempt"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Error      string     `gorm:"column:error" json:"error,omitempty"`
}

func (StageRun) TableName() string {
	return "stage_runs"
}

// WorkflowStages is the canonical stage order of the review workflow.
func WorkflowStages() []Stage {
	return []Stage{StageParse, StageScore, StageDecide, StageAudit, StageReport}
}
