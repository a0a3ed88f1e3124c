package review

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
)

// WorkflowVersion is the version of the workflow document format.
const WorkflowVersion = 1

// Workflow is the exportable description of the review pipeline: the
// stage sequence plus the policy knobs a run is shaped by. A checked-in
// workflow document can be validated against the pipeline built into the
// binary to catch drift.
type Workflow struct {
	Name        string          `json:"name"`
	Version     int             `json:"version"`
	Scorer      string          `json:"scorer"`
	BatchSize   int             `json:"batch_size"`
	Parallelism int             `json:"parallelism"`
	Stages      []WorkflowStage `json:"stages"`
}

// WorkflowStage is one step of the workflow document.
type WorkflowStage struct {
	ID   string `json:"id"`
	Uses string `json:"uses"`
}

var stageUses = map[model.Stage]string{
	model.StageParse:  "identity-store",
	model.StageScore:  "scorer",
	model.StageDecide: "review-policy",
	model.StageAudit:  "audit-chain",
	model.StageReport: "run-report",
}

// ExportWorkflow renders the pipeline description under the given policy.
func ExportWorkflow(p *policy.Policy) Workflow {
	canonical := model.WorkflowStages()
	stages := make([]WorkflowStage, 0, len(canonical))
	for _, stage := range canonical {
		stages = append(stages, WorkflowStage{
			ID:   stage.String(),
			Uses: stageUses[stage],
		})
	}
	return Workflow{
		Name:        "aegisid-review",
		Version:     WorkflowVersion,
		Scorer:      p.Scorer,
		BatchSize:   p.BatchSize,
		Parallelism: p.Parallelism,
		Stages:      stages,
	}
}

// Encode renders the workflow document as indented JSON.
func (w Workflow) Encode() ([]byte, error) {
	return json.MarshalIndent(w, "", "  ")
}

// ParseWorkflow decodes a workflow document, rejecting unknown fields.
func ParseWorkflow(raw []byte) (Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w Workflow
	if err := dec.Decode(&w); err != nil {
		return Workflow{}, fmt.Errorf("parse workflow document: %w", err)
	}
	return w, nil
}

// ValidateWorkflow checks that a workflow document still matches the
// pipeline built into this binary.
func ValidateWorkflow(w Workflow) error {
	if w.Version != WorkflowVersion {
		return fmt.Errorf("workflow version is %d, this binary speaks %d", w.Version, WorkflowVersion)
	}
	canonical := model.WorkflowStages()
	if len(w.Stages) != len(canonical) {
		return fmt.Errorf("workflow has %d stages, want %d", len(w.Stages), len(canonical))
	}
	for i, stage := range canonical {
		if w.Stages[i].ID != stage.String() {
			return fmt.Errorf("workflow stage %d is %q, want %q", i+1, w.Stages[i].ID, stage.String())
		}
	}
	if w.Scorer == "" {
		return fmt.Errorf("workflow names no scorer")
	}
	if w.BatchSize < 1 {
		return fmt.Errorf("workflow batch_size must be at least 1, got %d", w.BatchSize)
	}
	if w.Parallelism < 1 {
		return fmt.Errorf("workflow parallelism must be at least 1, got %d", w.Parallelism)
	}
	return nil
}
