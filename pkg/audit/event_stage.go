package audit

import "fmt"

// StageEvent represents a workflow stage transition audit event
type StageEvent struct {
	RunID        string
	Stage        string
	Status       string // "running", "succeeded", "failed", "skipped", "cancelled"
	Attempt      int
	ErrorMessage string
}

func (e StageEvent) MessageID() string {
	return "stage"
}

func (e StageEvent) Message() string {
	msg := fmt.Sprintf("run %s stage %s %s (attempt %d)", e.RunID, e.Stage, e.Status, e.Attempt)
	if e.Status == "failed" && e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e StageEvent) Severity() Severity {
	if e.Status == "failed" {
		return SeverityWarning
	}
	return SeverityInfo
}

func (e StageEvent) Facility() int {
	return FacilityAudit
}

func (e StageEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDRun: {
			"id":      e.RunID,
			"stage":   e.Stage,
			"status":  e.Status,
			"attempt": fmt.Sprintf("%d", e.Attempt),
		},
	}
}
