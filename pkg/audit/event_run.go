package audit

import "fmt"

// RunEvent represents a review run lifecycle audit event
type RunEvent struct {
	Actor        string
	ClientIP     string
	RunID        string
	Trigger      string
	Scorer       string
	Operation    string // "trigger", "finish", "fail", "cancel"
	Scored       int
	Flagged      int
	ErrorMessage string
}

func (e RunEvent) MessageID() string {
	return "run"
}

func (e RunEvent) Message() string {
	switch e.Operation {
	case "trigger":
		return fmt.Sprintf("%s triggered review run %s with scorer %s", e.Actor, e.RunID, e.Scorer)
	case "finish":
		return fmt.Sprintf("review run %s finished: %d identities scored, %d flagged", e.RunID, e.Scored, e.Flagged)
	case "fail":
		msg := fmt.Sprintf("review run %s failed", e.RunID)
		if e.ErrorMessage != "" {
			msg += ": " + e.ErrorMessage
		}
		return msg
	case "cancel":
		return fmt.Sprintf("%s cancelled review run %s", e.Actor, e.RunID)
	}
	return fmt.Sprintf("review run %s: %s", e.RunID, e.Operation)
}

func (e RunEvent) Severity() Severity {
	if e.Operation == "fail" {
		return SeverityWarning
	}
	return SeverityInfo
}

func (e RunEvent) Facility() int {
	return FacilityAudit
}

func (e RunEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDRun: {
			"id":        e.RunID,
			"operation": e.Operation,
		},
	}
	if e.Trigger != "" {
		sd[SDIDRun]["trigger"] = e.Trigger
	}
	if e.Scorer != "" {
		sd[SDIDRun]["scorer"] = e.Scorer
	}
	if e.Actor != "" {
		sd[SDIDAuth] = map[string]string{"user": e.Actor}
	}
	if e.ClientIP != "" {
		sd[SDIDClient] = map[string]string{"ip": e.ClientIP}
	}
	return sd
}
