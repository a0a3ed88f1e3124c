package audit

import "fmt"

// PolicyEvent represents a review policy load audit event
type PolicyEvent struct {
	Actor        string
	ClientIP     string
	Version      int
	SHA256       string
	Operation    string // "load", "apply", "reload"
	Success      bool
	ErrorMessage string
}

func (e PolicyEvent) MessageID() string {
	return "policy"
}

func (e PolicyEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s %sed review policy (version %d)", e.Actor, e.Operation, e.Version)
	}
	msg := fmt.Sprintf("%s tried to %s review policy", e.Actor, e.Operation)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e PolicyEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e PolicyEvent) Facility() int {
	return FacilityAudit
}

func (e PolicyEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDAuth: {
			"user": e.Actor,
		},
		SDIDPolicy: {
			"version":   fmt.Sprintf("%d", e.Version),
			"operation": e.Operation,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
	if e.SHA256 != "" {
		sd[SDIDPolicy]["sha256"] = e.SHA256
	}
	if e.Success {
		sd[SDIDPolicy]["result"] = "success"
	} else {
		sd[SDIDPolicy]["result"] = "failure"
	}
	return sd
}
