package audit

import "fmt"

// IngestEvent represents an identity ingest audit event
type IngestEvent struct {
	Actor        string
	ClientIP     string
	Source       string
	Format       string
	Created      int
	Updated      int
	Skipped      int
	Success      bool
	ErrorMessage string
}

func (e IngestEvent) MessageID() string {
	return "ingest"
}

func (e IngestEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("%s ingested %d identities from %s (%d new, %d updated, %d skipped)",
			e.Actor, e.Created+e.Updated, e.Source, e.Created, e.Updated, e.Skipped)
	}
	msg := fmt.Sprintf("%s failed to ingest identities from %s", e.Actor, e.Source)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e IngestEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e IngestEvent) Facility() int {
	return FacilityAudit
}

func (e IngestEvent) StructuredData() map[string]map[string]string {
	result := "success"
	if !e.Success {
		result = "failure"
	}
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Actor,
		},
		SDIDSubject: {
			"source":  e.Source,
			"format":  e.Format,
			"created": fmt.Sprintf("%d", e.Created),
			"updated": fmt.Sprintf("%d", e.Updated),
			"skipped": fmt.Sprintf("%d", e.Skipped),
			"result":  result,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
}
