package audit

import "fmt"

// ExportEvent represents an audit file export event
type ExportEvent struct {
	Actor    string
	ClientIP string
	RunID    string
	Findings int
	Bytes    int
}

func (e ExportEvent) MessageID() string {
	return "export"
}

func (e ExportEvent) Message() string {
	return fmt.Sprintf("%s exported audit file for run %s (%d findings, %d bytes)",
		e.Actor, e.RunID, e.Findings, e.Bytes)
}

func (e ExportEvent) Severity() Severity {
	return SeverityInfo
}

func (e ExportEvent) Facility() int {
	return FacilityAudit
}

func (e ExportEvent) StructuredData() map[string]map[string]string {
	sd := map[string]map[string]string{
		SDIDChain: {
			"run":      e.RunID,
			"findings": fmt.Sprintf("%d", e.Findings),
		},
	}
	if e.Actor != "" {
		sd[SDIDAuth] = map[string]string{"user": e.Actor}
	}
	if e.ClientIP != "" {
		sd[SDIDClient] = map[string]string{"ip": e.ClientIP}
	}
	return sd
}
