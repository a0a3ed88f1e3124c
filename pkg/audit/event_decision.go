package audit

import "fmt"

// DecisionEvent represents a review decision audit event
type DecisionEvent struct {
	RunID      string
	IdentityID string
	RiskScore  int
	Band       string
	Decision   string
	Reviewer   string
}

func (e DecisionEvent) MessageID() string {
	return "decision"
}

func (e DecisionEvent) Message() string {
	return fmt.Sprintf("identity %s scored %d (%s): %s by %s reviewer",
		e.IdentityID, e.RiskScore, e.Band, e.Decision, e.Reviewer)
}

func (e DecisionEvent) Severity() Severity {
	if e.Decision == "rotate" {
		return SeverityWarning
	}
	return SeverityInfo
}

func (e DecisionEvent) Facility() int {
	return FacilityAudit
}

func (e DecisionEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDSubject: {
			"identity": e.IdentityID,
		},
		SDIDScore: {
			"risk":     fmt.Sprintf("%d", e.RiskScore),
			"band":     e.Band,
			"decision": e.Decision,
			"reviewer": e.Reviewer,
		},
		SDIDRun: {
			"id": e.RunID,
		},
	}
}
