package audit

import "fmt"

// WhoamiEvent represents a whoami audit event
type WhoamiEvent struct {
	Login    string
	ClientIP string
}

func (e WhoamiEvent) MessageID() string {
	return "identity-check"
}

func (e WhoamiEvent) Message() string {
	return fmt.Sprintf("operator %s checked their identity using whoami", e.Login)
}

func (e WhoamiEvent) Severity() Severity {
	return SeverityInfo
}

func (e WhoamiEvent) Facility() int {
	return FacilityAuth
}

func (e WhoamiEvent) StructuredData() map[string]map[string]string {
	return map[string]map[string]string{
		SDIDAuth: {
			"user": e.Login,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
}
