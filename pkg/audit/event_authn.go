package audit

import "fmt"

// AuthenticateEvent represents an operator authentication audit event
type AuthenticateEvent struct {
	Login        string
	ClientIP     string
	Success      bool
	ErrorMessage string
}

func (e AuthenticateEvent) MessageID() string {
	return "authn"
}

func (e AuthenticateEvent) Message() string {
	if e.Success {
		return fmt.Sprintf("operator %s successfully authenticated", e.Login)
	}
	msg := fmt.Sprintf("operator %s failed to authenticate", e.Login)
	if e.ErrorMessage != "" {
		msg += ": " + e.ErrorMessage
	}
	return msg
}

func (e AuthenticateEvent) Severity() Severity {
	if e.Success {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e AuthenticateEvent) Facility() int {
	return FacilityAuthPriv
}

func (e AuthenticateEvent) StructuredData() map[string]map[string]string {
	result := "success"
	if !e.Success {
		result = "failure"
	}
	return map[string]map[string]string{
		SDIDAuth: {
			"user":   e.Login,
			"result": result,
		},
		SDIDClient: {
			"ip": e.ClientIP,
		},
	}
}
