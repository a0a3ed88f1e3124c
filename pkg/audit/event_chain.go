package audit

import "fmt"

// ChainVerifyEvent represents an audit chain verification event
type ChainVerifyEvent struct {
	Actor         string
	ClientIP      string
	RunID         string
	Records       int
	Valid         bool
	DivergenceSeq int64
}

func (e ChainVerifyEvent) MessageID() string {
	return "chain-verify"
}

func (e ChainVerifyEvent) Message() string {
	if e.Valid {
		return fmt.Sprintf("audit chain for run %s verified: %d records intact", e.RunID, e.Records)
	}
	return fmt.Sprintf("audit chain for run %s diverges at seq %d", e.RunID, e.DivergenceSeq)
}

func (e ChainVerifyEvent) Severity() Severity {
	if e.Valid {
		return SeverityInfo
	}
	return SeverityWarning
}

func (e ChainVerifyEvent) Facility() int {
	return FacilityAudit
}

func (e ChainVerifyEvent) StructuredData() map[string]map[string]string {
	result := "valid"
	if !e.Valid {
		result = "diverged"
	}
	sd := map[string]map[string]string{
		SDIDChain: {
			"run":     e.RunID,
			"records": fmt.Sprintf("%d", e.Records),
			"result":  result,
		},
	}
	if !e.Valid {
		sd[SDIDChain]["divergence"] = fmt.Sprintf("%d", e.DivergenceSeq)
	}
	if e.Actor != "" {
		sd[SDIDAuth] = map[string]string{"user": e.Actor}
	}
	if e.ClientIP != "" {
		sd[SDIDClient] = map[string]string{"ip": e.ClientIP}
	}
	return sd
}
