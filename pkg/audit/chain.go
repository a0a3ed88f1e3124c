package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aegisid/aegisid/pkg/servermon"
)

// GenesisHash seeds the first record of every run's chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Chain record actions. Every decision and run lifecycle transition gets
// one chain entry.
const (
	ActionRunStarted   = "run_started"
	ActionDecision     = "decision"
	ActionRunFinished  = "run_finished"
	ActionRunFailed    = "run_failed"
	ActionRunCancelled = "run_cancelled"
)

// Record is one link in a run's tamper-evident audit chain.
type Record struct {
	Seq        int64     `json:"seq"`
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Subject    string    `json:"subject"`
	Payload    string    `json:"payload"`
	PrevHash   string    `json:"prev_hash"`
	EntryHash  string    `json:"entry_hash"`
}

// Report summarizes a chain verification pass.
type Report struct {
	RunID         string `json:"run_id"`
	Records       int    `json:"records"`
	HeadHash      string `json:"head_hash"`
	Valid         bool   `json:"valid"`
	DivergenceSeq int64  `json:"divergence_seq,omitempty"`
}

// FindingPayload is the decision payload carried in chain records. Its
// shape matches the entries of the downloadable audit document.
type FindingPayload struct {
	IdentityID    string  `json:"identity_id"`
	RiskScore     int     `json:"risk_score"`
	Decision      string  `json:"decision"`
	UsageCount    int64   `json:"usage_count"`
	IPRestriction *string `json:"ip_restriction"`
}

// Encode renders the payload as the JSON string stored in a chain record.
func (p FindingPayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Chain persists hash-chained audit records for review runs.
//
// Each record's entry hash covers the previous record's entry hash and a
// canonical serialization of the record's own fields, so any mutation,
// reordering, or deletion of stored rows is detectable by Verify.
type Chain struct {
	db *sql.DB
}

// NewChain creates a chain store on an existing database connection.
func NewChain(db *sql.DB) *Chain {
	return &Chain{db: db}
}

// canonicalPayload serializes the hashed fields as JSON with sorted keys
// and no insignificant whitespace. encoding/json sorts map keys, which
// gives a stable byte sequence for hashing.
func canonicalPayload(rec Record) ([]byte, error) {
	return json.Marshal(map[string]any{
		"run_id":      rec.RunID,
		"recorded_at": rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		"actor":       rec.Actor,
		"action":      rec.Action,
		"subject":     rec.Subject,
		"payload":     rec.Payload,
	})
}

func entryHash(prevHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// Append links rec onto its run's chain and persists it. The returned
// record carries the assigned seq and computed hashes.
func (c *Chain) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.RunID == "" {
		return Record{}, fmt.Errorf("audit: chain record has no run id")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	// timestamptz keeps microseconds; hash the value the row will hold
	rec.RecordedAt = rec.RecordedAt.UTC().Truncate(time.Microsecond)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	prev := GenesisHash
	err = tx.QueryRowContext(ctx, `
		SELECT entry_hash FROM audit_records
		WHERE run_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE
	`, rec.RunID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return Record{}, err
	}

	rec.PrevHash = prev
	canonical, err := canonicalPayload(rec)
	if err != nil {
		return Record{}, err
	}
	rec.EntryHash = entryHash(prev, canonical)

	err = tx.QueryRowContext(ctx, `
		INSERT INTO audit_records (run_id, recorded_at, actor, action, subject, payload, prev_hash, entry_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`, rec.RunID, rec.RecordedAt, rec.Actor, rec.Action, rec.Subject, rec.Payload, rec.PrevHash, rec.EntryHash).Scan(&rec.Seq)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, err
	}
	servermon.AuditChainRecordsCount.Inc()
	return rec, nil
}

// Records returns a run's chain records in append order.
func (c *Chain) Records(ctx context.Context, runID string) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT seq, run_id, recorded_at, actor, action, subject, payload, prev_hash, entry_hash
		FROM audit_records WHERE run_id = $1 ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Seq, &rec.RunID, &rec.RecordedAt, &rec.Actor, &rec.Action,
			&rec.Subject, &rec.Payload, &rec.PrevHash, &rec.EntryHash); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Verify recomputes every hash in a run's chain and reports the first
// divergence, if any. An empty chain verifies clean with zero records.
func (c *Chain) Verify(ctx context.Context, runID string) (Report, error) {
	recs, err := c.Records(ctx, runID)
	if err != nil {
		return Report{}, err
	}

	report := Report{RunID: runID, Records: len(recs), Valid: true}
	expected := GenesisHash
	for _, rec := range recs {
		canonical, err := canonicalPayload(rec)
		if err != nil {
			return Report{}, err
		}
		if rec.PrevHash != expected || rec.EntryHash != entryHash(expected, canonical) {
			report.Valid = false
			report.DivergenceSeq = rec.Seq
			break
		}
		expected = rec.EntryHash
	}
	// head hash is the last intact link
	report.HeadHash = expected
	if report.Valid {
		servermon.AuditChainVerificationsCount.WithLabelValues("ok").Inc()
	} else {
		servermon.AuditChainVerificationsCount.WithLabelValues("diverged").Inc()
	}
	return report, nil
}

type exportDocument struct {
	Findings []json.RawMessage `json:"findings"`
	Chain    exportTrailer     `json:"chain"`
}

type exportTrailer struct {
	HeadHash string `json:"head_hash"`
	Records  int    `json:"records"`
}

// Export renders a run's audit trail as the downloadable aegisid_audit.json
// document: the decision payloads in chain order plus a chain trailer.
func (c *Chain) Export(ctx context.Context, runID string) ([]byte, error) {
	recs, err := c.Records(ctx, runID)
	if err != nil {
		return nil, err
	}

	doc := exportDocument{Findings: []json.RawMessage{}}
	head := GenesisHash
	for _, rec := range recs {
		if rec.Action == ActionDecision {
			doc.Findings = append(doc.Findings, json.RawMessage(rec.Payload))
		}
		head = rec.EntryHash
	}
	doc.Chain = exportTrailer{HeadHash: head, Records: len(recs)}

	return json.MarshalIndent(doc, "", "  ")
}
