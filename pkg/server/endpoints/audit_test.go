package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/store"
)

func newAuditTestServer(t *testing.T) (*server.Server, sqlmock.Sqlmock, *MockRunStore) {
	t.Helper()
	s, dbMock := newTestServer(t)
	runs := new(MockRunStore)
	s.Runs = runs
	RegisterAuditEndpoints(s)
	return s, dbMock, runs
}

func TestRunAuditRecords(t *testing.T) {
	recordedAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	t.Run("returns chain records in order", func(t *testing.T) {
		s, dbMock, runs := newAuditTestServer(t)
		runs.On("GetRun", "run-1").Return(&model.ReviewRun{ID: "run-1"}, nil)
		ExpectChainRecords(dbMock, "run-1", []audit.Record{
			{Seq: 1, RunID: "run-1", RecordedAt: recordedAt, Actor: "system",
				Action: audit.ActionRunStarted, PrevHash: audit.GenesisHash, EntryHash: "aaaa"},
			{Seq: 2, RunID: "run-1", RecordedAt: recordedAt, Actor: "system",
				Action: audit.ActionRunFinished, PrevHash: "aaaa", EntryHash: "bbbb"},
		})

		req := httptest.NewRequest("GET", "/runs/run-1/audit", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp AuditRecordsResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.RunID != "run-1" || len(resp.Records) != 2 {
			t.Fatalf("unexpected records response: %+v", resp)
		}
		if resp.Records[0].Action != audit.ActionRunStarted || resp.Records[1].Seq != 2 {
			t.Errorf("records out of order: %+v", resp.Records)
		}
		if err := dbMock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet chain expectations: %v", err)
		}
	})

	t.Run("returns an empty chain as an empty list", func(t *testing.T) {
		s, dbMock, runs := newAuditTestServer(t)
		runs.On("GetRun", "run-1").Return(&model.ReviewRun{ID: "run-1"}, nil)
		ExpectEmptyChain(dbMock, "run-1")

		req := httptest.NewRequest("GET", "/runs/run-1/audit", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"records":[]`) {
			t.Errorf("expected an empty records list, got %s", w.Body.String())
		}
	})

	t.Run("404s an unknown run", func(t *testing.T) {
		s, _, runs := newAuditTestServer(t)
		runs.On("GetRun", "run-404").Return(nil, store.ErrRunNotFound)

		req := httptest.NewRequest("GET", "/runs/run-404/audit", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestVerifyRunAudit(t *testing.T) {
	t.Run("verifies an empty chain clean", func(t *testing.T) {
		s, dbMock, runs := newAuditTestServer(t)
		runs.On("GetRun", "run-1").Return(&model.ReviewRun{ID: "run-1"}, nil)
		ExpectEmptyChain(dbMock, "run-1")

		req := httptest.NewRequest("GET", "/runs/run-1/audit/verify", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var report audit.Report
		if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to decode report: %v", err)
		}
		if !report.Valid || report.Records != 0 || report.HeadHash != audit.GenesisHash {
			t.Errorf("unexpected report: %+v", report)
		}
	})

	t.Run("reports the first diverged record", func(t *testing.T) {
		s, dbMock, runs := newAuditTestServer(t)
		runs.On("GetRun", "run-1").Return(&model.ReviewRun{ID: "run-1"}, nil)
		// The stored entry hash does not match a recomputation over the
		// genesis hash and the record's fields.
		ExpectChainRecords(dbMock, "run-1", []audit.Record{
			{Seq: 1, RunID: "run-1", RecordedAt: time.Now().UTC(), Actor: "system",
				Action: audit.ActionRunStarted, PrevHash: audit.GenesisHash, EntryHash: "beef"},
		})

		req := httptest.NewRequest("GET", "/runs/run-1/audit/verify", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var report audit.Report
		if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to decode report: %v", err)
		}
		if report.Valid || report.DivergenceSeq != 1 {
			t.Errorf("expected divergence at seq 1, got %+v", report)
		}
	})
}

func TestExportRunAudit(t *testing.T) {
	s, dbMock, runs := newAuditTestServer(t)
	runs.On("GetRun", "run-1").Return(&model.ReviewRun{ID: "run-1", Scored: 2}, nil)

	payload, err := audit.FindingPayload{
		IdentityID: "uuid-1",
		RiskScore:  82,
		Decision:   "rotate",
		UsageCount: 120,
	}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	ExpectChainRecords(dbMock, "run-1", []audit.Record{
		{Seq: 1, RunID: "run-1", RecordedAt: time.Now().UTC(), Actor: "system",
			Action: audit.ActionRunStarted, PrevHash: audit.GenesisHash, EntryHash: "aaaa"},
		{Seq: 2, RunID: "run-1", RecordedAt: time.Now().UTC(), Actor: "reviewer:policy",
			Action: audit.ActionDecision, Subject: "uuid-1", Payload: payload,
			PrevHash: "aaaa", EntryHash: "bbbb"},
	})

	req := httptest.NewRequest("GET", "/runs/run-1/audit/export", nil)
	req.Header.Set("Authorization", auditorBearer(t))

	w := serveRequest(s, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("expected application/json, got %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, AuditExportFilename) {
		t.Errorf("expected an attachment named %s, got %q", AuditExportFilename, got)
	}

	var doc struct {
		Findings []map[string]any `json:"findings"`
		Chain    struct {
			HeadHash string `json:"head_hash"`
			Records  int    `json:"records"`
		} `json:"chain"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("failed to decode export document: %v", err)
	}
	if len(doc.Findings) != 1 {
		t.Fatalf("expected one decision payload, got %d", len(doc.Findings))
	}
	if doc.Findings[0]["identity_id"] != "uuid-1" || doc.Findings[0]["decision"] != "rotate" {
		t.Errorf("unexpected finding payload: %v", doc.Findings[0])
	}
	if doc.Chain.Records != 2 || doc.Chain.HeadHash != "bbbb" {
		t.Errorf("unexpected chain trailer: %+v", doc.Chain)
	}
}
