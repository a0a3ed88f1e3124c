package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/store"
)

type runMocks struct {
	identities *MockIdentityStore
	runs       *MockRunStore
	findings   *MockFindingStore
	policies   *MockPolicyStore
}

// newRunTestServer rebuilds the server's engine on top of testify mocks so
// trigger and cancel requests exercise the real engine logic without a
// database.
func newRunTestServer(t *testing.T) (*server.Server, runMocks) {
	t.Helper()
	s, _ := newTestServer(t)
	m := runMocks{
		identities: new(MockIdentityStore),
		runs:       new(MockRunStore),
		findings:   new(MockFindingStore),
		policies:   new(MockPolicyStore),
	}
	s.Identities = m.identities
	s.Runs = m.runs
	s.Findings = m.findings
	s.Engine = review.NewEngine(review.EngineParams{
		Identities:        m.identities,
		Runs:              m.runs,
		Findings:          m.findings,
		Chain:             s.Chain,
		Policies:          m.policies,
		MaxConcurrentRuns: 1,
	})
	RegisterRunsEndpoints(s)
	return s, m
}

func TestTriggerRun(t *testing.T) {
	t.Run("accepts a run and starts it in the background", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CountActiveRuns").Return(int64(0), nil)
		m.identities.On("LatestSource").Return("upload", nil)
		m.runs.On("CreateRun", mock.AnythingOfType("*model.ReviewRun"), mock.AnythingOfType("[]model.StageRun")).
			Return(nil)
		// The executor reloads the run as its first step. The mock create
		// leaves the id empty and the mock get reports it missing, so the
		// background goroutine exits without touching anything else.
		m.runs.On("GetRun", "").Return(nil, store.ErrRunNotFound)

		req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{"scorer": "heuristic"}`))
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)
		s.Engine.Wait()

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
		}
		var run model.ReviewRun
		if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if run.Status != model.RunStatusPending {
			t.Errorf("expected a pending run, got %s", run.Status)
		}
		if run.Scorer != "heuristic" || run.Source != "upload" {
			t.Errorf("unexpected run setup: scorer %q source %q", run.Scorer, run.Source)
		}

		var stages []model.StageRun
		for _, call := range m.runs.Calls {
			if call.Method == "CreateRun" {
				stages = call.Arguments.Get(1).([]model.StageRun)
			}
		}
		if len(stages) != len(model.WorkflowStages()) {
			t.Errorf("expected a stage row per workflow stage, got %d", len(stages))
		}
	})

	t.Run("accepts an empty body", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CountActiveRuns").Return(int64(0), nil)
		m.identities.On("LatestSource").Return("upload", nil)
		m.runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
		m.runs.On("GetRun", "").Return(nil, store.ErrRunNotFound)

		req := httptest.NewRequest("POST", "/runs", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)
		s.Engine.Wait()

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("refuses a second concurrent run", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CountActiveRuns").Return(int64(1), nil)

		req := httptest.NewRequest("POST", "/runs", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("refuses to run before any ingest", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CountActiveRuns").Return(int64(0), nil)
		m.identities.On("LatestSource").Return("", nil)

		req := httptest.NewRequest("POST", "/runs", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("refuses a scorer that is not enabled", func(t *testing.T) {
		s, m := newRunTestServer(t)

		req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{"scorer": "remote"}`))
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
		}
		m.runs.AssertNotCalled(t, "CountActiveRuns")
	})

	t.Run("refuses an unknown policy version", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.policies.On("GetVersion", 42).Return(nil, policy.ErrVersionNotFound)

		req := httptest.NewRequest("POST", "/runs", strings.NewReader(`{"policy_version": 42}`))
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("forbids auditors", func(t *testing.T) {
		s, _ := newRunTestServer(t)

		req := httptest.NewRequest("POST", "/runs", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", w.Code)
		}
	})
}

func TestListRuns(t *testing.T) {
	s, m := newRunTestServer(t)
	m.runs.On("ListRuns", 10, 0).Return([]model.ReviewRun{
		{ID: "run-1", Status: model.RunStatusSucceeded},
		{ID: "run-2", Status: model.RunStatusRunning},
	}, nil)
	m.runs.On("CountRuns").Return(int64(7), nil)

	req := httptest.NewRequest("GET", "/runs?limit=10", nil)
	req.Header.Set("Authorization", auditorBearer(t))

	w := serveRequest(s, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp RunListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Runs) != 2 || resp.Count != 7 {
		t.Errorf("unexpected listing: %d runs, count %d", len(resp.Runs), resp.Count)
	}
}

func TestGetRun(t *testing.T) {
	s, m := newRunTestServer(t)

	t.Run("returns a run with its stages", func(t *testing.T) {
		m.runs.On("GetRun", "run-1").
			Return(&model.ReviewRun{ID: "run-1", Status: model.RunStatusRunning}, nil)
		m.runs.On("GetRunStages", "run-1").Return([]model.StageRun{
			{RunID: "run-1", Stage: model.StageParse, Status: model.RunStatusSucceeded},
			{RunID: "run-1", Stage: model.StageScore, Status: model.RunStatusRunning},
		}, nil)

		req := httptest.NewRequest("GET", "/runs/run-1", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp RunDetailResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.ID != "run-1" || len(resp.Stages) != 2 {
			t.Errorf("unexpected run detail: id %q, %d stages", resp.ID, len(resp.Stages))
		}
	})

	t.Run("404s an unknown run", func(t *testing.T) {
		m.runs.On("GetRun", "run-404").Return(nil, store.ErrRunNotFound)

		req := httptest.NewRequest("GET", "/runs/run-404", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestCancelRun(t *testing.T) {
	t.Run("cancels a running run", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CancelRun", "run-1").
			Return(&model.ReviewRun{ID: "run-1", Trigger: model.TriggerAPI, Status: model.RunStatusCancelled}, nil)
		m.runs.On("GetRunStages", "run-1").Return([]model.StageRun{
			{RunID: "run-1", Stage: model.StageDecide, Status: model.RunStatusPending},
		}, nil)
		m.runs.On("UpdateStage", mock.AnythingOfType("*model.StageRun")).Return(nil)

		req := httptest.NewRequest("POST", "/runs/run-1/cancel", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var run model.ReviewRun
		if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if run.Status != model.RunStatusCancelled {
			t.Errorf("expected a cancelled run, got %s", run.Status)
		}
	})

	t.Run("404s an unknown run", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CancelRun", "run-404").Return(nil, store.ErrRunNotFound)

		req := httptest.NewRequest("POST", "/runs/run-404/cancel", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("409s a finished run", func(t *testing.T) {
		s, m := newRunTestServer(t)
		m.runs.On("CancelRun", "run-1").Return(nil, store.ErrRunFinished)

		req := httptest.NewRequest("POST", "/runs/run-1/cancel", nil)
		req.Header.Set("Authorization", adminBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})
}

func TestListRunFindings(t *testing.T) {
	s, m := newRunTestServer(t)
	m.runs.On("GetRun", "run-1").
		Return(&model.ReviewRun{ID: "run-1", Status: model.RunStatusSucceeded}, nil)

	t.Run("lists findings with their reasons unpacked", func(t *testing.T) {
		flagged := model.Finding{
			RunID:      "run-1",
			IdentityID: "uuid-1",
			RiskScore:  82,
			Band:       identity.BandHigh,
			Decision:   identity.DecisionRotate,
		}
		flagged.SetReasons([]string{"stale key", "no owner on file"})
		m.findings.On("ListFindings", "run-1", "").Return([]model.Finding{flagged}, nil)

		req := httptest.NewRequest("GET", "/runs/run-1/findings", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp FindingListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Count != 1 || len(resp.Findings) != 1 {
			t.Fatalf("unexpected findings listing: %+v", resp)
		}
		if len(resp.Findings[0].Reasons) != 2 || resp.Findings[0].Reasons[0] != "stale key" {
			t.Errorf("expected reasons on the wire, got %v", resp.Findings[0].Reasons)
		}
	})

	t.Run("filters by band", func(t *testing.T) {
		m.findings.On("ListFindings", "run-1", "high").Return([]model.Finding{}, nil)

		req := httptest.NewRequest("GET", "/runs/run-1/findings?band=high", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		m.findings.AssertCalled(t, "ListFindings", "run-1", "high")
	})

	t.Run("rejects an unknown band", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/runs/run-1/findings?band=critical", nil)
		req.Header.Set("Authorization", auditorBearer(t))

		w := serveRequest(s, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
