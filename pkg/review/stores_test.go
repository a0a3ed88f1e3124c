package review

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/zaputil/zapctx"
	"go.uber.org/zap"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/scoring"
	"github.com/aegisid/aegisid/pkg/server/store"
)

func TestMain(m *testing.M) {
	audit.DefaultLogger.SetWriter(io.Discard)
	zapctx.Default = zap.NewNop()
	stageRetryBackoff = time.Millisecond
	os.Exit(m.Run())
}

// memIdentities is an in-memory IdentityStore.
type memIdentities struct {
	mu     sync.Mutex
	idents []model.Identity
	nextID int
}

var _ store.IdentityStore = (*memIdentities)(nil)

func (m *memIdentities) add(idents ...model.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range idents {
		if ident.ID == "" {
			m.nextID++
			ident.ID = fmt.Sprintf("uuid-%d", m.nextID)
		}
		m.idents = append(m.idents, ident)
	}
}

func (m *memIdentities) UpsertIdentities(identities []model.Identity) (store.UpsertResult, error) {
	m.add(identities...)
	return store.UpsertResult{Created: len(identities)}, nil
}

func (m *memIdentities) GetIdentity(id string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.idents {
		if ident.ID == id {
			found := ident
			return &found, nil
		}
	}
	return nil, store.ErrIdentityNotFound
}

func (m *memIdentities) ListIdentities(filter store.IdentityFilter) ([]model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Identity
	for _, ident := range m.idents {
		if filter.Source != "" && ident.Source != filter.Source {
			continue
		}
		if filter.Kind != "" && !strings.EqualFold(filter.Kind, ident.Kind.String()) {
			continue
		}
		out = append(out, ident)
	}
	return out, nil
}

func (m *memIdentities) CountIdentities(filter store.IdentityFilter) (int64, error) {
	idents, _ := m.ListIdentities(filter)
	return int64(len(idents)), nil
}

func (m *memIdentities) LatestSource() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.idents) == 0 {
		return "", nil
	}
	return m.idents[len(m.idents)-1].Source, nil
}

// memRuns is an in-memory RunStore. It stores copies, like a database
// would, so the engine's detached goroutine and the test never share
// row memory.
type memRuns struct {
	mu          sync.Mutex
	runs        map[string]model.ReviewRun
	order       []string
	stages      []model.StageRun
	nextRunID   int
	nextStageID uint
}

var _ store.RunStore = (*memRuns)(nil)

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[string]model.ReviewRun)}
}

func (m *memRuns) CreateRun(run *model.ReviewRun, stages []model.StageRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		m.nextRunID++
		run.ID = fmt.Sprintf("run-%d", m.nextRunID)
	}
	run.CreatedAt = time.Now()
	m.runs[run.ID] = *run
	m.order = append(m.order, run.ID)
	for i := range stages {
		m.nextStageID++
		stages[i].ID = m.nextStageID
		stages[i].RunID = run.ID
		m.stages = append(m.stages, stages[i])
	}
	return nil
}

func (m *memRuns) GetRun(id string) (*model.ReviewRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	return &run, nil
}

func (m *memRuns) GetRunStages(id string) ([]model.StageRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.StageRun
	for _, st := range m.stages {
		if st.RunID == id {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return out[i].Stage < out[j].Stage
		}
		return out[i].Attempt < out[j].Attempt
	})
	return out, nil
}

func (m *memRuns) ListRuns(limit, offset int) ([]model.ReviewRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ReviewRun
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.runs[m.order[i]])
	}
	return out, nil
}

func (m *memRuns) CountRuns() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.runs)), nil
}

func (m *memRuns) CountActiveRuns() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, run := range m.runs {
		if run.Status == model.RunStatusPending || run.Status == model.RunStatusRunning {
			n++
		}
	}
	return n, nil
}

func (m *memRuns) UpdateRun(run *model.ReviewRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return store.ErrRunNotFound
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memRuns) CancelRun(id string) (*model.ReviewRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, store.ErrRunNotFound
	}
	if run.Status.Terminal() {
		return nil, store.ErrRunFinished
	}
	now := time.Now()
	run.Status = model.RunStatusCancelled
	run.FinishedAt = &now
	m.runs[id] = run
	return &run, nil
}

func (m *memRuns) CreateStage(stage *model.StageRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextStageID++
	stage.ID = m.nextStageID
	m.stages = append(m.stages, *stage)
	return nil
}

func (m *memRuns) UpdateStage(stage *model.StageRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stages {
		if m.stages[i].ID == stage.ID {
			m.stages[i] = *stage
			return nil
		}
	}
	return fmt.Errorf("stage %d not found", stage.ID)
}

// memFindings is an in-memory FindingStore.
type memFindings struct {
	mu    sync.Mutex
	byRun map[string][]model.Finding
}

var _ store.FindingStore = (*memFindings)(nil)

func newMemFindings() *memFindings {
	return &memFindings{byRun: make(map[string][]model.Finding)}
}

func (m *memFindings) ReplaceFindings(runID string, findings []model.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRun[runID] = append([]model.Finding(nil), findings...)
	return nil
}

func (m *memFindings) ListFindings(runID string, band string) ([]model.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Finding
	for _, f := range m.byRun[runID] {
		if band != "" && !strings.EqualFold(band, f.Band.String()) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// memChain is an in-memory AuditChain. appendHook, when set, can inject
// append failures.
type memChain struct {
	mu         sync.Mutex
	recs       map[string][]audit.Record
	appendHook func(rec audit.Record) error
}

var _ AuditChain = (*memChain)(nil)

func newMemChain() *memChain {
	return &memChain{recs: make(map[string][]audit.Record)}
}

func (m *memChain) Append(ctx context.Context, rec audit.Record) (audit.Record, error) {
	m.mu.Lock()
	hook := m.appendHook
	m.mu.Unlock()
	if hook != nil {
		if err := hook(rec); err != nil {
			return audit.Record{}, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Seq = int64(len(m.recs[rec.RunID]) + 1)
	rec.RecordedAt = time.Now()
	m.recs[rec.RunID] = append(m.recs[rec.RunID], rec)
	return rec, nil
}

func (m *memChain) Records(ctx context.Context, runID string) ([]audit.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Record(nil), m.recs[runID]...), nil
}

func (m *memChain) actions(runID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, rec := range m.recs[runID] {
		out = append(out, rec.Action)
	}
	return out
}

// memPolicies is an in-memory policy.Store.
type memPolicies struct {
	mu       sync.Mutex
	versions []model.PolicyVersion
}

var _ policy.Store = (*memPolicies)(nil)

func (m *memPolicies) Transaction(fn func(policy.Store) error) error {
	return fn(m)
}

func (m *memPolicies) CurrentVersion() (*model.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.versions) == 0 {
		return nil, policy.ErrVersionNotFound
	}
	pv := m.versions[len(m.versions)-1]
	return &pv, nil
}

func (m *memPolicies) FindVersionBySHA256(sha string) (*model.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pv := range m.versions {
		if pv.SHA256 == sha {
			found := pv
			return &found, nil
		}
	}
	return nil, policy.ErrVersionNotFound
}

func (m *memPolicies) CreateVersion(pv *model.PolicyVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pv.Version = len(m.versions) + 1
	pv.LoadedAt = time.Now()
	m.versions = append(m.versions, *pv)
	return nil
}

func (m *memPolicies) GetVersion(version int) (*model.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pv := range m.versions {
		if pv.Version == version {
			found := pv
			return &found, nil
		}
	}
	return nil, policy.ErrVersionNotFound
}

func (m *memPolicies) ListVersions(limit int) ([]model.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PolicyVersion
	for i := len(m.versions) - 1; i >= 0; i-- {
		out = append(out, m.versions[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// stubScorer scores with an injected function.
type stubScorer struct {
	name string
	fn   func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error)
}

var _ scoring.Scorer = (*stubScorer)(nil)

func (s *stubScorer) Name() string { return s.name }

func (s *stubScorer) Score(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
	return s.fn(ctx, batch)
}

// scoreBy returns a scoring function that assigns fixed scores by
// external id, defaulting to 10.
func scoreBy(scores map[string]int) func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
	return func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		results := make([]scoring.Result, 0, len(batch))
		for _, ident := range batch {
			score, ok := scores[ident.ExternalID]
			if !ok {
				score = 10
			}
			results = append(results, scoring.Result{
				ExternalID: ident.ExternalID,
				RiskScore:  score,
				Reasons:    []string{"stub"},
			})
		}
		return results, nil
	}
}

// testEngine bundles an engine with its backing fakes.
type testEngine struct {
	*Engine
	identities *memIdentities
	runs       *memRuns
	findings   *memFindings
	chain      *memChain
	policies   *memPolicies
	registry   *scoring.Registry
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	te := &testEngine{
		identities: &memIdentities{},
		runs:       newMemRuns(),
		findings:   newMemFindings(),
		chain:      newMemChain(),
		policies:   &memPolicies{},
		registry:   scoring.NewRegistry(),
	}
	te.Engine = NewEngine(EngineParams{
		Identities: te.identities,
		Runs:       te.runs,
		Findings:   te.findings,
		Chain:      te.chain,
		Registry:   te.registry,
		Policies:   te.policies,
	})
	return te
}

// register installs a stub scorer under the given name.
func (te *testEngine) register(name string, fn func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error)) {
	te.registry.Register(name, func() (scoring.Scorer, error) {
		return &stubScorer{name: name, fn: fn}, nil
	})
}

// usePolicy installs a copy of the default policy with the given scorers.
func (te *testEngine) usePolicy(scorer, fallback string) *policy.Policy {
	p := policy.Default()
	p.Scorer = scorer
	p.FallbackScorer = fallback
	p.BatchSize = 2
	p.Parallelism = 2
	te.SetPolicy(p, nil)
	return p
}

// seedIdentities adds n identities for a source, named ext-1..ext-n.
func (te *testEngine) seedIdentities(source string, n int) []string {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		ext := fmt.Sprintf("ext-%d", i)
		te.identities.add(model.Identity{
			ExternalID: ext,
			Name:       fmt.Sprintf("key-%d", i),
			Source:     source,
			UsageCount: int64(i * 100),
		})
		ids = append(ids, ext)
	}
	return ids
}
