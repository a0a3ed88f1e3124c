package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/scoring"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// ErrTooManyRuns is returned when triggering a run would exceed the
// configured active-run limit.
var ErrTooManyRuns = errors.New("too many active review runs")

// ErrNoIdentities is returned when a run is triggered before any
// identities have been ingested.
var ErrNoIdentities = errors.New("no identities have been ingested")

// AuditChain is the chain surface the engine records run lifecycle and
// decision entries to.
type AuditChain interface {
	Append(ctx context.Context, rec audit.Record) (audit.Record, error)
	Records(ctx context.Context, runID string) ([]audit.Record, error)
}

// EngineParams collects the engine's dependencies.
type EngineParams struct {
	Identities store.IdentityStore
	Runs       store.RunStore
	Findings   store.FindingStore
	Chain      AuditChain

	// Registry supplies scorers by name. Defaults to
	// scoring.DefaultRegistry.
	Registry *scoring.Registry

	// Policies resolves pinned policy versions for replay-style runs.
	Policies policy.Store

	// MaxConcurrentRuns bounds simultaneously active runs. Values below
	// one are treated as one.
	MaxConcurrentRuns int
}

// Engine coordinates review runs end to end. TriggerRun records the run
// and its stage rows, then drives the workflow stages in a background
// goroutine; progress is observable through the run store while the run
// executes.
type Engine struct {
	identities store.IdentityStore
	runs       store.RunStore
	findings   store.FindingStore
	chain      AuditChain
	registry   *scoring.Registry
	policies   policy.Store

	maxConcurrent int64

	mu      sync.RWMutex
	current *policy.Policy
	version *int

	wg sync.WaitGroup
}

// NewEngine creates a review engine. Until SetPolicy is called, runs use
// the built-in default policy.
func NewEngine(p EngineParams) *Engine {
	registry := p.Registry
	if registry == nil {
		registry = scoring.DefaultRegistry
	}
	maxConcurrent := int64(p.MaxConcurrentRuns)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{
		identities:    p.Identities,
		runs:          p.Runs,
		findings:      p.Findings,
		chain:         p.Chain,
		registry:      registry,
		policies:      p.Policies,
		maxConcurrent: maxConcurrent,
	}
}

// SetPolicy installs the policy new runs are decided with. The version is
// recorded on runs it governs; pass nil when the policy has not been
// persisted.
func (e *Engine) SetPolicy(p *policy.Policy, version *int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = p
	e.version = version
}

// CurrentPolicy returns the installed policy and its version, or the
// default policy when none has been installed.
func (e *Engine) CurrentPolicy() (*policy.Policy, *int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return policy.Default(), nil
	}
	return e.current, e.version
}

// TriggerOptions selects what a triggered run reviews and how.
type TriggerOptions struct {
	// Trigger records what started the run.
	Trigger model.Trigger

	// Source narrows the run to identities of one ingest source. Empty
	// selects the most recently ingested source.
	Source string

	// Scorer overrides the policy's scorer for this run.
	Scorer string

	// PolicyVersion pins the run to a stored policy version instead of
	// the currently installed policy.
	PolicyVersion *int
}

// TriggerRun validates the request, creates a pending run with its stage
// rows, and starts executing it in the background. The returned run is in
// the pending state; its progress is observable through the run store.
func (e *Engine) TriggerRun(ctx context.Context, opts TriggerOptions) (*model.ReviewRun, error) {
	pol, version, err := e.resolvePolicy(opts.PolicyVersion)
	if err != nil {
		return nil, err
	}

	active, err := e.runs.CountActiveRuns()
	if err != nil {
		return nil, err
	}
	if active >= e.maxConcurrent {
		return nil, fmt.Errorf("%w: %d active, limit %d", ErrTooManyRuns, active, e.maxConcurrent)
	}

	source := opts.Source
	if source == "" {
		source, err = e.identities.LatestSource()
		if err != nil {
			return nil, err
		}
		if source == "" {
			return nil, ErrNoIdentities
		}
	}

	scorerName := opts.Scorer
	if scorerName == "" {
		scorerName = pol.Scorer
	}
	// Build the scorer once up front so misconfiguration surfaces on the
	// trigger request rather than as a failed run.
	if _, err := e.registry.Get(scorerName); err != nil {
		return nil, err
	}

	run := &model.ReviewRun{
		Trigger:       opts.Trigger,
		Status:        model.RunStatusPending,
		Scorer:        scorerName,
		Source:        source,
		PolicyVersion: version,
		BatchSize:     pol.BatchSize,
		Parallelism:   pol.Parallelism,
	}
	workflow := model.WorkflowStages()
	stages := make([]model.StageRun, 0, len(workflow))
	for _, stage := range workflow {
		stages = append(stages, model.StageRun{
			Stage:   stage,
			Status:  model.RunStatusPending,
			Attempt: 1,
		})
	}
	if err := e.runs.CreateRun(run, stages); err != nil {
		return nil, err
	}

	actor, clientIP := actorFrom(ctx, opts.Trigger)
	audit.Log(audit.RunEvent{
		Actor:     actor,
		ClientIP:  clientIP,
		RunID:     run.ID,
		Trigger:   run.Trigger.String(),
		Scorer:    scorerName,
		Operation: "trigger",
	})

	e.wg.Add(1)
	go e.executeRun(run.ID, pol, scorerName, actor)

	return run, nil
}

// Cancel stops a pending or running run. The executing goroutine notices
// between stages and between scoring batches; pending stage rows are
// cancelled here. Returns store.ErrRunFinished when the run already
// reached a terminal state.
func (e *Engine) Cancel(ctx context.Context, runID string) (*model.ReviewRun, error) {
	run, err := e.runs.CancelRun(runID)
	if err != nil {
		return nil, err
	}

	// Best effort: the executor may be mid-stage, in which case it marks
	// its own row when it notices the cancellation.
	stages, err := e.runs.GetRunStages(runID)
	if err == nil {
		for i := range stages {
			if stages[i].Status == model.RunStatusPending {
				stages[i].Status = model.RunStatusCancelled
				_ = e.runs.UpdateStage(&stages[i])
			}
		}
	}

	actor, clientIP := actorFrom(ctx, run.Trigger)
	e.appendChain(ctx, runID, actor, audit.ActionRunCancelled, "", map[string]any{
		"cancelled_by": actor,
	})
	audit.Log(audit.RunEvent{
		Actor:     actor,
		ClientIP:  clientIP,
		RunID:     runID,
		Trigger:   run.Trigger.String(),
		Operation: "cancel",
	})
	servermon.ReviewRunsCount.WithLabelValues(run.Trigger.String(), run.Status.String()).Inc()
	return run, nil
}

// Wait blocks until all background run executions have finished. Used on
// shutdown so in-flight runs are not cut off mid-stage.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// resolvePolicy returns the policy a new run is governed by: the pinned
// stored version when one is requested, the installed policy otherwise.
func (e *Engine) resolvePolicy(pinned *int) (*policy.Policy, *int, error) {
	if pinned == nil {
		p, version := e.CurrentPolicy()
		return p, version, nil
	}
	if e.policies == nil {
		return nil, nil, errors.New("no policy store configured")
	}
	pv, err := e.policies.GetVersion(*pinned)
	if err != nil {
		return nil, nil, err
	}
	p, err := policy.Parse([]byte(pv.Raw))
	if err != nil {
		return nil, nil, fmt.Errorf("stored policy version %d: %w", pv.Version, err)
	}
	version := pv.Version
	return p, &version, nil
}

// actorFrom names the actor behind a request for audit records. Requests
// without an authenticated operator are attributed to the scheduler or
// the system depending on the trigger.
func actorFrom(ctx context.Context, trigger model.Trigger) (actor, clientIP string) {
	if op, ok := identity.Get(ctx); ok {
		actor = op.Login
		if op.RemoteIP != nil {
			clientIP = op.RemoteIP.String()
		}
		return actor, clientIP
	}
	if trigger == model.TriggerScheduled {
		return "scheduler", ""
	}
	return "system", ""
}
