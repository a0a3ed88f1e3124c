package review

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/scoring"
	"github.com/aegisid/aegisid/pkg/server/store"
)

func scoreStageRows(t *testing.T, te *testEngine, runID string) []model.StageRun {
	t.Helper()
	rows, err := te.runs.GetRunStages(runID)
	require.NoError(t, err)
	var out []model.StageRun
	for _, row := range rows {
		if row.Stage == model.StageScore {
			out = append(out, row)
		}
	}
	return out
}

func TestTriggerRunHappyPath(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("uploads/keys.json", 3)
	te.register("stub", scoreBy(map[string]int{
		"ext-1": 10,
		"ext-2": 50,
		"ext-3": 85,
	}))
	te.usePolicy("stub", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Status)
	assert.Equal(t, "uploads/keys.json", run.Source)
	assert.Equal(t, "stub", run.Scorer)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)
	assert.Equal(t, 3, got.TotalIdentities)
	assert.Equal(t, 3, got.Scored)
	assert.Equal(t, 1, got.Approved)
	assert.Equal(t, 2, got.Flagged)
	assert.Equal(t, 1, got.Rotations)
	assert.Equal(t, got.Scored, got.Approved+got.Flagged)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	rows, err := te.runs.GetRunStages(run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, stage := range model.WorkflowStages() {
		assert.Equal(t, stage, rows[i].Stage)
		assert.Equal(t, model.RunStatusSucceeded, rows[i].Status)
		assert.Equal(t, 1, rows[i].Attempt)
	}

	findings, err := te.findings.ListFindings(run.ID, "")
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, identity.DecisionApprove, findings[0].Decision)
	assert.Equal(t, identity.BandLow, findings[0].Band)
	assert.Equal(t, identity.DecisionReview, findings[1].Decision)
	assert.Equal(t, identity.BandMedium, findings[1].Band)
	assert.Equal(t, identity.DecisionRotate, findings[2].Decision)
	assert.Equal(t, identity.BandHigh, findings[2].Band)
	for _, f := range findings {
		assert.Equal(t, "stub", f.ScoredBy)
		assert.Equal(t, []string{"stub"}, f.ReasonList())
	}

	assert.Equal(t, []string{
		audit.ActionRunStarted,
		audit.ActionDecision,
		audit.ActionDecision,
		audit.ActionDecision,
		audit.ActionRunFinished,
	}, te.chain.actions(run.ID))
}

func TestTriggerRunUsesPolicyScorerAndBatching(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("from-policy", scoreBy(nil))
	p := te.usePolicy("from-policy", "")
	p.BatchSize = 25
	p.Parallelism = 3

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	assert.Equal(t, "from-policy", run.Scorer)
	assert.Equal(t, 25, run.BatchSize)
	assert.Equal(t, 3, run.Parallelism)
	assert.Nil(t, run.PolicyVersion)
}

func TestTriggerRunScorerOverride(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("default-scorer", scoreBy(nil))
	te.register("override-scorer", scoreBy(nil))
	te.usePolicy("default-scorer", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{
		Trigger: model.TriggerManual,
		Scorer:  "override-scorer",
	})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "override-scorer", got.Scorer)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)
}

func TestTriggerRunUnknownScorer(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.usePolicy("stub", "")
	te.register("stub", scoreBy(nil))

	_, err := te.TriggerRun(context.Background(), TriggerOptions{Scorer: "no-such-scorer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-scorer")
	count, _ := te.runs.CountRuns()
	assert.Zero(t, count)
}

func TestTriggerRunNoIdentities(t *testing.T) {
	te := newTestEngine(t)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	_, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	assert.ErrorIs(t, err, ErrNoIdentities)
}

func TestTriggerRunConcurrencyLimit(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")
	require.NoError(t, te.runs.CreateRun(&model.ReviewRun{Status: model.RunStatusRunning}, nil))

	_, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	assert.ErrorIs(t, err, ErrTooManyRuns)
}

func TestTriggerRunPinnedPolicyVersion(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("pinned", scoreBy(nil))
	te.register("current", scoreBy(nil))
	te.usePolicy("current", "")
	require.NoError(t, te.policies.CreateVersion(&model.PolicyVersion{
		SHA256: "abc",
		Raw:    "scorer: pinned\nbatch_size: 7\n",
	}))

	pinned := 1
	run, err := te.TriggerRun(context.Background(), TriggerOptions{
		Trigger:       model.TriggerAPI,
		PolicyVersion: &pinned,
	})
	require.NoError(t, err)
	te.Wait()

	require.NotNil(t, run.PolicyVersion)
	assert.Equal(t, 1, *run.PolicyVersion)
	assert.Equal(t, "pinned", run.Scorer)
	assert.Equal(t, 7, run.BatchSize)
}

func TestTriggerRunUnknownPolicyVersion(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	pinned := 42
	_, err := te.TriggerRun(context.Background(), TriggerOptions{PolicyVersion: &pinned})
	assert.ErrorIs(t, err, policy.ErrVersionNotFound)
}

func TestRunRetriesTransientScorerFailure(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 2)
	var calls atomic.Int32
	te.register("flaky", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("upstream timeout")
		}
		return scoreBy(nil)(ctx, batch)
	})
	p := te.usePolicy("flaky", "")
	p.BatchSize = 10

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)

	rows := scoreStageRows(t, te, run.ID)
	require.Len(t, rows, 3)
	assert.Equal(t, model.RunStatusFailed, rows[0].Status)
	assert.Contains(t, rows[0].Error, "upstream timeout")
	assert.Equal(t, model.RunStatusFailed, rows[1].Status)
	assert.Equal(t, model.RunStatusSucceeded, rows[2].Status)
	for i, row := range rows {
		assert.Equal(t, i+1, row.Attempt)
	}
}

func TestRunFallsBackToFallbackScorer(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 2)
	te.register("primary", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		return nil, errors.New("workflow api returned 503")
	})
	te.register("stable", scoreBy(map[string]int{"ext-1": 70}))
	p := te.usePolicy("primary", "stable")
	p.BatchSize = 10

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	assert.Equal(t, "primary", run.Scorer)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)
	assert.Equal(t, "stable", got.Scorer)

	findings, err := te.findings.ListFindings(run.ID, "")
	require.NoError(t, err)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, "stable", f.ScoredBy)
	}

	// Three failed attempts on the primary, then one on the fallback.
	rows := scoreStageRows(t, te, run.ID)
	require.Len(t, rows, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, model.RunStatusFailed, rows[i].Status)
	}
	assert.Equal(t, model.RunStatusSucceeded, rows[3].Status)
	assert.Equal(t, 4, rows[3].Attempt)
}

func TestRunFailsWhenAllScorersExhausted(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("broken", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		return nil, errors.New("permanently down")
	})
	te.usePolicy("broken", "broken")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "score")
	assert.Contains(t, got.Error, "permanently down")
	require.NotNil(t, got.FinishedAt)

	rows, err := te.runs.GetRunStages(run.ID)
	require.NoError(t, err)
	byStage := make(map[model.Stage][]model.StageRun)
	for _, row := range rows {
		byStage[row.Stage] = append(byStage[row.Stage], row)
	}
	assert.Equal(t, model.RunStatusSucceeded, byStage[model.StageParse][0].Status)
	require.Len(t, byStage[model.StageScore], 3)
	for _, stage := range []model.Stage{model.StageDecide, model.StageAudit, model.StageReport} {
		require.Len(t, byStage[stage], 1)
		assert.Equal(t, model.RunStatusSkipped, byStage[stage][0].Status)
	}

	actions := te.chain.actions(run.ID)
	assert.Equal(t, []string{audit.ActionRunStarted, audit.ActionRunFailed}, actions)
}

func TestRunEmptySourceFailsWithoutRetry(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{
		Trigger: model.TriggerManual,
		Source:  "nonexistent",
	})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, `no identities to review for source "nonexistent"`)

	rows, err := te.runs.GetRunStages(run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, model.RunStatusFailed, rows[0].Status)
	assert.Equal(t, 1, rows[0].Attempt)
	for _, row := range rows[1:] {
		assert.Equal(t, model.RunStatusSkipped, row.Status)
	}
}

func TestRunFindingsFollowIdentityOrder(t *testing.T) {
	te := newTestEngine(t)
	externalIDs := te.seedIdentities("feed", 5)
	te.register("reversing", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		results, _ := scoreBy(nil)(ctx, batch)
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
		return results, nil
	})
	p := te.usePolicy("reversing", "")
	p.BatchSize = 2

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, model.RunStatusSucceeded, got.Status)

	findings, err := te.findings.ListFindings(run.ID, "")
	require.NoError(t, err)
	require.Len(t, findings, len(externalIDs))
	idents, err := te.identities.ListIdentities(store.IdentityFilter{Source: "feed"})
	require.NoError(t, err)
	for i, f := range findings {
		assert.Equal(t, idents[i].ID, f.IdentityID)
	}
}

func TestRunIncompleteScorerResultsFail(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 3)
	te.register("lossy", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		results, _ := scoreBy(nil)(ctx, batch)
		return results[:len(results)-1], nil
	})
	p := te.usePolicy("lossy", "")
	p.BatchSize = 10

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "returned 2 results for 3 identities")
}

func TestRunAuditStageIsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 3)
	te.register("stub", scoreBy(nil))
	p := te.usePolicy("stub", "")
	p.BatchSize = 10

	// Fail the second decision append once; the retried stage must skip
	// the decision that is already on the chain.
	var decisions, failures atomic.Int32
	te.chain.appendHook = func(rec audit.Record) error {
		if rec.Action != audit.ActionDecision {
			return nil
		}
		if decisions.Add(1) == 2 && failures.Add(1) == 1 {
			return errors.New("chain write lost")
		}
		return nil
	}

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)

	recs, err := te.chain.Records(context.Background(), run.ID)
	require.NoError(t, err)
	subjects := make(map[string]int)
	for _, rec := range recs {
		if rec.Action == audit.ActionDecision {
			subjects[rec.Subject]++
		}
	}
	require.Len(t, subjects, 3)
	for subject, n := range subjects {
		assert.Equal(t, 1, n, "identity %s recorded %d times", subject, n)
	}

	rows, err := te.runs.GetRunStages(run.ID)
	require.NoError(t, err)
	var auditRows []model.StageRun
	for _, row := range rows {
		if row.Stage == model.StageAudit {
			auditRows = append(auditRows, row)
		}
	}
	require.Len(t, auditRows, 2)
	assert.Equal(t, model.RunStatusFailed, auditRows[0].Status)
	assert.Equal(t, model.RunStatusSucceeded, auditRows[1].Status)
}

func TestCancelRunMidScore(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 2)
	scoreStarted := make(chan struct{}, 1)
	release := make(chan struct{})
	te.register("slow", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		select {
		case scoreStarted <- struct{}{}:
		default:
		}
		<-release
		return scoreBy(nil)(ctx, batch)
	})
	p := te.usePolicy("slow", "")
	p.BatchSize = 10

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	<-scoreStarted

	cancelled, err := te.Cancel(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, cancelled.Status)
	close(release)
	te.Wait()

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCancelled, got.Status)
	require.NotNil(t, got.FinishedAt)

	actions := te.chain.actions(run.ID)
	assert.Contains(t, actions, audit.ActionRunCancelled)
	assert.NotContains(t, actions, audit.ActionRunFinished)

	rows, err := te.runs.GetRunStages(run.ID)
	require.NoError(t, err)
	for _, row := range rows {
		switch row.Stage {
		case model.StageDecide, model.StageAudit, model.StageReport:
			assert.Equal(t, model.RunStatusCancelled, row.Status, "stage %s", row.Stage)
		}
	}
}

func TestCancelFinishedRun(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	_, err = te.Cancel(context.Background(), run.ID)
	assert.ErrorIs(t, err, store.ErrRunFinished)
}

func TestCancelUnknownRun(t *testing.T) {
	te := newTestEngine(t)
	_, err := te.Cancel(context.Background(), "no-such-run")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestCurrentPolicyDefaultsWhenUnset(t *testing.T) {
	te := newTestEngine(t)
	p, version := te.CurrentPolicy()
	require.NotNil(t, p)
	assert.Nil(t, version)
	assert.Equal(t, policy.Default().Thresholds, p.Thresholds)
}

func TestPolicyOverridesApplyToFindings(t *testing.T) {
	te := newTestEngine(t)
	te.identities.add(
		model.Identity{ExternalID: "legacy-1", Name: "legacy-billing", Source: "feed"},
		model.Identity{ExternalID: "fresh-1", Name: "fresh-key", Source: "feed"},
	)
	te.register("stub", scoreBy(map[string]int{"legacy-1": 5, "fresh-1": 5}))
	p := te.usePolicy("stub", "")
	p.Overrides = []policy.Override{
		{Match: policy.Match{NameContains: "legacy"}, Decision: "rotate"},
	}

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	findings, err := te.findings.ListFindings(run.ID, "")
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, identity.DecisionRotate, findings[0].Decision)
	assert.Equal(t, model.ReviewerOverride, findings[0].Reviewer)
	assert.Equal(t, identity.DecisionApprove, findings[1].Decision)
	assert.Equal(t, model.ReviewerAuto, findings[1].Reviewer)

	got, err := te.runs.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Rotations)
	assert.Equal(t, 1, got.Approved)
}

func TestWaitIsSafeWithNoRuns(t *testing.T) {
	te := newTestEngine(t)
	te.Wait()
}

func TestEngineParamsDefaults(t *testing.T) {
	e := NewEngine(EngineParams{MaxConcurrentRuns: -1})
	assert.Equal(t, int64(1), e.maxConcurrent)
	assert.Same(t, scoring.DefaultRegistry, e.registry)
}

func TestTriggerRunSourceSelection(t *testing.T) {
	te := newTestEngine(t)
	te.identities.add(model.Identity{ExternalID: "a", Source: "first.csv"})
	te.identities.add(model.Identity{ExternalID: "b", Source: "second.csv"})
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	t.Run("defaults to latest source", func(t *testing.T) {
		run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
		require.NoError(t, err)
		te.Wait()
		assert.Equal(t, "second.csv", run.Source)

		got, err := te.runs.GetRun(run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.TotalIdentities)
	})

	t.Run("explicit source wins", func(t *testing.T) {
		run, err := te.TriggerRun(context.Background(), TriggerOptions{
			Trigger: model.TriggerManual,
			Source:  "first.csv",
		})
		require.NoError(t, err)
		te.Wait()
		assert.Equal(t, "first.csv", run.Source)
	})
}

func TestRunsAreSequentialUnderDefaultLimit(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	blocked := make(chan struct{}, 1)
	release := make(chan struct{})
	te.register("slow", func(ctx context.Context, batch []model.Identity) ([]scoring.Result, error) {
		select {
		case blocked <- struct{}{}:
		default:
		}
		<-release
		return scoreBy(nil)(ctx, batch)
	})
	te.usePolicy("slow", "")

	first, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	<-blocked

	_, err = te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	assert.ErrorIs(t, err, ErrTooManyRuns)

	close(release)
	te.Wait()

	got, err := te.runs.GetRun(first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)

	second, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	te.Wait()
	got, err = te.runs.GetRun(second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, got.Status)
}

func TestRunEventActors(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	op := identity.OperatorFromClaims("casey", identity.RoleAdmin, time.Now(), time.Now().Add(time.Hour))
	ctx := identity.Set(context.Background(), op)
	run, err := te.TriggerRun(ctx, TriggerOptions{Trigger: model.TriggerAPI})
	require.NoError(t, err)
	te.Wait()

	recs, err := te.chain.Records(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, audit.ActionRunStarted, recs[0].Action)
	assert.Equal(t, "casey", recs[0].Actor)

	// Decision records are attributed to the reviewer, not the operator.
	for _, rec := range recs {
		if rec.Action == audit.ActionDecision {
			assert.Equal(t, model.ReviewerAuto, rec.Actor)
		}
	}
}

func TestScheduledRunActor(t *testing.T) {
	te := newTestEngine(t)
	te.seedIdentities("feed", 1)
	te.register("stub", scoreBy(nil))
	te.usePolicy("stub", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerScheduled})
	require.NoError(t, err)
	te.Wait()

	recs, err := te.chain.Records(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "scheduler", recs[0].Actor)
}

func TestChainPayloadCarriesFindingShape(t *testing.T) {
	te := newTestEngine(t)
	restriction := "10.0.0.0/8"
	te.identities.add(model.Identity{
		ExternalID:    "sk-prod-01",
		Name:          "prod-payments",
		Source:        "feed",
		UsageCount:    250000,
		IPRestriction: &restriction,
	})
	te.register("stub", scoreBy(map[string]int{"sk-prod-01": 91}))
	te.usePolicy("stub", "")

	run, err := te.TriggerRun(context.Background(), TriggerOptions{Trigger: model.TriggerManual})
	require.NoError(t, err)
	te.Wait()

	recs, err := te.chain.Records(context.Background(), run.ID)
	require.NoError(t, err)
	var payload string
	for _, rec := range recs {
		if rec.Action == audit.ActionDecision {
			payload = rec.Payload
		}
	}
	require.NotEmpty(t, payload)
	assert.JSONEq(t, fmt.Sprintf(`{
		"identity_id": "sk-prod-01",
		"risk_score": 91,
		"decision": "rotate",
		"usage_count": 250000,
		"ip_restriction": %q
	}`, restriction), payload)
}
