package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/juju/zaputil/zapctx"
	"go.uber.org/zap"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/scoring"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// maxStageAttempts bounds retries of a failing stage before the run is
// declared failed or, for the score stage, handed to the fallback scorer.
const maxStageAttempts = 3

// stageRetryBackoff scales the delay between stage attempts: 1x, 2x.
var stageRetryBackoff = time.Second

// errCancelled aborts a run mid-flight after Cancel marked it cancelled.
var errCancelled = errors.New("review run cancelled")

// fatalErr wraps errors retrying cannot fix.
type fatalErr struct {
	err error
}

func (e fatalErr) Error() string { return e.err.Error() }
func (e fatalErr) Unwrap() error { return e.err }

func fatal(err error) error { return fatalErr{err: err} }

func isFatal(err error) bool {
	var f fatalErr
	return errors.As(err, &f)
}

// runState carries one run's execution through its stages.
type runState struct {
	run   *model.ReviewRun
	pol   *policy.Policy
	actor string

	// scorer is the scorer in effect; it switches once to the policy's
	// fallback when the score stage exhausts its attempts.
	scorer       string
	usedFallback bool

	stageRows  map[model.Stage]*model.StageRun
	identities []model.Identity
	results    []scoring.Result
	findings   []model.Finding
}

// switchToFallback moves the run onto the policy's fallback scorer.
// Returns false when no distinct fallback is configured or it was already
// tried.
func (st *runState) switchToFallback() bool {
	fallback := st.pol.FallbackScorer
	if st.usedFallback || fallback == "" || fallback == st.scorer {
		return false
	}
	st.usedFallback = true
	st.scorer = fallback
	st.run.Scorer = fallback
	return true
}

// executeRun drives a run through the workflow stages. It runs detached
// from the triggering request so the run outlives the HTTP exchange.
func (e *Engine) executeRun(runID string, pol *policy.Policy, scorerName, actor string) {
	defer e.wg.Done()
	ctx := context.Background()

	run, err := e.runs.GetRun(runID)
	if err != nil {
		zapctx.Error(ctx, "failed to load triggered review run",
			zap.String("run_id", runID), zap.Error(err))
		return
	}
	st := &runState{
		run:       run,
		pol:       pol,
		actor:     actor,
		scorer:    scorerName,
		stageRows: make(map[model.Stage]*model.StageRun),
	}

	defer func() {
		if r := recover(); r != nil {
			zapctx.Error(ctx, "review run panicked",
				zap.String("run_id", runID), zap.Any("panic", r))
			e.failRun(ctx, st, fmt.Errorf("panic: %v", r))
		}
	}()

	now := time.Now()
	run.Status = model.RunStatusRunning
	run.StartedAt = &now
	if err := e.runs.UpdateRun(run); err != nil {
		zapctx.Error(ctx, "failed to mark review run running",
			zap.String("run_id", runID), zap.Error(err))
		return
	}

	rows, err := e.runs.GetRunStages(runID)
	if err != nil {
		e.failRun(ctx, st, fmt.Errorf("load stage rows: %w", err))
		return
	}
	for i := range rows {
		st.stageRows[rows[i].Stage] = &rows[i]
	}

	e.appendChain(ctx, runID, actor, audit.ActionRunStarted, "", map[string]any{
		"trigger": run.Trigger.String(),
		"scorer":  scorerName,
		"source":  run.Source,
	})

	for _, stage := range model.WorkflowStages() {
		if cancelled, err := e.isCancelled(runID); err == nil && cancelled {
			zapctx.Info(ctx, "review run cancelled", zap.String("run_id", runID))
			return
		}
		if err := e.executeStage(ctx, st, stage); err != nil {
			if errors.Is(err, errCancelled) {
				zapctx.Info(ctx, "review run cancelled", zap.String("run_id", runID),
					zap.Stringer("stage", stage))
				return
			}
			e.failRun(ctx, st, fmt.Errorf("%s: %w", stage, err))
			return
		}
	}

	e.finishRun(ctx, st)
}

// executeStage runs one stage to success or exhaustion. An exhausted
// score stage is retried once more on the fallback scorer.
func (e *Engine) executeStage(ctx context.Context, st *runState, stage model.Stage) error {
	attempt := 1
	err := e.stageAttempts(ctx, st, stage, &attempt)
	if err == nil || stage != model.StageScore || errors.Is(err, errCancelled) {
		return err
	}
	failed := st.scorer
	if !st.switchToFallback() {
		return err
	}
	zapctx.Warn(ctx, "scorer failed, switching to fallback",
		zap.String("run_id", st.run.ID),
		zap.String("scorer", failed),
		zap.String("fallback", st.scorer),
		zap.Error(err))
	servermon.ScoringFallbacksCount.Inc()
	return e.stageAttempts(ctx, st, stage, &attempt)
}

// stageAttempts tries a stage up to maxStageAttempts times with
// exponential backoff, persisting every attempt as its own stage row.
// The attempt counter stays monotonic across a fallback switch.
func (e *Engine) stageAttempts(ctx context.Context, st *runState, stage model.Stage, attempt *int) error {
	var lastErr error
	for try := 0; try < maxStageAttempts; try++ {
		if try > 0 {
			// Exponential backoff: 1s, 2s.
			time.Sleep(time.Duration(1<<uint(try-1)) * stageRetryBackoff)
		}

		row := st.stageRows[stage]
		if row == nil || row.Attempt != *attempt {
			row = &model.StageRun{
				RunID:   st.run.ID,
				Stage:   stage,
				Status:  model.RunStatusPending,
				Attempt: *attempt,
			}
			if err := e.runs.CreateStage(row); err != nil {
				return err
			}
			st.stageRows[stage] = row
		}

		started := time.Now()
		row.Status = model.RunStatusRunning
		row.StartedAt = &started
		if err := e.runs.UpdateStage(row); err != nil {
			return err
		}
		audit.Log(audit.StageEvent{
			RunID:   st.run.ID,
			Stage:   stage.String(),
			Status:  "running",
			Attempt: row.Attempt,
		})

		lastErr = e.runStage(ctx, st, stage)
		finished := time.Now()
		row.FinishedAt = &finished

		if lastErr == nil {
			row.Status = model.RunStatusSucceeded
			if err := e.runs.UpdateStage(row); err != nil {
				return err
			}
			audit.Log(audit.StageEvent{
				RunID:   st.run.ID,
				Stage:   stage.String(),
				Status:  "succeeded",
				Attempt: row.Attempt,
			})
			return nil
		}

		if errors.Is(lastErr, errCancelled) {
			row.Status = model.RunStatusCancelled
			_ = e.runs.UpdateStage(row)
			audit.Log(audit.StageEvent{
				RunID:   st.run.ID,
				Stage:   stage.String(),
				Status:  "cancelled",
				Attempt: row.Attempt,
			})
			return lastErr
		}

		row.Status = model.RunStatusFailed
		row.Error = lastErr.Error()
		if err := e.runs.UpdateStage(row); err != nil {
			return err
		}
		audit.Log(audit.StageEvent{
			RunID:        st.run.ID,
			Stage:        stage.String(),
			Status:       "failed",
			Attempt:      row.Attempt,
			ErrorMessage: lastErr.Error(),
		})
		zapctx.Warn(ctx, "review stage attempt failed",
			zap.String("run_id", st.run.ID),
			zap.Stringer("stage", stage),
			zap.Int("attempt", row.Attempt),
			zap.Error(lastErr))

		*attempt++
		if isFatal(lastErr) {
			break
		}
	}
	return lastErr
}

func (e *Engine) runStage(ctx context.Context, st *runState, stage model.Stage) error {
	switch stage {
	case model.StageParse:
		return e.stageParse(ctx, st)
	case model.StageScore:
		return e.stageScore(ctx, st)
	case model.StageDecide:
		return e.stageDecide(ctx, st)
	case model.StageAudit:
		return e.stageAudit(ctx, st)
	case model.StageReport:
		return e.stageReport(ctx, st)
	}
	return fatal(fmt.Errorf("unknown stage %q", stage))
}

// stageParse loads the run's identities and records how many there are to
// review.
func (e *Engine) stageParse(ctx context.Context, st *runState) error {
	identities, err := e.identities.ListIdentities(store.IdentityFilter{Source: st.run.Source})
	if err != nil {
		return err
	}
	if len(identities) == 0 {
		return fatal(fmt.Errorf("no identities to review for source %q", st.run.Source))
	}
	st.identities = identities
	st.run.TotalIdentities = len(identities)
	return e.runs.UpdateRun(st.run)
}

// stageScore builds the scorer in effect and scores every identity.
func (e *Engine) stageScore(ctx context.Context, st *runState) error {
	scorer, err := e.registry.Get(st.scorer)
	if err != nil {
		// A scorer that cannot be built will not build on retry either.
		return fatal(err)
	}
	results, err := e.scoreBatches(ctx, st, scorer)
	if err != nil {
		return err
	}
	st.results = results
	return nil
}

// stageDecide applies the review policy to every score and replaces the
// run's findings in one transaction.
func (e *Engine) stageDecide(ctx context.Context, st *runState) error {
	byExternalID := make(map[string]scoring.Result, len(st.results))
	for _, r := range st.results {
		byExternalID[r.ExternalID] = r
	}

	findings := make([]model.Finding, 0, len(st.identities))
	for _, ident := range st.identities {
		result, ok := byExternalID[ident.ExternalID]
		if !ok {
			return fatal(fmt.Errorf("identity %q was not scored", ident.ExternalID))
		}
		decision, band, reviewer := st.pol.Decide(ident, result.RiskScore)
		finding := model.Finding{
			RunID:      st.run.ID,
			IdentityID: ident.ID,
			RiskScore:  result.RiskScore,
			Band:       band,
			Decision:   decision,
			Reviewer:   reviewer,
			ScoredBy:   st.scorer,
		}
		finding.SetReasons(result.Reasons)
		findings = append(findings, finding)
	}

	if err := e.findings.ReplaceFindings(st.run.ID, findings); err != nil {
		return err
	}
	st.findings = findings
	for _, f := range findings {
		servermon.ReviewDecisionsCount.WithLabelValues(f.Decision.String()).Inc()
	}
	return nil
}

// stageAudit appends one chain record per decision. Decisions already on
// the chain are skipped, so a retried stage never double-records.
func (e *Engine) stageAudit(ctx context.Context, st *runState) error {
	recs, err := e.chain.Records(ctx, st.run.ID)
	if err != nil {
		return err
	}
	recorded := make(map[string]bool, len(recs))
	for _, rec := range recs {
		if rec.Action == audit.ActionDecision {
			recorded[rec.Subject] = true
		}
	}

	identByID := make(map[string]model.Identity, len(st.identities))
	for _, ident := range st.identities {
		identByID[ident.ID] = ident
	}

	for _, f := range st.findings {
		if recorded[f.IdentityID] {
			continue
		}
		ident := identByID[f.IdentityID]
		payload, err := audit.FindingPayload{
			IdentityID:    ident.ExternalID,
			RiskScore:     f.RiskScore,
			Decision:      f.Decision.String(),
			UsageCount:    ident.UsageCount,
			IPRestriction: ident.IPRestriction,
		}.Encode()
		if err != nil {
			return fatal(err)
		}
		if _, err := e.chain.Append(ctx, audit.Record{
			RunID:   st.run.ID,
			Actor:   f.Reviewer,
			Action:  audit.ActionDecision,
			Subject: f.IdentityID,
			Payload: payload,
		}); err != nil {
			return err
		}
		audit.Log(audit.DecisionEvent{
			RunID:      st.run.ID,
			IdentityID: ident.ExternalID,
			RiskScore:  f.RiskScore,
			Band:       f.Band.String(),
			Decision:   f.Decision.String(),
			Reviewer:   f.Reviewer,
		})
	}
	return nil
}

// stageReport rolls the decision totals up onto the run.
func (e *Engine) stageReport(ctx context.Context, st *runState) error {
	var approved, flagged, rotations int
	for _, f := range st.findings {
		switch f.Decision {
		case identity.DecisionApprove:
			approved++
		case identity.DecisionReview:
			flagged++
		case identity.DecisionRotate:
			flagged++
			rotations++
		}
	}
	st.run.Scored = len(st.findings)
	st.run.Approved = approved
	st.run.Flagged = flagged
	st.run.Rotations = rotations
	return e.runs.UpdateRun(st.run)
}

// finishRun marks the run succeeded and seals its lifecycle on the chain.
func (e *Engine) finishRun(ctx context.Context, st *runState) {
	now := time.Now()
	st.run.Status = model.RunStatusSucceeded
	st.run.FinishedAt = &now
	if err := e.runs.UpdateRun(st.run); err != nil {
		zapctx.Error(ctx, "failed to finalize review run",
			zap.String("run_id", st.run.ID), zap.Error(err))
	}

	e.appendChain(ctx, st.run.ID, st.actor, audit.ActionRunFinished, "", map[string]any{
		"scored":    st.run.Scored,
		"approved":  st.run.Approved,
		"flagged":   st.run.Flagged,
		"rotations": st.run.Rotations,
	})
	audit.Log(audit.RunEvent{
		Actor:     st.actor,
		RunID:     st.run.ID,
		Trigger:   st.run.Trigger.String(),
		Scorer:    st.run.Scorer,
		Operation: "finish",
		Scored:    st.run.Scored,
		Flagged:   st.run.Flagged,
	})
	servermon.ReviewRunsCount.WithLabelValues(st.run.Trigger.String(), st.run.Status.String()).Inc()
	servermon.ReviewRunDuration.Observe(st.run.Duration().Seconds())
	zapctx.Info(ctx, "review run finished",
		zap.String("run_id", st.run.ID),
		zap.Int("scored", st.run.Scored),
		zap.Int("flagged", st.run.Flagged))
}

// failRun marks the run failed, skips the stages that never ran, and
// seals the failure on the chain.
func (e *Engine) failRun(ctx context.Context, st *runState, cause error) {
	for _, stage := range model.WorkflowStages() {
		row := st.stageRows[stage]
		if row == nil || row.Status != model.RunStatusPending {
			continue
		}
		row.Status = model.RunStatusSkipped
		_ = e.runs.UpdateStage(row)
		audit.Log(audit.StageEvent{
			RunID:   st.run.ID,
			Stage:   stage.String(),
			Status:  "skipped",
			Attempt: row.Attempt,
		})
	}

	now := time.Now()
	st.run.Status = model.RunStatusFailed
	st.run.FinishedAt = &now
	st.run.Error = cause.Error()
	if err := e.runs.UpdateRun(st.run); err != nil {
		zapctx.Error(ctx, "failed to mark review run failed",
			zap.String("run_id", st.run.ID), zap.Error(err))
	}

	e.appendChain(ctx, st.run.ID, st.actor, audit.ActionRunFailed, "", map[string]any{
		"error": cause.Error(),
	})
	audit.Log(audit.RunEvent{
		Actor:        st.actor,
		RunID:        st.run.ID,
		Trigger:      st.run.Trigger.String(),
		Scorer:       st.run.Scorer,
		Operation:    "fail",
		ErrorMessage: cause.Error(),
	})
	servermon.ReviewRunsCount.WithLabelValues(st.run.Trigger.String(), st.run.Status.String()).Inc()
	servermon.ReviewRunDuration.Observe(st.run.Duration().Seconds())
	zapctx.Error(ctx, "review run failed",
		zap.String("run_id", st.run.ID), zap.Error(cause))
}

// isCancelled polls the stored run status, the cancellation signal for
// detached executors.
func (e *Engine) isCancelled(runID string) (bool, error) {
	run, err := e.runs.GetRun(runID)
	if err != nil {
		return false, err
	}
	return run.Status == model.RunStatusCancelled, nil
}

// appendChain best-effort appends a lifecycle record to the run's chain.
// Decision records go through stageAudit instead, where failures fail the
// stage.
func (e *Engine) appendChain(ctx context.Context, runID, actor, action, subject string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		zapctx.Warn(ctx, "failed to encode audit chain payload",
			zap.String("run_id", runID), zap.String("action", action), zap.Error(err))
		return
	}
	if _, err := e.chain.Append(ctx, audit.Record{
		RunID:   runID,
		Actor:   actor,
		Action:  action,
		Subject: subject,
		Payload: string(raw),
	}); err != nil {
		zapctx.Warn(ctx, "failed to append audit chain record",
			zap.String("run_id", runID), zap.String("action", action), zap.Error(err))
	}
}
