package review

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/scoring"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// scoreBatches splits the run's identities into policy-sized batches,
// scores them with bounded parallelism, and reassembles the results in
// input order. Every batch must come back complete; a scorer that drops
// identities fails the stage.
func (e *Engine) scoreBatches(ctx context.Context, st *runState, scorer scoring.Scorer) ([]scoring.Result, error) {
	batches := chunkIdentities(st.identities, st.run.BatchSize)
	out := make([][]scoring.Result, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	parallelism := st.run.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	g.SetLimit(parallelism)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if cancelled, err := e.isCancelled(st.run.ID); err == nil && cancelled {
				return errCancelled
			}

			stop := servermon.DurationObserver(servermon.ScoringRequestDuration, scorer.Name())
			results, err := scorer.Score(gctx, batch)
			stop()
			if err != nil {
				servermon.ScoringRequestsCount.WithLabelValues(scorer.Name(), "error").Inc()
				return fmt.Errorf("score batch %d: %w", i+1, err)
			}
			servermon.ScoringRequestsCount.WithLabelValues(scorer.Name(), "ok").Inc()

			if len(results) != len(batch) {
				return fmt.Errorf("batch %d: scorer returned %d results for %d identities",
					i+1, len(results), len(batch))
			}
			out[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	flat := make([]scoring.Result, 0, len(st.identities))
	for _, results := range out {
		flat = append(flat, results...)
	}
	return flat, nil
}

// chunkIdentities splits identities into batches of at most size. A size
// below one yields a single batch.
func chunkIdentities(identities []model.Identity, size int) [][]model.Identity {
	if size < 1 {
		size = len(identities)
	}
	var batches [][]model.Identity
	for start := 0; start < len(identities); start += size {
		end := start + size
		if end > len(identities) {
			end = len(identities)
		}
		batches = append(batches, identities[start:end])
	}
	return batches
}
