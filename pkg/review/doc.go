// Package review runs the machine identity review pipeline.
//
// A review run walks five stages in a fixed order: parse loads the
// identities of the run's source, score fans batches out to the selected
// scorer, decide applies the review policy to every score, audit records
// each decision on the run's hash chain, and report rolls the totals up
// onto the run. Stage attempts are persisted individually, failed
// attempts are retried with backoff, and a hard scorer failure falls back
// to the policy's fallback scorer before the run is declared failed.
//
// The Engine is the entry point: TriggerRun validates the request,
// creates the run with its stage rows, and executes the workflow in a
// background goroutine. Cancel stops a pending or running run between
// stages and batches. The Scheduler triggers runs from the policy's cron
// schedule.
package review
