package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server/store"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// reviewCmd represents the review command
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run and inspect review runs",
	Long:  `Run and inspect review runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'review' requires a subcommand (run, list)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

// buildEngine wires a review engine over an open database connection and
// installs the stored policy, the same way the server does at boot.
func buildEngine(database *gorm.DB) (*review.Engine, store.RunStore, error) {
	sqlDB, err := database.DB()
	if err != nil {
		return nil, nil, err
	}

	runs := gormstore.NewRunStore(database)
	policies := policy.NewGormStore(database)
	engine := review.NewEngine(review.EngineParams{
		Identities:        gormstore.NewIdentityStore(database),
		Runs:              runs,
		Findings:          gormstore.NewFindingStore(database),
		Chain:             audit.NewChain(sqlDB),
		Policies:          policies,
		MaxConcurrentRuns: config.Get().MaxConcurrentRuns,
	})

	p, pv, err := policy.LoadCurrent(policies)
	switch {
	case err == nil:
		engine.SetPolicy(p, &pv.Version)
	case !errors.Is(err, policy.ErrVersionNotFound):
		return nil, nil, err
	}
	return engine, runs, nil
}

type runParams struct {
	source        string
	scorer        string
	policyVersion *int
	watch         bool
}

// startRun triggers a review run and blocks until it finishes. The run
// executes inside this process, so exiting early would kill it.
func startRun(database *gorm.DB, params runParams) error {
	engine, runs, err := buildEngine(database)
	if err != nil {
		return err
	}

	run, err := engine.TriggerRun(context.Background(), review.TriggerOptions{
		Trigger:       model.TriggerManual,
		Source:        params.source,
		Scorer:        params.scorer,
		PolicyVersion: params.policyVersion,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Review run %s started (source %q, scorer %q)\n", run.ID, run.Source, run.Scorer)

	if params.watch {
		watchRun(runs, run.ID)
	}
	engine.Wait()

	final, err := runs.GetRun(run.ID)
	if err != nil {
		return err
	}
	printRunSummary(final)

	if final.Status == model.RunStatusFailed {
		return errors.New(final.Error)
	}
	return nil
}

// watchRun shows a spinner tracking the run's current stage until it
// reaches a terminal state.
func watchRun(runs store.RunStore, id string) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " starting review..."
	_ = sp.Color("cyan")
	sp.Start()
	defer sp.Stop()

	for {
		time.Sleep(300 * time.Millisecond)

		run, err := runs.GetRun(id)
		if err != nil {
			continue
		}
		if run.Status.Terminal() {
			return
		}
		stages, err := runs.GetRunStages(id)
		if err != nil {
			continue
		}
		for _, stage := range stages {
			if stage.Status == model.RunStatusRunning {
				sp.Suffix = fmt.Sprintf(" %s: %d/%d scored", stage.Stage, run.Scored, run.TotalIdentities)
			}
		}
	}
}

func printRunSummary(run *model.ReviewRun) {
	status := color.GreenString("✓ succeeded")
	switch run.Status {
	case model.RunStatusFailed:
		status = color.RedString("✗ failed")
	case model.RunStatusCancelled:
		status = color.YellowString("cancelled")
	}

	fmt.Printf("\nRun %s %s in %s\n", run.ID, status, run.Duration().Round(time.Millisecond))
	fmt.Printf("  identities: %d  scored: %d\n", run.TotalIdentities, run.Scored)
	fmt.Printf("  %s  %s  %s\n",
		color.GreenString("approved: %d", run.Approved),
		color.YellowString("flagged: %d", run.Flagged),
		color.RedString("rotations: %d", run.Rotations))
	if run.Error != "" {
		fmt.Printf("  error: %s\n", run.Error)
	}
}
