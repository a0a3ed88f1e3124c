package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
)

// reviewRunCmd represents the review run command
var reviewRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a review run and wait for it to finish",
	Long: `Start a review run over ingested identities and wait for it to finish.

Without --source the most recently ingested source is reviewed. The run
executes in this process using the stored review policy (or the built-in
default when none has been applied).

Example:
  aegisctl review run
  aegisctl review run --source nightly-feed --watch
  aegisctl review run --scorer heuristic`,
	Run: func(cmd *cobra.Command, args []string) {
		source, _ := cmd.Flags().GetString("source")
		scorer, _ := cmd.Flags().GetString("scorer")
		watch, _ := cmd.Flags().GetBool("watch")

		params := runParams{source: source, scorer: scorer, watch: watch}
		if cmd.Flags().Changed("policy-version") {
			version, _ := cmd.Flags().GetInt("policy-version")
			params.policyVersion = &version
		}

		database, err := db.Connect(db.Config{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Review run failed: %v\n", err)
			os.Exit(1)
		}

		if err := startRun(database, params); err != nil {
			fmt.Fprintf(os.Stderr, "Review run failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	reviewCmd.AddCommand(reviewRunCmd)
	reviewRunCmd.Flags().StringP("source", "s", "", "Review identities of one ingest source")
	reviewRunCmd.Flags().String("scorer", "", "Override the policy's scorer for this run")
	reviewRunCmd.Flags().Int("policy-version", 0, "Pin the run to a stored policy version")
	reviewRunCmd.Flags().BoolP("watch", "w", false, "Show live progress while the run executes")
}
