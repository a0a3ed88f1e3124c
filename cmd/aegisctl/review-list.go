package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// reviewListCmd represents the review list command
var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review runs",
	Long: `List review runs, newest first.

Example:
  aegisctl review list
  aegisctl review list --limit 50`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		if err := listRuns(limit); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list runs: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	reviewCmd.AddCommand(reviewListCmd)
	reviewListCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
}

func listRuns(limit int) error {
	database, err := db.Connect(db.Config{})
	if err != nil {
		return err
	}

	runs := gormstore.NewRunStore(database)
	results, err := runs.ListRuns(limit, 0)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No review runs yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTRIGGER\tSOURCE\tSCORER\tSCORED\tFLAGGED\tROTATIONS\tCREATED")
	for _, run := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID, run.Status, run.Trigger, run.Source, run.Scorer,
			run.Scored, run.Flagged, run.Rotations,
			run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
