package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/server/store"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// auditExportCmd represents the audit export command
var auditExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's audit trail as a JSON document",
	Long: `Export a run's audit trail as a JSON document.

The document carries every chain record in sequence order plus a trailer
with the head hash and a freshly computed verification verdict. Without
--output the document is written to stdout.

Example:
  aegisctl audit export 1f0c9a2e-77b1-4f3e-9c67-0d64f1a2b3c4 -o audit.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		if err := exportAuditChain(args[0], output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export audit chain: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	auditCmd.AddCommand(auditExportCmd)
	auditExportCmd.Flags().StringP("output", "o", "", "Write the document to a file instead of stdout")
}

func exportAuditChain(runID, output string) error {
	database, err := db.Connect(db.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return err
	}

	if _, err := gormstore.NewRunStore(database).GetRun(runID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return fmt.Errorf("run %s not found", runID)
		}
		return err
	}

	doc, err := audit.NewChain(sqlDB).Export(context.Background(), runID)
	if err != nil {
		return err
	}

	if output == "" {
		fmt.Printf("%s\n", doc)
		return nil
	}
	if err := os.WriteFile(output, doc, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote audit document to %s\n", output)
	return nil
}
