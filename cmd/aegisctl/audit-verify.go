package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/server/store"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// auditVerifyCmd represents the audit verify command
var auditVerifyCmd = &cobra.Command{
	Use:   "verify <run-id>",
	Short: "Recompute a run's audit chain and check every link",
	Long: `Recompute a run's audit chain and check every link.

Each record's hash is recomputed from its payload and the previous hash,
starting from the genesis hash. The command exits non-zero if any record
fails to link.

Example:
  aegisctl audit verify 1f0c9a2e-77b1-4f3e-9c67-0d64f1a2b3c4`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := verifyAuditChain(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to verify audit chain: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
}

func verifyAuditChain(runID string) error {
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

	report, err := audit.NewChain(sqlDB).Verify(context.Background(), runID)
	if err != nil {
		return err
	}

	if !report.Valid {
		fmt.Println(color.RedString("✗ Chain diverged at record %d", report.DivergenceSeq))
		fmt.Println("Records from that sequence on cannot be trusted.")
		os.Exit(1)
	}

	fmt.Println(color.GreenString("✓ Chain verified: %d records, head %s", report.Records, report.HeadHash))
	return nil
}
