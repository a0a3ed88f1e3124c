package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/db"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the AegisID data for archival",
	Long: `Export the AegisID data necessary to archive or migrate an instance.

This command exports:
- Database dump (pg_dump)
- Audit trail documents for every finished review run

Example:
  aegisctl export
  aegisctl export --out-dir /backup --label nightly`,
	Run: func(cmd *cobra.Command, args []string) {
		outDir, _ := cmd.Flags().GetString("out-dir")
		label, _ := cmd.Flags().GetString("label")

		if label == "" {
			label = time.Now().Format("2006-01-02T15-04-05Z")
		}

		if err := runExport(outDir, label); err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("out-dir", "o", ".", "Output directory")
	exportCmd.Flags().StringP("label", "l", "", "Label for archive filename (default: timestamp)")
}

// exportRunsLimit caps how many runs a single export walks. Runs beyond it
// are still in the database dump, just without a standalone audit document.
const exportRunsLimit = 500

func runExport(outDir, label string) error {
	dbURL := db.URL()
	if dbURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Exporting to '%s'...\n", outDir)

	backupDir := filepath.Join(outDir, "backup")
	auditDir := filepath.Join(backupDir, "audit")
	if err := os.MkdirAll(auditDir, 0770); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Export database
	dbDump := filepath.Join(backupDir, "aegisid.db")
	fmt.Println("Exporting database...")
	pgDump := exec.Command("pg_dump", "-Fc", "-f", dbDump, dbURL)
	pgDump.Stderr = os.Stderr
	if err := pgDump.Run(); err != nil {
		return fmt.Errorf("pg_dump failed: %w", err)
	}

	// Export per-run audit documents
	fmt.Println("Exporting audit trails...")
	exported, err := exportAuditTrails(auditDir)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d audit trail(s)\n", exported)

	// Create archive
	archiveFile := filepath.Join(outDir, label+".tar.xz")
	fmt.Println("Creating archive...")
	tar := exec.Command("tar", "Jcf", archiveFile, "-C", outDir, "backup")
	tar.Stderr = os.Stderr
	if err := tar.Run(); err != nil {
		return fmt.Errorf("tar failed: %w", err)
	}

	// Cleanup temporary files
	_ = os.RemoveAll(backupDir)

	fmt.Println()
	fmt.Printf("Export placed in %s\n", archiveFile)
	return nil
}

func exportAuditTrails(auditDir string) (int, error) {
	database, err := db.Connect(db.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		return 0, err
	}
	chain := audit.NewChain(sqlDB)

	runs, err := gormstore.NewRunStore(database).ListRuns(exportRunsLimit, 0)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, run := range runs {
		if !run.Status.Terminal() {
			continue
		}
		doc, err := chain.Export(context.Background(), run.ID)
		if err != nil {
			return exported, fmt.Errorf("failed to export run %s: %w", run.ID, err)
		}
		name := filepath.Join(auditDir, run.ID+".json")
		if err := os.WriteFile(name, doc, 0o600); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}
