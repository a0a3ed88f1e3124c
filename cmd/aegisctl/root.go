package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aegisctl",
	Short: "Control the AegisID review pipeline",
	Long: `aegisctl runs and operates the AegisID machine identity review pipeline:
the API server, database migrations, identity ingest, review runs, review
policies, and the tamper-evident audit trail.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
