package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/policy"
)

// policyWatchCmd represents the policy watch command
var policyWatchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Watch a policy file and store a new version on every change",
	Long: `Watch a policy file and store a new version whenever it changes.

Each write to the file is parsed and, if valid, saved as a new policy
version. Edits that fail to parse are skipped without touching the active
policy. Unchanged content is deduplicated and produces no new version.

Example:
  aegisctl policy watch config/review-policy.yml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := watchPolicy(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to watch policy: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	policyCmd.AddCommand(policyWatchCmd)
}

func watchPolicy(filename string) error {
	database, err := db.Connect(db.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	policies := policy.NewGormStore(database)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s for policy changes\n", filename)

	err = policy.Watch(ctx, filename, func(p *policy.Policy) {
		stamp := time.Now().Format("2006-01-02 15:04:05")
		pv, created, err := policy.SaveVersion(policies, p, loadedBy())
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] Failed to save policy: %v\n", stamp, err)
			return
		}
		if !created {
			fmt.Printf("[%s] Policy unchanged; version %d already matches\n", stamp, pv.Version)
			return
		}
		fmt.Printf("[%s] Applied policy version %d (sha256 %s)\n", stamp, pv.Version, pv.SHA256)
	})
	if errors.Is(err, context.Canceled) {
		fmt.Println("\nStopped watching")
		return nil
	}
	return err
}
