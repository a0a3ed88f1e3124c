package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/policy"
)

// policyApplyCmd represents the policy apply command
var policyApplyCmd = &cobra.Command{
	Use:   "apply <file>",
	Short: "Validate a policy file and store it as the current version",
	Long: `Validate a policy file and store it as the current version.

The file is parsed and checked before anything is written. Versions are
deduplicated by content hash: applying an unchanged file is a no-op. A
running server picks the new version up on its next start, or when the
policy is activated through the API.

Example:
  aegisctl policy apply config/review-policy.yml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := applyPolicy(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to apply policy: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	policyCmd.AddCommand(policyApplyCmd)
}

func applyPolicy(path string) error {
	p, err := policy.Load(path)
	if err != nil {
		return err
	}

	database, err := db.Connect(db.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	pv, created, err := policy.SaveVersion(policy.NewGormStore(database), p, loadedBy())
	if err != nil {
		return err
	}
	if !created {
		fmt.Printf("Policy unchanged; version %d already matches %s\n", pv.Version, path)
		return nil
	}
	fmt.Printf("Applied policy version %d (sha256 %s)\n", pv.Version, pv.SHA256)
	return nil
}
