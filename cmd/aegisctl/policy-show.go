package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/policy"
)

// policyShowCmd represents the policy show command
var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the currently applied review policy",
	Long: `Show the currently applied review policy.

Prints the metadata of the newest stored policy version followed by its
raw YAML. If no policy has ever been applied the built-in default policy
is in effect and nothing is stored.

Example:
  aegisctl policy show
  aegisctl policy show --output json`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		if err := showPolicy(output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to show policy: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyShowCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

func showPolicy(output string) error {
	database, err := db.Connect(db.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	p, pv, err := policy.LoadCurrent(policy.NewGormStore(database))
	if errors.Is(err, policy.ErrVersionNotFound) {
		fmt.Println("No policy has been applied; the built-in default is active.")
		return nil
	}
	if err != nil {
		return err
	}

	if output == "json" {
		out, err := json.MarshalIndent(struct {
			Version  int       `json:"version"`
			SHA256   string    `json:"sha256"`
			LoadedAt time.Time `json:"loaded_at"`
			LoadedBy string    `json:"loaded_by"`
			Schedule string    `json:"schedule,omitempty"`
			Raw      string    `json:"raw"`
		}{pv.Version, pv.SHA256, pv.LoadedAt, pv.LoadedBy, p.Schedule, pv.Raw}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Version:   %d\n", pv.Version)
	fmt.Printf("SHA-256:   %s\n", pv.SHA256)
	fmt.Printf("Loaded at: %s\n", pv.LoadedAt.Format(time.RFC3339))
	fmt.Printf("Loaded by: %s\n", pv.LoadedBy)
	if p.Schedule != "" {
		fmt.Printf("Schedule:  %s\n", p.Schedule)
	}
	fmt.Println()
	fmt.Print(pv.Raw)
	return nil
}
