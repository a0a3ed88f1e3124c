package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the review policy",
	Long:  `Manage the review policy and its stored versions.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'policy' requires a subcommand (show, apply, watch)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(policyCmd)
}

// loadedBy names the principal recorded on policy versions applied from
// this machine.
func loadedBy() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "aegisctl"
}
