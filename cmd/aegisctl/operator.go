package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// operatorCmd represents the operator command
var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage API operators",
	Long:  `Manage the operators allowed to authenticate against the API.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'operator' requires a subcommand (create)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(operatorCmd)
}
