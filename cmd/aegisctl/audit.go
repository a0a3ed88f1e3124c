package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify and export hash-chained audit trails",
	Long:  `Verify and export the hash-chained audit trail of a review run.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'audit' requires a subcommand (verify, export)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}
