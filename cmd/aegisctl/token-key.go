package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// tokenKeyCmd represents the token-key command
var tokenKeyCmd = &cobra.Command{
	Use:   "token-key",
	Short: "Manage the token signing key",
	Long:  `Manage the token signing key`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'token-key' requires a subcommand generate")
		fmt.Println()
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	rootCmd.AddCommand(tokenKeyCmd)

	// Here you will define your flags and configuration settings.

	// Cobra supports Persistent Flags which will work for this command
	// and all subcommands, e.g.:
	// tokenKeyCmd.PersistentFlags().String("foo", "", "A help for foo")

	// Cobra supports local flags which will only run when this command
	// is called directly, e.g.:
	// tokenKeyCmd.Flags().BoolP("toggle", "t", false, "Help message for toggle")
}
