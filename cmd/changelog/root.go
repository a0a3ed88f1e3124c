package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Keep a Changelog parser and validator",
	Long: `Changelog tooling for the release flow.

Parses CHANGELOG.md in Keep a Changelog format, validates it in CI and
extracts per-version release notes for tagged builds.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
