package main

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

var linkDefPattern = regexp.MustCompile(`(?m)^\[[^\]]+\]:\s+\S+\s*$`)

// stripLinkDefinitions drops link definition lines from an entry body so
// release notes don't carry dangling references.
func stripLinkDefinitions(content string) string {
	lines := strings.Split(content, "\n")
	var result []string
	for _, line := range lines {
		if !linkDefPattern.MatchString(line) {
			result = append(result, line)
		}
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract a version's changelog entry",
	Long: `Extract the changelog content for a specific version.

The output is suitable for release notes: the version heading, its body
with link definitions stripped, and the version's own link definition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		version, _ := cmd.Flags().GetString("version")

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		changelog, err := Parse(content)
		if err != nil {
			return fmt.Errorf("parsing changelog: %w", err)
		}

		entry := changelog.FindVersion(version)
		if entry == nil {
			return fmt.Errorf("version %s not found in changelog", version)
		}

		heading := "## [" + entry.Version + "]"
		if entry.Date != "" {
			heading += " - " + entry.Date
		}
		if entry.Yanked {
			heading += " [YANKED]"
		}
		fmt.Printf("%s\n\n", heading)
		fmt.Print(stripLinkDefinitions(entry.Content))

		if url, ok := changelog.Links[entry.Version]; ok {
			fmt.Printf("\n\n[%s]: %s\n", entry.Version, url)
		}

		return nil
	},
}

type listedEntry struct {
	Version string `json:"version"`
	Date    string `json:"date,omitempty"`
	Yanked  bool   `json:"yanked,omitempty"`
	Changes int    `json:"changes"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all versions in the changelog",
	Long:  `List all version entries found in a Keep a Changelog file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		output, _ := cmd.Flags().GetString("output")

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		changelog, err := Parse(content)
		if err != nil {
			return fmt.Errorf("parsing changelog: %w", err)
		}

		if output == "json" {
			listed := make([]listedEntry, 0, len(changelog.Entries))
			for i := range changelog.Entries {
				e := &changelog.Entries[i]
				listed = append(listed, listedEntry{
					Version: e.Version,
					Date:    e.Date,
					Yanked:  e.Yanked,
					Changes: e.Changes(),
				})
			}
			out, err := json.MarshalIndent(listed, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		for i := range changelog.Entries {
			e := &changelog.Entries[i]
			switch {
			case e.Yanked:
				fmt.Printf("%s (%s) [YANKED]\n", e.Version, e.Date)
			case e.Date != "":
				fmt.Printf("%s (%s)\n", e.Version, e.Date)
			default:
				fmt.Println(e.Version)
			}
		}

		return nil
	},
}

func init() {
	extractCmd.Flags().StringP("file", "f", "CHANGELOG.md", "Path to the changelog file")
	extractCmd.Flags().StringP("version", "v", "", "Version to extract (with or without 'v' prefix)")
	_ = extractCmd.MarkFlagRequired("version")

	listCmd.Flags().StringP("file", "f", "CHANGELOG.md", "Path to the changelog file")
	listCmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(listCmd)
}
