package main

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationError is a single validation issue. Line is zero for
// document-level issues.
type ValidationError struct {
	Line    int
	Message string
}

// ValidationResult holds all validation errors.
type ValidationResult struct {
	Errors []ValidationError
}

func (r *ValidationResult) add(line int, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a changelog follows Keep a Changelog spec",
	Long: `Validate that a changelog file follows the Keep a Changelog specification.

Checks include:
- File has a title (# Changelog)
- Has an [Unreleased] section
- Version entries use correct format: ## [X.Y.Z] - YYYY-MM-DD
- Dates are in ISO 8601 format (YYYY-MM-DD)
- Versions appear once and in descending order
- Change types are valid (Added, Changed, Deprecated, Removed, Fixed, Security)
- Link definitions exist for all versions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		result := Validate(content)

		if result.IsValid() {
			fmt.Println("✓ Changelog is valid")
			return nil
		}

		fmt.Printf("Found %d issue(s):\n\n", len(result.Errors))
		for _, e := range result.Errors {
			if e.Line > 0 {
				fmt.Printf("  Line %d: %s\n", e.Line, e.Message)
			} else {
				fmt.Printf("  %s\n", e.Message)
			}
		}

		os.Exit(1)
		return nil
	},
}

var (
	dateRegex    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	versionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	validTypes   = map[string]bool{
		"Added":      true,
		"Changed":    true,
		"Deprecated": true,
		"Removed":    true,
		"Fixed":      true,
		"Security":   true,
	}
)

// Validate checks a changelog against the Keep a Changelog spec.
func Validate(source []byte) *ValidationResult {
	result := &ValidationResult{}

	hasTitle := false
	hasUnreleased := false
	seen := make(map[string]int)
	var released []string

	for i, line := range strings.Split(string(source), "\n") {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if rest, ok := strings.CutPrefix(trimmed, "# "); ok {
			hasTitle = true
			if !strings.Contains(strings.ToLower(rest), "changelog") {
				result.add(lineNum, "Title should contain 'Changelog'")
			}
			continue
		}

		if strings.HasPrefix(trimmed, "## [") {
			version, date, ok := splitVersionLine(trimmed)
			if !ok {
				continue
			}
			if strings.EqualFold(version, "unreleased") {
				hasUnreleased = true
				continue
			}

			if first, dup := seen[version]; dup {
				result.add(lineNum, "Duplicate entry for version '%s' (first seen on line %d)", version, first)
			} else {
				seen[version] = lineNum
				released = append(released, version)
			}

			if !versionRegex.MatchString(version) {
				result.add(lineNum, "Version '%s' should follow semantic versioning (X.Y.Z)", version)
			}
			switch {
			case date == "":
				result.add(lineNum, "Version '%s' is missing a release date", version)
			case !dateRegex.MatchString(date):
				result.add(lineNum, "Date '%s' should be in ISO 8601 format (YYYY-MM-DD)", date)
			}
			continue
		}

		if changeType, ok := strings.CutPrefix(trimmed, "### "); ok {
			if !validTypes[changeType] {
				result.add(lineNum, "Invalid change type '%s'. Valid types: Added, Changed, Deprecated, Removed, Fixed, Security", changeType)
			}
		}
	}

	if !hasTitle {
		result.add(0, "Missing changelog title (# Changelog)")
	}
	if !hasUnreleased {
		result.add(0, "Missing [Unreleased] section")
	}

	for i := 1; i < len(released); i++ {
		prev, prevOK := versionKey(released[i-1])
		cur, curOK := versionKey(released[i])
		if prevOK && curOK && !keyLess(cur, prev) {
			result.add(seen[released[i]], "Version '%s' is out of order; entries must be newest first", released[i])
		}
	}

	if changelog, err := Parse(source); err == nil {
		for _, version := range released {
			if _, ok := changelog.Links[version]; !ok {
				result.add(0, "Missing link definition for version [%s]", version)
			}
		}
		if hasUnreleased {
			if _, ok := changelog.Links["Unreleased"]; !ok {
				result.add(0, "Missing link definition for [Unreleased]")
			}
		}
	}

	return result
}

// splitVersionLine picks the version and date out of a "## [x] - date"
// line. A trailing [YANKED] marker is tolerated.
func splitVersionLine(line string) (version, date string, ok bool) {
	rest := strings.TrimPrefix(line, "## [")
	end := strings.Index(rest, "]")
	if end < 1 {
		return "", "", false
	}
	version = rest[:end]

	tail := strings.TrimSpace(rest[end+1:])
	tail = strings.TrimSpace(strings.TrimSuffix(tail, "[YANKED]"))
	if after, found := strings.CutPrefix(tail, "- "); found {
		date = strings.TrimSpace(after)
	}
	return version, date, true
}

func versionKey(v string) ([3]int, bool) {
	parts := strings.Split(v, ".")
	var key [3]int
	if len(parts) != 3 {
		return key, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return key, false
		}
		key[i] = n
	}
	return key, true
}

func keyLess(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func init() {
	validateCmd.Flags().StringP("file", "f", "CHANGELOG.md", "Path to the changelog file")
	rootCmd.AddCommand(validateCmd)
}
