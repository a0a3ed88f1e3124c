package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aegisid/aegisid/pkg/db"
	"github.com/aegisid/aegisid/pkg/ingest"
	gormstore "github.com/aegisid/aegisid/pkg/server/store/gorm"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest machine identities from a document or REST feed",
	Long: `Ingest machine identities into the database.

The source is either a local document or, with --url, a paginated REST
feed. A document is a JSON array of identity objects, an {"api_keys": [...]}
document, or a CSV file with an identity_id column. The format is picked
from the file extension unless --format says otherwise.

Example:
  aegisctl ingest config/api_keys.json
  aegisctl ingest keys.csv --source nightly-feed
  aegisctl ingest keys.json --run
  aegisctl ingest --url https://iam.example.com/v1/keys --token $FEED_TOKEN`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source, _ := cmd.Flags().GetString("source")
		format, _ := cmd.Flags().GetString("format")
		triggerRun, _ := cmd.Flags().GetBool("run")
		feedURL, _ := cmd.Flags().GetString("url")
		feedToken, _ := cmd.Flags().GetString("token")
		pageLimit, _ := cmd.Flags().GetInt("page-limit")

		if (feedURL == "") == (len(args) == 0) {
			fmt.Fprintln(os.Stderr, "Ingest takes either a file argument or --url, not both")
			os.Exit(1)
		}

		var (
			records []ingest.Record
			origin  string
			err     error
		)
		if feedURL != "" {
			if !cmd.Flags().Changed("source") {
				source = "rest"
			}
			origin = feedURL
			records, err = ingest.Fetch(context.Background(), feedURL, ingest.FetchOptions{
				Token:     feedToken,
				PageLimit: pageLimit,
			})
		} else {
			origin = args[0]
			records, err = readIdentityFile(args[0], format)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}

		if err := runIngest(records, origin, source, triggerRun); err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringP("source", "s", "upload", "Source tag recorded on the identities")
	ingestCmd.Flags().StringP("format", "f", "auto", "Document format (auto, json or csv)")
	ingestCmd.Flags().Bool("run", false, "Start a review run over the ingested source")
	ingestCmd.Flags().String("url", "", "Pull identities from a REST feed instead of a file")
	ingestCmd.Flags().String("token", "", "Bearer token for the REST feed")
	ingestCmd.Flags().Int("page-limit", 0, "Per-page record limit for the REST feed")
}

func readIdentityFile(path, format string) ([]ingest.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	if format == "auto" {
		format = "json"
		if strings.EqualFold(filepath.Ext(path), ".csv") {
			format = "csv"
		}
	}

	switch format {
	case "json":
		return ingest.ReadJSON(file)
	case "csv":
		return ingest.ReadCSV(file)
	}
	return nil, fmt.Errorf("unknown format %q (want auto, json or csv)", format)
}

func runIngest(records []ingest.Record, origin, source string, triggerRun bool) error {
	normalized, rejected, err := ingest.NormalizeAll(records, source)
	if err != nil {
		for _, rej := range rejected {
			fmt.Fprintf(os.Stderr, "record %d: %v\n", rej.Index, rej.Err)
		}
		return err
	}

	database, err := db.Connect(db.Config{})
	if err != nil {
		return err
	}

	identities := gormstore.NewIdentityStore(database)
	result, err := identities.UpsertIdentities(normalized)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %d identities from %s (source %q): %d created, %d updated\n",
		len(normalized), origin, source, result.Created, result.Updated)
	for _, rej := range rejected {
		fmt.Fprintf(os.Stderr, "skipped record %d: %v\n", rej.Index, rej.Err)
	}

	if !triggerRun {
		return nil
	}
	return startRun(database, runParams{source: source, watch: false})
}
