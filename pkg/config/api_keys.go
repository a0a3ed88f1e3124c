package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DefaultScoringURL is the hosted workflow platform endpoint used when the
// credentials file does not name one.
const DefaultScoringURL = "https://workflow.opus.ai"

// ScoringCredentials holds the external scoring API credentials, normally
// read from config/api_keys.json.
type ScoringCredentials struct {
	URL        string `json:"url"`
	WorkflowID string `json:"workflow_id"`
	APIKey     string `json:"api_key"`
}

type apiKeysFile struct {
	ScoringAPI ScoringCredentials `json:"scoring_api"`
}

// LoadScoringCredentials reads the credentials file at path and applies
// environment overrides (AEGIS_SCORING_URL, AEGIS_WORKFLOW_ID,
// AEGIS_SCORING_API_KEY). A missing file is not an error; a malformed one is.
func LoadScoringCredentials(path string) (*ScoringCredentials, error) {
	creds := &ScoringCredentials{URL: DefaultScoringURL}

	if data, err := os.ReadFile(path); err == nil {
		var file apiKeysFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse api keys file %s: %w", path, err)
		}
		if file.ScoringAPI.URL != "" {
			creds.URL = file.ScoringAPI.URL
		}
		creds.WorkflowID = file.ScoringAPI.WorkflowID
		creds.APIKey = file.ScoringAPI.APIKey
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read api keys file %s: %w", path, err)
	}

	if val := os.Getenv("AEGIS_SCORING_URL"); val != "" {
		creds.URL = val
	}
	if val := os.Getenv("AEGIS_WORKFLOW_ID"); val != "" {
		creds.WorkflowID = val
	}
	if val := os.Getenv("AEGIS_SCORING_API_KEY"); val != "" {
		creds.APIKey = val
	}

	creds.URL = strings.TrimRight(creds.URL, "/")
	return creds, nil
}

// Complete reports whether enough is present to call the remote scorer.
func (c *ScoringCredentials) Complete() bool {
	return c != nil && c.URL != "" && c.WorkflowID != "" && c.APIKey != ""
}
