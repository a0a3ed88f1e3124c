package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ReadJSON parses an uploaded identity document. It accepts either a bare
// JSON array of identity objects or the {"api_keys": [...]} wrapper the
// dashboard posts.
func ReadJSON(r io.Reader) ([]Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty document")
	}

	if trimmed[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("parse identities: %w", err)
		}
		return recs, nil
	}

	var doc struct {
		APIKeys []Record `json:"api_keys"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("parse identities: %w", err)
	}
	if doc.APIKeys == nil {
		return nil, errors.New(`document has no "api_keys" array`)
	}
	return doc.APIKeys, nil
}
