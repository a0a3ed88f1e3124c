package ingest

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one identity as read from an upload or feed, before validation.
type Record struct {
	ExternalID    string
	Name          string
	Kind          string
	Owner         string
	UsageCount    int64
	IPRestriction *string
	Scopes        []string
	LastUsedAt    *time.Time
	RotatedAt     *time.Time
	Metadata      map[string]any

	// first cell-level parse problem, surfaced by Normalize
	parseErr error
}

// timeLayouts accepted for date fields.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// recordJSON carries every accepted field alias.
type recordJSON struct {
	IdentityID    string         `json:"identity_id"`
	ID            string         `json:"id"`
	KeyID         string         `json:"key_id"`
	KeyName       string         `json:"key_name"`
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Owner         string         `json:"owner"`
	UsageCount    *int64         `json:"usage_count"`
	IPRestriction *string        `json:"ip_restriction"`
	Scopes        []string       `json:"scopes"`
	LastUsedAt    string         `json:"last_used_at"`
	RotatedAt     string         `json:"rotated_at"`
	Metadata      map[string]any `json:"metadata"`
}

// UnmarshalJSON resolves the field aliases: identity_id wins over id over
// key_id, and key_name wins over name.
func (rec *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	rec.ExternalID = firstNonEmpty(raw.IdentityID, raw.ID, raw.KeyID)
	rec.Name = firstNonEmpty(raw.KeyName, raw.Name)
	rec.Kind = raw.Kind
	rec.Owner = raw.Owner
	if raw.UsageCount != nil {
		rec.UsageCount = *raw.UsageCount
	}
	rec.IPRestriction = raw.IPRestriction
	rec.Scopes = raw.Scopes
	rec.Metadata = raw.Metadata

	if raw.LastUsedAt != "" {
		t, err := parseTime(raw.LastUsedAt)
		if err != nil {
			rec.parseErr = fmt.Errorf("last_used_at: %w", err)
		} else {
			rec.LastUsedAt = &t
		}
	}
	if raw.RotatedAt != "" {
		t, err := parseTime(raw.RotatedAt)
		if err != nil && rec.parseErr == nil {
			rec.parseErr = fmt.Errorf("rotated_at: %w", err)
		} else if err == nil {
			rec.RotatedAt = &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
