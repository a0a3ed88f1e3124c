package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// canonicalColumn maps a CSV header cell to the field it feeds. Unknown
// columns are ignored.
func canonicalColumn(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "identity_id", "id", "key_id":
		return "external_id"
	case "key_name", "name":
		return "name"
	case "kind":
		return "kind"
	case "owner":
		return "owner"
	case "usage_count":
		return "usage_count"
	case "ip_restriction":
		return "ip_restriction"
	case "scopes":
		return "scopes"
	case "last_used_at":
		return "last_used_at"
	case "rotated_at":
		return "rotated_at"
	}
	return ""
}

// ReadCSV parses an uploaded CSV file. Columns are mapped by header name
// using the same aliases as the JSON reader; scopes cells are
// semicolon-separated. Unparseable cells mark the record, which Normalize
// then rejects with its position.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty document")
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[int]string)
	hasID := false
	for i, name := range header {
		canonical := canonicalColumn(name)
		if canonical == "" {
			continue
		}
		cols[i] = canonical
		if canonical == "external_id" {
			hasID = true
		}
	}
	if !hasID {
		return nil, errors.New("csv has no identity id column")
	}

	var recs []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		var rec Record
		for i, cell := range row {
			field, ok := cols[i]
			if !ok {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}

			switch field {
			case "external_id":
				rec.ExternalID = cell
			case "name":
				rec.Name = cell
			case "kind":
				rec.Kind = cell
			case "owner":
				rec.Owner = cell
			case "usage_count":
				n, err := strconv.ParseInt(cell, 10, 64)
				if err != nil {
					rec.setParseErr(fmt.Errorf("usage_count: %q is not a number", cell))
					continue
				}
				rec.UsageCount = n
			case "ip_restriction":
				restriction := cell
				rec.IPRestriction = &restriction
			case "scopes":
				rec.Scopes = splitScopes(cell)
			case "last_used_at":
				t, err := parseTime(cell)
				if err != nil {
					rec.setParseErr(fmt.Errorf("last_used_at: %w", err))
					continue
				}
				rec.LastUsedAt = &t
			case "rotated_at":
				t, err := parseTime(cell)
				if err != nil {
					rec.setParseErr(fmt.Errorf("rotated_at: %w", err))
					continue
				}
				rec.RotatedAt = &t
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (rec *Record) setParseErr(err error) {
	if rec.parseErr == nil {
		rec.parseErr = err
	}
}

func splitScopes(cell string) []string {
	var scopes []string
	for _, scope := range strings.Split(cell, ";") {
		scope = strings.TrimSpace(scope)
		if scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}
