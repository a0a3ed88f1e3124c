package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
)

// ErrAllRecordsInvalid is returned when a non-empty document yields no
// usable identities.
var ErrAllRecordsInvalid = errors.New("every record was rejected")

// RecordError reports a rejected record by its position in the source.
type RecordError struct {
	Index int
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

// Normalize validates a wire record and shapes it into an identity tagged
// with its source. The kind defaults to api_key.
func Normalize(rec Record, source string) (model.Identity, error) {
	if rec.parseErr != nil {
		return model.Identity{}, rec.parseErr
	}

	externalID := strings.TrimSpace(rec.ExternalID)
	if externalID == "" {
		return model.Identity{}, errors.New("missing identity id")
	}

	kind := identity.KindApiKey
	if rec.Kind != "" {
		raw := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(rec.Kind)), "-", "_")
		parsed, err := identity.KindString(raw)
		if err != nil {
			return model.Identity{}, fmt.Errorf("unknown kind %q", rec.Kind)
		}
		kind = parsed
	}

	if rec.UsageCount < 0 {
		return model.Identity{}, fmt.Errorf("negative usage_count %d", rec.UsageCount)
	}

	name := rec.Name
	if name == "" {
		name = externalID
	}

	ident := model.Identity{
		ExternalID:    externalID,
		Name:          name,
		Kind:          kind,
		Owner:         rec.Owner,
		Source:        source,
		UsageCount:    rec.UsageCount,
		IPRestriction: rec.IPRestriction,
		LastUsedAt:    rec.LastUsedAt,
		RotatedAt:     rec.RotatedAt,
	}
	ident.SetScopes(rec.Scopes)

	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return model.Identity{}, fmt.Errorf("metadata: %w", err)
		}
		ident.Metadata = string(raw)
	}
	return ident, nil
}

// NormalizeAll validates every record, collecting rejections rather than
// failing fast. Only a document whose every record is rejected errors.
func NormalizeAll(recs []Record, source string) ([]model.Identity, []RecordError, error) {
	identities := make([]model.Identity, 0, len(recs))
	var rejected []RecordError
	for i, rec := range recs {
		ident, err := Normalize(rec, source)
		if err != nil {
			rejected = append(rejected, RecordError{Index: i, Err: err})
			continue
		}
		identities = append(identities, ident)
	}
	if len(recs) > 0 && len(identities) == 0 {
		return nil, rejected, ErrAllRecordsInvalid
	}
	return identities, rejected, nil
}
