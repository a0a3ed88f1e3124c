package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisid/aegisid/pkg/identity"
)

func TestReadJSONBareArray(t *testing.T) {
	doc := `[
		{"identity_id": "sk-prod-01", "key_name": "prod-payments", "usage_count": 250000},
		{"identity_id": "sk-test-01", "key_name": "test-suite", "usage_count": 500, "ip_restriction": "10.0.0.0/8"}
	]`

	recs, err := ReadJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "sk-prod-01", recs[0].ExternalID)
	assert.Equal(t, "prod-payments", recs[0].Name)
	assert.Equal(t, int64(250000), recs[0].UsageCount)
	assert.Nil(t, recs[0].IPRestriction)

	require.NotNil(t, recs[1].IPRestriction)
	assert.Equal(t, "10.0.0.0/8", *recs[1].IPRestriction)
}

func TestReadJSONWrapper(t *testing.T) {
	doc := `{"api_keys": [{"id": "sk-1", "name": "one"}, {"key_id": "sk-2"}]}`

	recs, err := ReadJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "sk-1", recs[0].ExternalID)
	assert.Equal(t, "one", recs[0].Name)
	assert.Equal(t, "sk-2", recs[1].ExternalID)
}

func TestReadJSONAliasPrecedence(t *testing.T) {
	doc := `[{"identity_id": "primary", "id": "secondary", "key_id": "tertiary", "key_name": "preferred", "name": "fallback"}]`

	recs, err := ReadJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "primary", recs[0].ExternalID)
	assert.Equal(t, "preferred", recs[0].Name)
}

func TestReadJSONDates(t *testing.T) {
	doc := `[{"id": "sk-1", "last_used_at": "2025-02-20T14:00:00Z", "rotated_at": "2024-06-01"}]`

	recs, err := ReadJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.NotNil(t, recs[0].LastUsedAt)
	require.NotNil(t, recs[0].RotatedAt)
	assert.Equal(t, 2024, recs[0].RotatedAt.Year())
}

func TestReadJSONErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"malformed", `{"api_keys": [`},
		{"wrong wrapper", `{"keys": []}`},
		{"scalar", `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadJSON(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestReadCSV(t *testing.T) {
	doc := strings.Join([]string{
		"key_id,key_name,kind,usage_count,ip_restriction,scopes,rotated_at",
		"sk-prod-01,prod-payments,api_key,250000,,read:*;write:billing,2024-01-15",
		"sk-test-01,test-suite,api_key,500,10.0.0.0/8,read:testing,2025-06-01",
	}, "\n")

	recs, err := ReadCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "sk-prod-01", recs[0].ExternalID)
	assert.Equal(t, "prod-payments", recs[0].Name)
	assert.Equal(t, int64(250000), recs[0].UsageCount)
	assert.Nil(t, recs[0].IPRestriction)
	assert.Equal(t, []string{"read:*", "write:billing"}, recs[0].Scopes)
	require.NotNil(t, recs[0].RotatedAt)

	require.NotNil(t, recs[1].IPRestriction)
	assert.Equal(t, "10.0.0.0/8", *recs[1].IPRestriction)
}

func TestReadCSVNoIDColumn(t *testing.T) {
	doc := "name,usage_count\nfoo,12\n"

	_, err := ReadCSV(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity id column")
}

func TestReadCSVBadCellSurfacesInNormalize(t *testing.T) {
	doc := strings.Join([]string{
		"identity_id,usage_count",
		"sk-1,not-a-number",
		"sk-2,40",
	}, "\n")

	recs, err := ReadCSV(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	_, rejected, err := NormalizeAll(recs, "upload")
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, 0, rejected[0].Index)
	assert.Contains(t, rejected[0].Error(), "usage_count")
}

func TestNormalize(t *testing.T) {
	restriction := "192.168.0.0/16"
	rec := Record{
		ExternalID:    "sk-live-02",
		Name:          "live-checkout",
		Kind:          "api_key",
		Owner:         "payments",
		UsageCount:    120000,
		IPRestriction: &restriction,
		Scopes:        []string{"charge:write"},
	}

	ident, err := Normalize(rec, "upload")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-02", ident.ExternalID)
	assert.Equal(t, identity.KindApiKey, ident.Kind)
	assert.Equal(t, "upload", ident.Source)
	assert.Equal(t, []string{"charge:write"}, ident.ScopeList())
	assert.True(t, ident.Restricted())
}

func TestNormalizeDefaults(t *testing.T) {
	ident, err := Normalize(Record{ExternalID: "sk-1"}, "rest")
	require.NoError(t, err)
	assert.Equal(t, identity.KindApiKey, ident.Kind)
	assert.Equal(t, "sk-1", ident.Name, "name defaults to the external id")
}

func TestNormalizeKindAliases(t *testing.T) {
	ident, err := Normalize(Record{ExternalID: "arn-1", Kind: "IAM-Role"}, "upload")
	require.NoError(t, err)
	assert.Equal(t, identity.KindIamRole, ident.Kind)
}

func TestNormalizeRejections(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr string
	}{
		{"missing id", Record{Name: "foo"}, "missing identity id"},
		{"blank id", Record{ExternalID: "   "}, "missing identity id"},
		{"unknown kind", Record{ExternalID: "x", Kind: "password"}, "unknown kind"},
		{"negative usage", Record{ExternalID: "x", UsageCount: -5}, "negative usage_count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.rec, "upload")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNormalizeAllCollects(t *testing.T) {
	recs := []Record{
		{ExternalID: "sk-1"},
		{Kind: "api_key"}, // no id
		{ExternalID: "sk-2", UsageCount: -1},
		{ExternalID: "sk-3"},
	}

	identities, rejected, err := NormalizeAll(recs, "upload")
	require.NoError(t, err)
	assert.Len(t, identities, 2)
	require.Len(t, rejected, 2)
	assert.Equal(t, 1, rejected[0].Index)
	assert.Equal(t, 2, rejected[1].Index)
}

func TestNormalizeAllEveryRecordInvalid(t *testing.T) {
	recs := []Record{
		{Kind: "api_key"},
		{UsageCount: -1},
	}

	_, rejected, err := NormalizeAll(recs, "upload")
	require.ErrorIs(t, err, ErrAllRecordsInvalid)
	assert.Len(t, rejected, 2)
}

func TestNormalizeAllEmptyInput(t *testing.T) {
	identities, rejected, err := NormalizeAll(nil, "upload")
	require.NoError(t, err)
	assert.Empty(t, identities)
	assert.Empty(t, rejected)
}

func TestRecordErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := RecordError{Index: 3, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "record 3: boom", err.Error())
}
