package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/juju/zaputil/zapctx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
)

// retryBackoff scales the delay between request retries: 1x, 2x, 4x.
var retryBackoff = time.Second

// Remote scores identities through the external scoring workflow API.
//
// The workflow's audit_json output is produced by an LLM and arrives as a
// string that may carry markdown fences, prose, or trailing commas; it is
// cleaned before parsing and entries that do not match the submitted batch
// are dropped.
type Remote struct {
	creds   config.ScoringCredentials
	client  *http.Client
	limiter *rate.Limiter
	retries int
}

// NewRemote creates the remote scorer with a request rate cap
func NewRemote(creds config.ScoringCredentials, rps float64, burst int) *Remote {
	return &Remote{
		creds:   creds,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		retries: 3,
	}
}

// Name returns the scorer name
func (r *Remote) Name() string {
	return "remote"
}

// remoteIdentity is the identity shape submitted to the workflow.
type remoteIdentity struct {
	IdentityID    string     `json:"identity_id"`
	KeyName       string     `json:"key_name"`
	Kind          string     `json:"kind"`
	UsageCount    int64      `json:"usage_count"`
	IPRestriction *string    `json:"ip_restriction"`
	Scopes        []string   `json:"scopes,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	RotatedAt     *time.Time `json:"rotated_at,omitempty"`
}

// remoteEntry is one scored identity in the workflow's audit_json output.
// Extra fields (decision, usage_count, ...) are ignored; the review policy
// decides decisions locally.
type remoteEntry struct {
	IdentityID string      `json:"identity_id"`
	RiskScore  json.Number `json:"risk_score"`
	Reasons    []string    `json:"reasons"`
}

// Score submits the batch to the workflow API and parses the scores out of
// its audit_json output.
func (r *Remote) Score(ctx context.Context, batch []model.Identity) ([]Result, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	submitted := make([]remoteIdentity, 0, len(batch))
	known := make(map[string]bool, len(batch))
	for _, ident := range batch {
		submitted = append(submitted, remoteIdentity{
			IdentityID:    ident.ExternalID,
			KeyName:       ident.Name,
			Kind:          ident.Kind.String(),
			UsageCount:    ident.UsageCount,
			IPRestriction: ident.IPRestriction,
			Scopes:        ident.ScopeList(),
			LastUsedAt:    ident.LastUsedAt,
			RotatedAt:     ident.RotatedAt,
		})
		known[ident.ExternalID] = true
	}

	reqBody, err := json.Marshal(map[string]any{
		"inputs": map[string]any{
			"api_keys_json_file": submitted,
		},
	})
	if err != nil {
		return nil, err
	}

	respBody, err := r.post(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Outputs struct {
			AuditJSON string `json:"audit_json"`
		} `json:"outputs"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return nil, fmt.Errorf("parse workflow response: %w", err)
	}
	if envelope.Outputs.AuditJSON == "" {
		return nil, errors.New("workflow response has no audit_json output")
	}

	cleaned, err := CleanLLMJSON(envelope.Outputs.AuditJSON)
	if err != nil {
		return nil, fmt.Errorf("clean audit_json: %w", err)
	}

	var entries []remoteEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("parse audit_json: %w", err)
	}

	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		if !known[entry.IdentityID] {
			zapctx.Warn(ctx, "dropping scoring entry for unknown identity",
				zap.String("identity_id", entry.IdentityID))
			continue
		}
		results = append(results, Result{
			ExternalID: entry.IdentityID,
			RiskScore:  identity.ClampScore(parseScore(entry.RiskScore)),
			Reasons:    entry.Reasons,
		})
	}
	return results, nil
}

func (r *Remote) post(ctx context.Context, body []byte) ([]byte, error) {
	runURL := fmt.Sprintf("%s/api/workflows/%s/run", r.creds.URL, r.creds.WorkflowID)

	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * retryBackoff):
			}
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, runURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+r.creds.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return respBody, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("workflow api returned %d", resp.StatusCode)
		default:
			return nil, fmt.Errorf("workflow api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}
	return nil, lastErr
}

func parseScore(num json.Number) int {
	if n, err := num.Int64(); err == nil {
		return int(n)
	}
	if f, err := num.Float64(); err == nil {
		return int(f + 0.5)
	}
	return 0
}

var trailingCommaRe = regexp.MustCompile(`,\s*([\]}])`)

// CleanLLMJSON extracts the JSON document from LLM output. Markdown code
// fences and surrounding prose are stripped and trailing commas removed.
func CleanLLMJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// Prefer the content of the first fenced block when present
	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			// drop the language tag line
			if end := strings.Index(rest[nl:], "```"); end >= 0 {
				s = rest[nl : nl+end]
			} else {
				s = rest[nl:]
			}
		}
	}

	first := strings.IndexAny(s, "[{")
	if first < 0 {
		return "", errors.New("no JSON payload found")
	}
	last := strings.LastIndexAny(s, "]}")
	if last < first {
		return "", errors.New("no JSON payload found")
	}
	s = s[first : last+1]

	s = trailingCommaRe.ReplaceAllString(s, "$1")

	if !json.Valid([]byte(s)) {
		return "", errors.New("payload is not valid JSON after cleaning")
	}
	return s, nil
}
