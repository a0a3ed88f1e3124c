package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
)

const (
	rotationMaxAge = 180 * 24 * time.Hour
	dormantAfter   = 90 * 24 * time.Hour
)

// Heuristic scores identities with a fixed, deterministic factor model:
//
//	+30  no IP restriction
//	+20  usage_count >= 100000 (+10 for >= 10000)
//	+15  name contains "prod" or "live"
//	+15  not rotated in over 180 days
//	+10  not used in over 90 days
//	+10  wildcard scope
//
// The total is clamped to the 0..100 score range.
type Heuristic struct{}

// NewHeuristic creates the heuristic scorer
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

// Name returns the scorer name
func (h *Heuristic) Name() string {
	return "heuristic"
}

// Score evaluates every identity in the batch
func (h *Heuristic) Score(ctx context.Context, batch []model.Identity) ([]Result, error) {
	now := time.Now()
	results := make([]Result, 0, len(batch))
	for _, ident := range batch {
		score, reasons := scoreIdentity(ident, now)
		results = append(results, Result{
			ExternalID: ident.ExternalID,
			RiskScore:  score,
			Reasons:    reasons,
		})
	}
	return results, nil
}

func scoreIdentity(ident model.Identity, now time.Time) (int, []string) {
	score := 0
	var reasons []string

	if !ident.Restricted() {
		score += 30
		reasons = append(reasons, "no IP restriction")
	}

	switch {
	case ident.UsageCount >= 100000:
		score += 20
		reasons = append(reasons, "very high usage volume")
	case ident.UsageCount >= 10000:
		score += 10
		reasons = append(reasons, "high usage volume")
	}

	if name := strings.ToLower(ident.Name); strings.Contains(name, "prod") || strings.Contains(name, "live") {
		score += 15
		reasons = append(reasons, "name suggests production use")
	}

	if staleRotation(ident, now) {
		score += 15
		reasons = append(reasons, "not rotated in over 180 days")
	}

	if ident.LastUsedAt != nil && now.Sub(*ident.LastUsedAt) > dormantAfter {
		score += 10
		reasons = append(reasons, "dormant for over 90 days")
	}

	if hasWildcardScope(ident.ScopeList()) {
		score += 10
		reasons = append(reasons, "wildcard scope")
	}

	return identity.ClampScore(score), reasons
}

// staleRotation is true when the key was last rotated over 180 days ago.
// A key that was never rotated counts once its record is that old.
func staleRotation(ident model.Identity, now time.Time) bool {
	if ident.RotatedAt != nil {
		return now.Sub(*ident.RotatedAt) > rotationMaxAge
	}
	return !ident.CreatedAt.IsZero() && now.Sub(ident.CreatedAt) > rotationMaxAge
}

func hasWildcardScope(scopes []string) bool {
	for _, scope := range scopes {
		if scope == "*" || strings.HasSuffix(scope, "/*") {
			return true
		}
	}
	return false
}
