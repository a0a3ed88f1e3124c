package policy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
)

// ReviewerSimulated is the only reviewer currently implemented. It applies
// the policy's reviewer settings deterministically instead of waiting on a
// human.
const ReviewerSimulated = model.ReviewerSimulated

// Policy controls how a review run scores identities and decides findings.
type Policy struct {
	Version    int        `yaml:"version"`
	Thresholds Thresholds `yaml:"thresholds"`

	// Scorer names the scorer a run uses. FallbackScorer is switched to
	// when the primary scorer fails hard; empty disables the fallback.
	Scorer         string `yaml:"scorer"`
	FallbackScorer string `yaml:"fallback_scorer"`

	BatchSize   int `yaml:"batch_size"`
	Parallelism int `yaml:"parallelism"`

	Reviewer  Reviewer   `yaml:"reviewer"`
	Overrides []Override `yaml:"overrides"`

	// Schedule is an optional cron expression (or descriptor such as
	// "@daily") that triggers scheduled runs. Empty disables scheduling.
	Schedule string `yaml:"schedule"`

	raw        []byte
	sha256     string
	sourcePath string
}

// Thresholds splits risk scores into bands: a score below Review is low,
// a score at or above Rotate is high, anything between needs review.
type Thresholds struct {
	Review int `yaml:"review"`
	Rotate int `yaml:"rotate"`
}

// BandOf maps a score onto a band using these thresholds.
func (t Thresholds) BandOf(score int) identity.Band {
	return identity.BandOf(score, t.Review, t.Rotate)
}

// Reviewer configures the simulated reviewer that handles medium-band
// findings.
type Reviewer struct {
	Name string `yaml:"name"`

	// ApproveMediumUpTo is the score below which the simulated reviewer
	// approves a medium-band finding. At or above it the finding stays at
	// review.
	ApproveMediumUpTo int `yaml:"approve_medium_up_to"`

	// AlwaysRotateKinds forces rotate for findings of the named identity
	// kinds regardless of band.
	AlwaysRotateKinds []string `yaml:"always_rotate_kinds"`
}

// AlwaysRotate reports whether the reviewer forces rotation for the kind.
func (r Reviewer) AlwaysRotate(kind identity.Kind) bool {
	for _, k := range r.AlwaysRotateKinds {
		if strings.EqualFold(k, kind.String()) {
			return true
		}
	}
	return false
}

// Override forces a decision for identities matching its criteria,
// bypassing the band decision and the reviewer.
type Override struct {
	Match    Match  `yaml:"match"`
	Decision string `yaml:"decision"`
}

// Match selects identities for an override. All set criteria must hold;
// unset criteria match anything. NameContains is case-insensitive.
type Match struct {
	NameContains string `yaml:"name_contains"`
	Kind         string `yaml:"kind"`
	Source       string `yaml:"source"`
}

func (m Match) empty() bool {
	return m.NameContains == "" && m.Kind == "" && m.Source == ""
}

// Matches reports whether the identity satisfies every set criterion.
func (m Match) Matches(ident model.Identity) bool {
	if m.empty() {
		return false
	}
	if m.NameContains != "" &&
		!strings.Contains(strings.ToLower(ident.Name), strings.ToLower(m.NameContains)) {
		return false
	}
	if m.Kind != "" && !strings.EqualFold(m.Kind, ident.Kind.String()) {
		return false
	}
	if m.Source != "" && m.Source != ident.Source {
		return false
	}
	return true
}

// OverrideFor returns the decision forced by the first override matching
// the identity, if any.
func (p *Policy) OverrideFor(ident model.Identity) (identity.Decision, bool) {
	for _, o := range p.Overrides {
		if !o.Match.Matches(ident) {
			continue
		}
		d, err := identity.DecisionString(o.Decision)
		if err != nil {
			continue
		}
		return d, true
	}
	return identity.DecisionApprove, false
}

// Decide resolves the final decision for one scored identity: overrides
// first, then the reviewer's always-rotate kinds, then the band decision
// with the simulated reviewer applied to medium findings. The returned
// reviewer label records who decided.
func (p *Policy) Decide(ident model.Identity, score int) (identity.Decision, identity.Band, string) {
	band := p.Thresholds.BandOf(score)

	if d, ok := p.OverrideFor(ident); ok {
		return d, band, model.ReviewerOverride
	}
	if p.Reviewer.AlwaysRotate(ident.Kind) {
		return identity.DecisionRotate, band, ReviewerSimulated
	}

	switch band {
	case identity.BandMedium:
		if score < p.Reviewer.ApproveMediumUpTo {
			return identity.DecisionApprove, band, ReviewerSimulated
		}
		return identity.DecisionReview, band, ReviewerSimulated
	default:
		return band.DefaultDecision(), band, model.ReviewerAuto
	}
}

// SHA256 returns the hex digest of the source document, or an empty string
// for a policy that was built in code rather than parsed.
func (p *Policy) SHA256() string { return p.sha256 }

// Raw returns the source document the policy was parsed from.
func (p *Policy) Raw() []byte { return p.raw }

// SourcePath returns the file the policy was loaded from, if any.
func (p *Policy) SourcePath() string { return p.sourcePath }

// Default returns the policy used when no document is loaded: default
// thresholds, the heuristic scorer, and a simulated reviewer that approves
// medium findings scoring below 45.
func Default() *Policy {
	return &Policy{
		Version: 1,
		Thresholds: Thresholds{
			Review: identity.ReviewThreshold,
			Rotate: identity.RotateThreshold,
		},
		Scorer:         "heuristic",
		FallbackScorer: "heuristic",
		BatchSize:      50,
		Parallelism:    4,
		Reviewer: Reviewer{
			Name:              ReviewerSimulated,
			ApproveMediumUpTo: 45,
		},
	}
}

// Parse decodes and validates a review policy document. Fields absent from
// the document keep their Default values. Unknown fields are rejected.
func Parse(raw []byte) (*Policy, error) {
	p := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(p); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("review policy is empty")
		}
		return nil, fmt.Errorf("parse review policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	p.raw = append([]byte(nil), raw...)
	p.sha256 = hex.EncodeToString(sum[:])
	return p, nil
}

// Load reads and parses the review policy at path.
func Load(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read review policy: %w", err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.sourcePath = path
	return p, nil
}

// Validate checks the policy's invariants. Parse calls it on every parsed
// document; call it directly for policies built in code.
func (p *Policy) Validate() error {
	if p.Version < 1 {
		return fmt.Errorf("version must be at least 1, got %d", p.Version)
	}
	if p.Thresholds.Review < identity.MinScore || p.Thresholds.Review > identity.MaxScore {
		return fmt.Errorf("thresholds: review %d is outside %d..%d",
			p.Thresholds.Review, identity.MinScore, identity.MaxScore)
	}
	if p.Thresholds.Rotate < identity.MinScore || p.Thresholds.Rotate > identity.MaxScore {
		return fmt.Errorf("thresholds: rotate %d is outside %d..%d",
			p.Thresholds.Rotate, identity.MinScore, identity.MaxScore)
	}
	if p.Thresholds.Review >= p.Thresholds.Rotate {
		return fmt.Errorf("thresholds: review (%d) must be below rotate (%d)",
			p.Thresholds.Review, p.Thresholds.Rotate)
	}
	if p.Scorer == "" {
		return errors.New("scorer must not be empty")
	}
	if p.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", p.BatchSize)
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", p.Parallelism)
	}
	if p.Reviewer.Name != ReviewerSimulated {
		return fmt.Errorf("unknown reviewer %q", p.Reviewer.Name)
	}
	if p.Reviewer.ApproveMediumUpTo < identity.MinScore || p.Reviewer.ApproveMediumUpTo > identity.MaxScore {
		return fmt.Errorf("reviewer: approve_medium_up_to %d is outside %d..%d",
			p.Reviewer.ApproveMediumUpTo, identity.MinScore, identity.MaxScore)
	}
	for _, k := range p.Reviewer.AlwaysRotateKinds {
		if _, err := identity.KindString(k); err != nil {
			return fmt.Errorf("reviewer: unknown identity kind %q", k)
		}
	}
	for i, o := range p.Overrides {
		if o.Match.empty() {
			return fmt.Errorf("override %d has an empty match", i+1)
		}
		if o.Match.Kind != "" {
			if _, err := identity.KindString(o.Match.Kind); err != nil {
				return fmt.Errorf("override %d: unknown identity kind %q", i+1, o.Match.Kind)
			}
		}
		if o.Decision == "" {
			return fmt.Errorf("override %d has no decision", i+1)
		}
		if _, err := identity.DecisionString(o.Decision); err != nil {
			return fmt.Errorf("override %d: unknown decision %q", i+1, o.Decision)
		}
	}
	if p.Schedule != "" {
		if _, err := cron.ParseStandard(p.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", p.Schedule, err)
		}
	}
	return nil
}
