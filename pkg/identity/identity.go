package identity

//go:generate go run github.com/dmarkham/enumer -type Kind -trimprefix Kind -transform snake -json -sql -output kind.gen.go
//go:generate go run github.com/dmarkham/enumer -type Band -trimprefix Band -transform lower -json -sql -output band.gen.go
//go:generate go run github.com/dmarkham/enumer -type Decision -trimprefix Decision -transform lower -json -sql -output decision.gen.go

// Kind is the category of machine identity under review.
type Kind int

const (
	KindApiKey Kind = iota
	KindIamRole
	KindServiceAccount
)

// Band is the risk band an identity's score falls into.
type Band int

const (
	BandLow Band = iota
	BandMedium
	BandHigh
)

// Decision is the outcome of reviewing a single identity.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionReview
	DecisionRotate
)

// Default band thresholds. A score below ReviewThreshold is low risk, a
// score at or above RotateThreshold is high risk, everything between needs
// review.
const (
	ReviewThreshold = 30
	RotateThreshold = 60
)

// MinScore and MaxScore bound the risk score range.
const (
	MinScore = 0
	MaxScore = 100
)

// BandOf maps a score onto a band using the given thresholds.
func BandOf(score, review, rotate int) Band {
	switch {
	case score >= rotate:
		return BandHigh
	case score >= review:
		return BandMedium
	default:
		return BandLow
	}
}

// DefaultBandOf maps a score onto a band using the default thresholds.
func DefaultBandOf(score int) Band {
	return BandOf(score, ReviewThreshold, RotateThreshold)
}

// DefaultDecision returns the decision a band carries before any policy
// override or reviewer intervention.
func (b Band) DefaultDecision() Decision {
	switch b {
	case BandHigh:
		return DecisionRotate
	case BandMedium:
		return DecisionReview
	default:
		return DecisionApprove
	}
}

// ClampScore forces a score into the MinScore..MaxScore range. Upstream
// scorers occasionally return values outside the contract.
func ClampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Flagged reports whether a decision requires operator attention.
func (d Decision) Flagged() bool {
	return d == DecisionReview || d == DecisionRotate
}
