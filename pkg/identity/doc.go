// Package identity defines the machine-identity domain: the kinds of
// identities AegisID reviews, risk bands, review decisions, and the
// authenticated operator attached to a request context.
//
// # Machine identities vs operators
//
// A machine identity (API key, IAM role, service account) is the subject of
// review. An Operator is the human or automation principal driving the
// pipeline, authenticated with an API key and carried through request
// contexts as a bearer-token identity.
//
// # Basic Usage
//
//	// Build an operator from verified token claims
//	op := identity.OperatorFromClaims(login, role, issuedAt, expiresAt)
//
//	// Store in request context
//	ctx = identity.Set(ctx, op)
//
//	// Retrieve from context
//	op, ok := identity.Get(ctx)
//
// # Risk bands
//
// Scores are integers in 0..100 and map onto three bands:
//
//	score < 30    -> BandLow     (default decision: approve)
//	30 <= s < 60  -> BandMedium  (default decision: review)
//	score >= 60   -> BandHigh    (default decision: rotate)
//
// These thresholds are the pipeline defaults; a review policy may move them.
package identity
