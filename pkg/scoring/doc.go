// Package scoring assigns risk scores to machine identities.
//
// All scorers implement the Scorer interface:
//
//	type Scorer interface {
//	    Name() string
//	    Score(ctx context.Context, batch []model.Identity) ([]Result, error)
//	}
//
// # Built-in Scorers
//
//   - heuristic: a deterministic factor model evaluated locally
//   - remote: the external scoring workflow API, with rate limiting,
//     retries, and tolerant parsing of LLM-produced response payloads
//
// # On-Demand Creation
//
// Scorers are created on demand through registered factories rather than
// being pre-built at startup. The remote scorer's factory fails when no
// credentials are configured, which lets a run fall back to the heuristic
// scorer per review policy.
//
// # Configuration
//
// Enabled scorers are configured via the AEGIS_SCORERS environment variable
// as a comma-separated list:
//
//	AEGIS_SCORERS=heuristic,remote
package scoring
