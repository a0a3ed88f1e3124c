// Package policy provides review policy parsing, versioning, and reloading.
//
// A review policy is a YAML document that controls how a review run treats
// the identities it scores: the score thresholds that split findings into
// bands, which scorer to use, batching and parallelism, how the simulated
// reviewer handles medium-band findings, and overrides that force a decision
// for matching identities.
//
// # Policy Format
//
//	version: 1
//	thresholds:
//	  review: 30
//	  rotate: 60
//	scorer: remote
//	fallback_scorer: heuristic
//	batch_size: 50
//	parallelism: 4
//	reviewer:
//	  name: simulated
//	  approve_medium_up_to: 45
//	  always_rotate_kinds: [api_key]
//	overrides:
//	  - match: {name_contains: "legacy"}
//	    decision: rotate
//	schedule: "@daily"
//
// Parsing is strict: unknown fields, inverted thresholds, and cron
// expressions that do not parse are all rejected up front, never at run
// time.
//
// # Versioning
//
// Loaded policies are versioned in the policy_versions table and
// deduplicated by the SHA-256 of the document, so reloading an unchanged
// file is a no-op. Watch reloads the file on every write, which backs both
// the policy watch command and live reload in the server.
package policy
