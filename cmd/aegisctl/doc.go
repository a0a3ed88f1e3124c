// Package main provides aegisctl, the CLI for the AegisID machine identity
// review pipeline.
//
// AegisID ingests machine identities (API keys, IAM roles, service accounts),
// scores their risk, applies a policy-driven review, and records every
// decision in a hash-chained audit trail.
//
// # Architecture
//
// The server is organized into several packages:
//
//   - pkg/server: HTTP server and routing
//   - pkg/server/endpoints: REST API endpoint handlers
//   - pkg/server/ui: server-rendered operator dashboard
//   - pkg/ingest: identity document readers and normalization
//   - pkg/scoring: risk scorers (heuristic, remote workflow)
//   - pkg/review: run engine, stages, scheduler
//   - pkg/policy: review policy parsing and versioning
//   - pkg/audit: audit event stream and hash chain
//   - pkg/model: database models
//   - pkg/db: database connection utilities
//   - pkg/config: configuration management
//
// # Quick Start
//
// The server is run via the aegisctl CLI:
//
//	# Generate a token signing key
//	export AEGIS_TOKEN_KEY=$(aegisctl token-key generate)
//
//	# Run database migrations
//	aegisctl db migrate
//
//	# Create an operator
//	aegisctl operator create admin
//
//	# Start the server
//	aegisctl server
//
// # Environment Variables
//
//   - DATABASE_URL: PostgreSQL connection string
//   - AEGIS_TOKEN_KEY: Base64-encoded 256-bit key for signing operator tokens
//   - AEGIS_CONFIG_PATH: Config directory (default: /etc/aegis/config)
//   - AEGIS_LOG_LEVEL: Log level (debug, info, warn, error)
//   - AEGIS_PORT: Server port (default: 8084)
//
// For more information, see https://github.com/aegisid/aegisid
package main
