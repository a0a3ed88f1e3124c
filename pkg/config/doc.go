// Package config provides configuration management for AegisID.
//
// This package handles loading and validating server configuration from
// environment variables and the optional config file, and loading the
// scoring-API credentials file referenced by the pipeline
// (config/api_keys.json by default).
//
// # Configuration Sources
//
// Configuration is loaded in order of precedence:
//
//   - Environment variables (AEGIS_*)
//   - Config file (/etc/aegis/config/aegis.yml, or AEGIS_CONFIG_PATH)
//   - Built-in defaults
//
// Each attribute remembers which source supplied it; `aegisctl
// configuration show` renders the table.
//
// # Key Configuration Options
//
//   - DATABASE_URL: Postgres connection for pipeline state
//   - AEGIS_AUDIT_DATABASE_URL: optional Postgres sink for RFC 5424 audit
//   - AEGIS_TOKEN_KEY: base64 HMAC key for operator tokens
//   - AEGIS_SCORERS: enabled scorers (heuristic, remote)
//   - AEGIS_API_KEYS_PATH: scoring-API credentials file
//   - AEGIS_LOG_LEVEL: logging verbosity
package config
