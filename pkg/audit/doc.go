// Package audit provides audit logging for AegisID operations.
//
// This package implements two audit sinks. The first is an operational
// event log: security-relevant actions such as authentication attempts,
// identity ingestion, review run execution, and policy changes are emitted
// as RFC5424 syslog messages and optionally persisted to a database. The
// second is a tamper-evident chain: every review decision and run
// lifecycle action is recorded as a hash-chained entry that can later be
// verified and exported as the downloadable audit document.
//
// # Event Types
//
// The package defines event types for various operations:
//
//   - Authentication events (success/failure)
//   - Identity ingest events
//   - Review run and stage lifecycle events
//   - Decision events
//   - Policy load events
//   - Chain verification and export events
//
// # Usage
//
//	audit.Log(audit.AuthenticateEvent{Login: login, ClientIP: ip, Success: true})
//
// Audit events are logged in a structured format suitable for security
// monitoring and compliance requirements.
package audit
