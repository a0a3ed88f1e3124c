// Package model defines the database models for AegisID.
//
// This package contains GORM models that map to the AegisID PostgreSQL
// schema created by the migrations under db/migrations.
//
// # Core Models
//
//   - Identity: a machine identity (API key, IAM role, service account)
//     registered for review
//   - ReviewRun: one execution of the review pipeline
//   - StageRun: per-stage state within a run (parse, score, decide, audit,
//     report)
//   - Finding: the scored, decided outcome for one identity in one run
//   - AuditRecord: one link of the tamper-evident audit chain
//   - Operator: an API principal allowed to drive the pipeline
//   - PolicyVersion: a loaded review-policy version, deduplicated by SHA-256
//
// # Database Schema
//
// The database uses PostgreSQL with the following key tables:
//
//   - identities: identity inventory, unique per (source, external_id)
//   - review_runs: run lifecycle and totals
//   - stage_runs: stage attempts within a run
//   - findings: one row per (run, identity)
//   - audit_records: hash-chained audit trail
//   - operators: bcrypt-digested operator API keys
//   - policy_versions: review policy history
//   - messages: RFC 5424 audit sink (written by pkg/audit when configured)
package model
