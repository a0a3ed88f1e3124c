// Package ingest reads machine identity records from uploads and feeds.
//
// Three sources are supported: JSON documents (a bare array or the
// {"api_keys": [...]} wrapper the dashboard uploads), CSV files with
// header-driven column mapping, and paginated REST feeds. All three
// produce wire Records which Normalize validates and shapes into model
// identities. Validation is not fail-fast: rejected records are reported
// with their position so one bad row does not sink an upload.
package ingest
