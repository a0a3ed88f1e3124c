// Package server provides the HTTP server for the AegisID API.
//
// This package implements the core HTTP server that handles all AegisID
// REST API requests. It uses gorilla/mux for routing and provides
// middleware for authentication and request handling.
//
// # Server Setup
//
//	srv, err := server.NewServer(db, cfg, tokenKey, "0.0.0.0", "8084")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	endpoints.RegisterAll(srv)
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Components
//
// The Server struct holds:
//
//   - Store interfaces over identities, runs, findings, and operators
//   - Chain: the tamper-evident audit trail
//   - Engine: the review workflow engine
//   - Scheduler: cron-driven scheduled runs
//   - TokenAuth: operator token validation
//
// # Endpoints
//
// API endpoints are registered via the endpoints subpackage:
//
//	endpoints.RegisterAll(srv)
//
// This registers all AegisID API endpoints including:
//
//   - /authn/{login}/authenticate - API key authentication
//   - /identities - identity ingest and listing
//   - /runs - review run lifecycle, findings, and audit trail
//   - /policy - review policy versions
//   - /whoami - token introspection
//   - /ui - the operator dashboard
package server
