// Package store provides storage abstractions for the AegisID server.
//
// This package defines interfaces for database operations, allowing the
// server endpoints and the review engine to be decoupled from the specific
// database implementation. This enables easier testing with mocks and
// potential support for different storage backends.
//
// # Available Stores
//
//   - IdentityStore: machine identity ingest and listing
//   - RunStore: review run and stage lifecycle
//   - FindingStore: scored findings per run
//   - OperatorStore: operator credentials and API key checks
//   - HealthStore: connectivity and migration state
//
// # Usage
//
//	identities := gorm.NewIdentityStore(db)
//	ident, err := identities.GetIdentity(id)
//	if err != nil {
//	    if errors.Is(err, store.ErrIdentityNotFound) {
//	        // Handle not found
//	    }
//	}
package store
