package endpoints

import (
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/ui"
)

// RegisterAll registers all API endpoints on the server
func RegisterAll(srv *server.Server) {
	RegisterAuthenticateEndpoint(srv)
	RegisterWhoamiEndpoint(srv)
	RegisterIdentitiesEndpoints(srv)
	RegisterRunsEndpoints(srv)
	RegisterAuditEndpoints(srv)
	RegisterPolicyEndpoints(srv)
	RegisterStatusEndpoints(srv)
	RegisterMetricsEndpoint(srv)

	// Dashboard
	ui.Register(srv)
}
