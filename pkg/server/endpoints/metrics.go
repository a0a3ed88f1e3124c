package endpoints

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisid/aegisid/pkg/server"
)

// RegisterMetricsEndpoint exposes the Prometheus metrics endpoint
func RegisterMetricsEndpoint(s *server.Server) {
	s.Router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
