package endpoints

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// startTime anchors the uptime reported by /health.
var startTime = time.Now()

// HealthResponse reports server liveness details
type HealthResponse struct {
	Status    string                `json:"status"`
	Version   string                `json:"version"`
	Uptime    string                `json:"uptime"`
	Database  string                `json:"database"`
	Migration *store.MigrationState `json:"migration,omitempty"`
	Scorers   []string              `json:"scorers"`
}

// Version returns the display version of the server.
func Version() string {
	if v := os.Getenv("AEGIS_VERSION_DISPLAY"); v != "" {
		return v
	}
	return "0.1.0"
}

// RegisterStatusEndpoints registers the status and health endpoints
func RegisterStatusEndpoints(s *server.Server) {
	// GET / - Status page (no auth required)
	s.Router.HandleFunc("/", handleStatus()).Methods("GET")

	// GET /health - Liveness details (no auth required)
	s.Router.HandleFunc("/health", handleHealth(s.Health, s.Config)).Methods("GET")
}

func handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := Version()

		// JSON via Accept header or format query param
		accept := r.Header.Get("Accept")
		format := r.URL.Query().Get("format")
		if format == "json" || strings.Contains(accept, "application/json") {
			respondWithJSON(w, http.StatusOK, map[string]string{"version": version})
			return
		}

		html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width">
    <title>AegisID Status</title>
  </head>
  <body>

    <header>
      <h1>AegisID</h1>
    </header>

    <main>
      <div class="left-panel">
        <h1>Status</h1>
        <p class="status-text">Your AegisID server is running!</p>

        <p>
          Machine identities are reviewed by policy-driven runs. Open the
          <a href="/ui">dashboard</a> to upload identities and inspect
          findings, or use the JSON API with an operator token.
        </p>

        <dl>
          <dt>Health:</dt>
          <dd><a href="/health">/health</a> reports database and migration state.</dd>
          <dt>Metrics:</dt>
          <dd><a href="/metrics">/metrics</a> exposes Prometheus metrics.</dd>
        </dl>
      </div>

      <div class="right-panel">
        <dl>
          <dt>Details:</dt>
          <dd>Version ` + version + `</dd>
        </dl>
      </div>
    </main>

  </body>
</html>
`

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}
}

func handleHealth(health store.HealthStore, cfg *config.AegisConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:   "ok",
			Version:  Version(),
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			Database: "ok",
			Scorers:  cfg.Scorers,
		}

		if err := health.CheckConnectivity(); err != nil {
			response.Status = "error"
			response.Database = err.Error()
			respondWithJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		if state, err := health.MigrationState(); err == nil {
			response.Migration = state
			if state.Dirty {
				response.Status = "error"
				respondWithJSON(w, http.StatusServiceUnavailable, response)
				return
			}
		}

		respondWithJSON(w, http.StatusOK, response)
	}
}
