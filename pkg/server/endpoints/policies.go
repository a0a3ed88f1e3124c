package endpoints

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/middleware"
)

// maxPolicyBytes bounds policy documents accepted over the API.
const maxPolicyBytes = 1 << 20

// PolicyThresholds mirrors the policy's band thresholds on the wire.
type PolicyThresholds struct {
	Review int `json:"review"`
	Rotate int `json:"rotate"`
}

// PolicyResponse describes the policy currently governing runs. Version is
// nil while the server runs on the built-in default.
type PolicyResponse struct {
	Version    *int       `json:"version"`
	SHA256     string     `json:"sha256,omitempty"`
	SourcePath string     `json:"source_path,omitempty"`
	LoadedAt   *time.Time `json:"loaded_at,omitempty"`
	LoadedBy   string     `json:"loaded_by,omitempty"`

	Scorer         string           `json:"scorer"`
	FallbackScorer string           `json:"fallback_scorer,omitempty"`
	BatchSize      int              `json:"batch_size"`
	Parallelism    int              `json:"parallelism"`
	Thresholds     PolicyThresholds `json:"thresholds"`
	Schedule       string           `json:"schedule,omitempty"`
	Raw            string           `json:"raw,omitempty"`
}

// ApplyPolicyResponse reports the outcome of loading a policy document.
// Created is false when the document matched an already stored version.
type ApplyPolicyResponse struct {
	Version int    `json:"version"`
	SHA256  string `json:"sha256"`
	Created bool   `json:"created"`
}

// RegisterPolicyEndpoints registers review policy endpoints
func RegisterPolicyEndpoints(s *server.Server) {
	r := s.Router.PathPrefix("/policy").Subrouter()
	r.Use(s.TokenAuth.Middleware)

	r.HandleFunc("", handleGetPolicy(s)).Methods("GET")
	r.Handle("", middleware.RequireAdmin(handleApplyPolicy(s))).Methods("PUT")
}

func handleGetPolicy(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, version := s.Engine.CurrentPolicy()

		response := PolicyResponse{
			Version:        version,
			Scorer:         p.Scorer,
			FallbackScorer: p.FallbackScorer,
			BatchSize:      p.BatchSize,
			Parallelism:    p.Parallelism,
			Thresholds: PolicyThresholds{
				Review: p.Thresholds.Review,
				Rotate: p.Thresholds.Rotate,
			},
			Schedule: p.Schedule,
			Raw:      string(p.Raw()),
		}

		if version != nil {
			pv, err := s.Policies.GetVersion(*version)
			if err != nil {
				respondWithStoreError(w, err)
				return
			}
			response.SHA256 = pv.SHA256
			response.SourcePath = pv.SourcePath
			response.LoadedAt = &pv.LoadedAt
			response.LoadedBy = pv.LoadedBy
		}

		respondWithJSON(w, http.StatusOK, response)
	}
}

func handleApplyPolicy(s *server.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, clientIP := requestActor(r)

		fail := func(code int, err error) {
			audit.Log(audit.PolicyEvent{
				Actor:        actor,
				ClientIP:     clientIP,
				Operation:    "apply",
				Success:      false,
				ErrorMessage: err.Error(),
			})
			respondWithError(w, code, err.Error())
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxPolicyBytes))
		defer r.Body.Close()
		if err != nil {
			fail(http.StatusBadRequest, errors.New("failed to read request body"))
			return
		}

		p, err := policy.Parse(raw)
		if err != nil {
			fail(http.StatusBadRequest, err)
			return
		}

		pv, created, err := policy.SaveVersion(s.Policies, p, actor)
		if err != nil {
			fail(http.StatusInternalServerError, err)
			return
		}

		s.Engine.SetPolicy(p, &pv.Version)
		if err := s.Scheduler.Reload(p.Schedule); err != nil {
			fail(http.StatusInternalServerError, err)
			return
		}

		audit.Log(audit.PolicyEvent{
			Actor:     actor,
			ClientIP:  clientIP,
			Version:   pv.Version,
			SHA256:    pv.SHA256,
			Operation: "apply",
			Success:   true,
		})

		code := http.StatusOK
		if created {
			code = http.StatusCreated
		}
		respondWithJSON(w, code, ApplyPolicyResponse{
			Version: pv.Version,
			SHA256:  pv.SHA256,
			Created: created,
		})
	}
}
