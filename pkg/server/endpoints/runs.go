package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/middleware"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// TriggerRunRequest selects what a run triggered over the API reviews.
// Every field is optional.
type TriggerRunRequest struct {
	Scorer        string `json:"scorer,omitempty"`
	Source        string `json:"source,omitempty"`
	PolicyVersion *int   `json:"policy_version,omitempty"`
}

// RunListResponse is the run listing with its unwindowed total.
type RunListResponse struct {
	Runs  []model.ReviewRun `json:"runs"`
	Count int64             `json:"count"`
}

// RunDetailResponse is one run together with its stage rows.
type RunDetailResponse struct {
	model.ReviewRun
	Stages []model.StageRun `json:"stages"`
}

// FindingResponse is a finding with its reason factors unpacked for the
// wire.
type FindingResponse struct {
	model.Finding
	Reasons []string `json:"reasons"`
}

// FindingListResponse is a run's findings listing.
type FindingListResponse struct {
	Findings []FindingResponse `json:"findings"`
	Count    int               `json:"count"`
}

// RegisterRunsEndpoints registers review run endpoints
func RegisterRunsEndpoints(s *server.Server) {
	r := s.Router.PathPrefix("/runs").Subrouter()
	r.Use(s.TokenAuth.Middleware)

	r.Handle("", middleware.RequireAdmin(handleTriggerRun(s.Engine, s.Config))).Methods("POST")
	r.HandleFunc("", handleListRuns(s.Runs, s.Config.ListLimitMax)).Methods("GET")
	r.HandleFunc("/{id}", handleGetRun(s.Runs)).Methods("GET")
	r.Handle("/{id}/cancel", middleware.RequireAdmin(handleCancelRun(s.Engine))).Methods("POST")
	r.HandleFunc("/{id}/findings", handleListFindings(s.Runs, s.Findings)).Methods("GET")
}

func handleTriggerRun(engine *review.Engine, cfg *config.AegisConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TriggerRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondWithError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		defer r.Body.Close()

		if req.Scorer != "" && !cfg.IsScorerEnabled(req.Scorer) {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("scorer %q is not enabled", req.Scorer))
			return
		}

		run, err := engine.TriggerRun(r.Context(), review.TriggerOptions{
			Trigger:       model.TriggerAPI,
			Source:        req.Source,
			Scorer:        req.Scorer,
			PolicyVersion: req.PolicyVersion,
		})
		if err != nil {
			switch {
			case errors.Is(err, review.ErrTooManyRuns):
				respondWithError(w, http.StatusConflict, err.Error())
			case errors.Is(err, review.ErrNoIdentities),
				errors.Is(err, policy.ErrVersionNotFound):
				respondWithError(w, http.StatusBadRequest, err.Error())
			default:
				respondWithError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		// The run executes in the background; its progress is observable
		// through GET /runs/{id}.
		respondWithJSON(w, http.StatusAccepted, run)
	}
}

func handleListRuns(runs store.RunStore, listLimitMax int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parseListWindow(r, listLimitMax)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		results, err := runs.ListRuns(limit, offset)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		count, err := runs.CountRuns()
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondWithJSON(w, http.StatusOK, RunListResponse{Runs: results, Count: count})
	}
}

func handleGetRun(runs store.RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := runs.GetRun(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}
		stages, err := runs.GetRunStages(run.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondWithJSON(w, http.StatusOK, RunDetailResponse{ReviewRun: *run, Stages: stages})
	}
}

func handleCancelRun(engine *review.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := engine.Cancel(r.Context(), vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, run)
	}
}

func handleListFindings(runs store.RunStore, findings store.FindingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := runs.GetRun(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}

		band := ""
		if raw := r.URL.Query().Get("band"); raw != "" {
			parsed, err := identity.BandString(raw)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			band = parsed.String()
		}

		results, err := findings.ListFindings(run.ID, band)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		response := FindingListResponse{
			Findings: make([]FindingResponse, 0, len(results)),
			Count:    len(results),
		}
		for _, f := range results {
			response.Findings = append(response.Findings, FindingResponse{
				Finding: f,
				Reasons: f.ReasonList(),
			})
		}
		respondWithJSON(w, http.StatusOK, response)
	}
}
