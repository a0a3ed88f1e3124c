package endpoints

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// AuditExportFilename is the download name of the audit document.
const AuditExportFilename = "aegisid_audit.json"

// AuditRecordsResponse is a run's chain records in append order.
type AuditRecordsResponse struct {
	RunID   string         `json:"run_id"`
	Records []audit.Record `json:"records"`
}

// RegisterAuditEndpoints registers audit trail endpoints
func RegisterAuditEndpoints(s *server.Server) {
	r := s.Router.PathPrefix("/runs").Subrouter()
	r.Use(s.TokenAuth.Middleware)

	r.HandleFunc("/{id}/audit", handleRunAudit(s.Runs, s.Chain)).Methods("GET")
	r.HandleFunc("/{id}/audit/verify", handleVerifyAudit(s.Runs, s.Chain)).Methods("GET")
	r.HandleFunc("/{id}/audit/export", handleExportAudit(s.Runs, s.Chain)).Methods("GET")
}

func handleRunAudit(runs store.RunStore, chain *audit.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := runs.GetRun(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}

		records, err := chain.Records(r.Context(), run.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if records == nil {
			records = []audit.Record{}
		}

		respondWithJSON(w, http.StatusOK, AuditRecordsResponse{
			RunID:   run.ID,
			Records: records,
		})
	}
}

func handleVerifyAudit(runs store.RunStore, chain *audit.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := runs.GetRun(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}

		report, err := chain.Verify(r.Context(), run.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		actor, clientIP := requestActor(r)
		audit.Log(audit.ChainVerifyEvent{
			Actor:         actor,
			ClientIP:      clientIP,
			RunID:         run.ID,
			Records:       report.Records,
			Valid:         report.Valid,
			DivergenceSeq: report.DivergenceSeq,
		})

		// A diverged chain is still a successful verification request; the
		// report carries the verdict.
		respondWithJSON(w, http.StatusOK, report)
	}
}

func handleExportAudit(runs store.RunStore, chain *audit.Chain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		run, err := runs.GetRun(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}

		doc, err := chain.Export(r.Context(), run.ID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		actor, clientIP := requestActor(r)
		audit.Log(audit.ExportEvent{
			Actor:    actor,
			ClientIP: clientIP,
			RunID:    run.ID,
			Findings: run.Scored,
			Bytes:    len(doc),
		})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+AuditExportFilename+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
		_, _ = w.Write(doc)
	}
}
