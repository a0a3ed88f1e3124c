package endpoints

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/ingest"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/middleware"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// maxUploadBytes bounds identity documents accepted over the API.
const maxUploadBytes = 32 << 20

var errUnsupportedMediaType = errors.New("unsupported content type")

// DefaultIngestSource tags identities uploaded without a source parameter.
const DefaultIngestSource = "upload"

// IngestResponse reports what an upload did, including per-record
// rejections.
type IngestResponse struct {
	Created  int              `json:"created"`
	Updated  int              `json:"updated"`
	Rejected []RejectedRecord `json:"rejected"`
}

// RejectedRecord reports one rejected record by its position in the
// uploaded document.
type RejectedRecord struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// IdentityListResponse is the identity listing with its unwindowed total.
type IdentityListResponse struct {
	Identities []model.Identity `json:"identities"`
	Count      int64            `json:"count"`
}

// RegisterIdentitiesEndpoints registers identity ingest and listing
// endpoints
func RegisterIdentitiesEndpoints(s *server.Server) {
	r := s.Router.PathPrefix("/identities").Subrouter()
	r.Use(s.TokenAuth.Middleware)

	r.Handle("", middleware.RequireAdmin(handleIngestIdentities(s.Identities))).Methods("POST")
	r.HandleFunc("", handleListIdentities(s.Identities, s.Config.ListLimitMax)).Methods("GET")
	r.HandleFunc("/{id}", handleGetIdentity(s.Identities)).Methods("GET")
}

// readUpload parses the request body into wire records, dispatching on the
// Content-Type. Multipart uploads carry the document in a "file" field and
// are dispatched on the filename extension.
func readUpload(r *http.Request) (records []ingest.Record, format string, err error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch contentType {
	case "application/json", "":
		records, err = ingest.ReadJSON(io.LimitReader(r.Body, maxUploadBytes))
		return records, "json", err

	case "text/csv":
		records, err = ingest.ReadCSV(io.LimitReader(r.Body, maxUploadBytes))
		return records, "csv", err

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New(`multipart upload needs a "file" field`)
		}
		defer file.Close()

		if strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			records, err = ingest.ReadCSV(file)
			return records, "csv", err
		}
		records, err = ingest.ReadJSON(file)
		return records, "json", err
	}

	return nil, "", fmt.Errorf("%w %q", errUnsupportedMediaType, contentType)
}

func handleIngestIdentities(identities store.IdentityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.URL.Query().Get("source")
		if source == "" {
			source = DefaultIngestSource
		}

		actor, clientIP := requestActor(r)

		fail := func(code int, format string, err error) {
			audit.Log(audit.IngestEvent{
				Actor:        actor,
				ClientIP:     clientIP,
				Source:       source,
				Format:       format,
				Success:      false,
				ErrorMessage: err.Error(),
			})
			respondWithError(w, code, err.Error())
		}

		records, format, err := readUpload(r)
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, errUnsupportedMediaType) {
				code = http.StatusUnsupportedMediaType
			}
			fail(code, format, err)
			return
		}

		normalized, rejected, err := ingest.NormalizeAll(records, source)
		if err != nil {
			servermon.IngestFailuresCount.WithLabelValues(format).Add(float64(len(rejected)))
			fail(http.StatusBadRequest, format, err)
			return
		}

		result, err := identities.UpsertIdentities(normalized)
		if err != nil {
			fail(http.StatusInternalServerError, format, err)
			return
		}

		servermon.IngestRecordsCount.WithLabelValues(format).Add(float64(len(normalized)))
		servermon.IngestFailuresCount.WithLabelValues(format).Add(float64(len(rejected)))

		audit.Log(audit.IngestEvent{
			Actor:    actor,
			ClientIP: clientIP,
			Source:   source,
			Format:   format,
			Created:  result.Created,
			Updated:  result.Updated,
			Skipped:  len(rejected),
			Success:  true,
		})

		response := IngestResponse{
			Created:  result.Created,
			Updated:  result.Updated,
			Rejected: make([]RejectedRecord, 0, len(rejected)),
		}
		for _, rej := range rejected {
			response.Rejected = append(response.Rejected, RejectedRecord{
				Index: rej.Index,
				Error: rej.Err.Error(),
			})
		}
		respondWithJSON(w, http.StatusCreated, response)
	}
}

func handleListIdentities(identities store.IdentityStore, listLimitMax int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := parseListWindow(r, listLimitMax)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		filter := store.IdentityFilter{
			Source: r.URL.Query().Get("source"),
			Limit:  limit,
			Offset: offset,
		}
		if raw := r.URL.Query().Get("kind"); raw != "" {
			kind, err := identity.KindString(raw)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Kind = kind.String()
		}
		if raw := r.URL.Query().Get("band"); raw != "" {
			band, err := identity.BandString(raw)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Band = band.String()
		}

		results, err := identities.ListIdentities(filter)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}
		count, err := identities.CountIdentities(filter)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		respondWithJSON(w, http.StatusOK, IdentityListResponse{
			Identities: results,
			Count:      count,
		})
	}
}

func handleGetIdentity(identities store.IdentityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		ident, err := identities.GetIdentity(vars["id"])
		if err != nil {
			respondWithStoreError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, ident)
	}
}
