package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/policy"
	"github.com/aegisid/aegisid/pkg/server/store"
)

func respondWithError(w http.ResponseWriter, code int, payload interface{}) {
	respondWithJSON(w, code, map[string]interface{}{"error": payload})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithStoreError maps the store sentinels onto HTTP statuses, so
// every endpoint reports "not found" and "conflict" the same way.
func respondWithStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrIdentityNotFound),
		errors.Is(err, store.ErrRunNotFound),
		errors.Is(err, store.ErrOperatorNotFound),
		errors.Is(err, policy.ErrVersionNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrRunFinished),
		errors.Is(err, store.ErrOperatorExists):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

// requestActor names the authenticated operator and client address for
// audit events.
func requestActor(r *http.Request) (actor, clientIP string) {
	if op, ok := identity.Get(r.Context()); ok {
		actor = op.Login
		if op.RemoteIP != nil {
			clientIP = op.RemoteIP.String()
		}
	}
	return actor, clientIP
}

// parseListWindow reads limit and offset query parameters. The limit is
// clamped to max and defaults to it when absent.
func parseListWindow(r *http.Request, max int) (limit, offset int, err error) {
	limit = max
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
		if max > 0 && (limit == 0 || limit > max) {
			limit = max
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
