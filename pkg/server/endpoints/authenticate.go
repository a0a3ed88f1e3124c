package endpoints

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/server"
	"github.com/aegisid/aegisid/pkg/server/middleware"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// AuthenticateResponse carries a freshly issued operator token.
type AuthenticateResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterAuthenticateEndpoint registers the operator authentication
// endpoint
func RegisterAuthenticateEndpoint(s *server.Server) {
	// POST /authn/{login}/authenticate - Exchange an API key for a token
	s.Router.HandleFunc(
		"/authn/{login}/authenticate",
		handleAuthenticate(s.Operators, s.TokenAuth, s.Config.TokenTTL()),
	).Methods("POST")
}

func handleAuthenticate(operators store.OperatorStore, tokens *middleware.TokenAuthenticator, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		login, err := url.PathUnescape(vars["login"])
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}

		apiKey, err := io.ReadAll(r.Body)
		defer r.Body.Close()
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		clientIP := middleware.ClientIP(r).String()

		fail := func(message string) {
			servermon.AuthenticationAttemptsCount.WithLabelValues("failure").Inc()
			audit.Log(audit.AuthenticateEvent{
				Login:        login,
				ClientIP:     clientIP,
				Success:      false,
				ErrorMessage: message,
			})
			// Same response for unknown logins and bad keys, so the
			// endpoint doesn't leak which operators exist.
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		}

		op, err := operators.GetOperator(login)
		if err != nil {
			if errors.Is(err, store.ErrOperatorNotFound) {
				fail("operator not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if !operators.ValidateAPIKey(op, apiKey) {
			fail("invalid api key")
			return
		}

		token, expiresAt, err := tokens.Issue(login, op.Role, ttl)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if err := operators.TouchLastLogin(login); err != nil {
			respondWithError(w, http.StatusInternalServerError, err.Error())
			return
		}

		servermon.AuthenticationAttemptsCount.WithLabelValues("success").Inc()
		audit.Log(audit.AuthenticateEvent{
			Login:    login,
			ClientIP: clientIP,
			Success:  true,
		})

		respondWithJSON(w, http.StatusOK, AuthenticateResponse{
			Token:     token,
			ExpiresAt: expiresAt,
		})
	}
}
