package endpoints

import (
	"net/http"
	"time"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/server"
)

// WhoamiResponse represents the response from the /whoami endpoint
type WhoamiResponse struct {
	Login          string    `json:"login"`
	Role           string    `json:"role"`
	TokenIssuedAt  time.Time `json:"token_iat"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
	ClientIP       string    `json:"client_ip,omitempty"`
}

// RegisterWhoamiEndpoint registers the /whoami endpoint
func RegisterWhoamiEndpoint(s *server.Server) {
	whoamiRouter := s.Router.PathPrefix("/whoami").Subrouter()
	whoamiRouter.Use(s.TokenAuth.Middleware)

	whoamiRouter.HandleFunc("", handleWhoami()).Methods("GET")
}

func handleWhoami() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := identity.Get(r.Context())
		if !ok {
			respondWithError(w, http.StatusUnauthorized, "unable to determine identity")
			return
		}

		clientIP := ""
		if op.RemoteIP != nil {
			clientIP = op.RemoteIP.String()
		}

		audit.Log(audit.WhoamiEvent{
			Login:    op.Login,
			ClientIP: clientIP,
		})

		respondWithJSON(w, http.StatusOK, WhoamiResponse{
			Login:          op.Login,
			Role:           op.Role,
			TokenIssuedAt:  op.IssuedAt,
			TokenExpiresAt: op.ExpiresAt,
			ClientIP:       clientIP,
		})
	}
}
