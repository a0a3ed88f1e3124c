package middleware

import (
	"net/http"

	"github.com/aegisid/aegisid/pkg/identity"
)

// RequireAdmin rejects requests whose operator holds the auditor role.
// Auditors get the read surface only.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, ok := identity.Get(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Authorization missing"))
			return
		}
		if !op.IsAdmin() {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("Insufficient privilege"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
