package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/aegisid/aegisid/pkg/identity"
)

func TestTokenAuthenticator(t *testing.T) {
	key := bytes.Repeat([]byte("k"), TokenKeySize)

	var captured *identity.Operator
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = identity.Get(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := NewTokenAuthenticator(key).Middleware(next)

	serve := func(authorization string) *httptest.ResponseRecorder {
		captured = nil
		req := httptest.NewRequest("GET", "/whoami", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("accepts a freshly issued token", func(t *testing.T) {
		token, expiresAt, err := IssueToken(key, "alice", identity.RoleAdmin, time.Minute)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusOK, w.Code)
		if assert.NotNil(t, captured) {
			assert.Equal(t, "alice", captured.Login)
			assert.Equal(t, identity.RoleAdmin, captured.Role)
			assert.WithinDuration(t, expiresAt, captured.ExpiresAt, time.Second)
			assert.NotNil(t, captured.RemoteIP)
		}
	})

	t.Run("defaults an empty role claim to auditor", func(t *testing.T) {
		token, _, err := IssueToken(key, "bob", "", time.Minute)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusOK, w.Code)
		if assert.NotNil(t, captured) {
			assert.Equal(t, identity.RoleAuditor, captured.Role)
		}
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		w := serve("")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Authorization missing", w.Body.String())
		assert.Nil(t, captured)
	})

	t.Run("rejects a non-bearer header", func(t *testing.T) {
		w := serve("Basic YWxpY2U6aHVudGVyMg==")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Malformed authorization header", w.Body.String())
	})

	t.Run("rejects a token signed with another key", func(t *testing.T) {
		otherKey := bytes.Repeat([]byte("x"), TokenKeySize)
		token, _, err := IssueToken(otherKey, "alice", identity.RoleAdmin, time.Minute)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid token", w.Body.String())
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		token, _, err := IssueToken(key, "alice", identity.RoleAdmin, -time.Minute)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects an unsigned token", func(t *testing.T) {
		claims := operatorClaims{
			Role: identity.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects a token without a subject", func(t *testing.T) {
		token, _, err := IssueToken(key, "", identity.RoleAdmin, time.Minute)
		assert.NoError(t, err)

		w := serve("Bearer " + token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Token has no subject", w.Body.String())
	})
}

func TestClientIP(t *testing.T) {
	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

		assert.Equal(t, "203.0.113.9", ClientIP(req).String())
	})

	t.Run("falls back to the remote address", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "198.51.100.4:39000"

		assert.Equal(t, "198.51.100.4", ClientIP(req).String())
	})

	t.Run("ignores an unparsable forwarded value", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-For", "not-an-ip")
		req.RemoteAddr = "198.51.100.4:39000"

		assert.Equal(t, "198.51.100.4", ClientIP(req).String())
	})
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(next)

	serve := func(op *identity.Operator) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", "/policy", nil)
		if op != nil {
			req = req.WithContext(identity.Set(req.Context(), op))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("passes admins through", func(t *testing.T) {
		op := identity.OperatorFromClaims("alice", identity.RoleAdmin, time.Now(), time.Now().Add(time.Minute))

		assert.Equal(t, http.StatusOK, serve(op).Code)
	})

	t.Run("forbids auditors", func(t *testing.T) {
		op := identity.OperatorFromClaims("bob", identity.RoleAuditor, time.Now(), time.Now().Add(time.Minute))
		w := serve(op)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "Insufficient privilege", w.Body.String())
	})

	t.Run("rejects requests without an operator", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)
	})
}
