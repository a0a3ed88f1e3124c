package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aegisid/aegisid/pkg/identity"
)

// TokenKeySize is the required HMAC key length in bytes.
const TokenKeySize = 32

// operatorClaims is the claim set carried by operator tokens.
type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a short-lived operator token binding the login and role.
func IssueToken(key []byte, login string, role string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := operatorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// TokenAuthenticator is middleware that validates operator tokens
type TokenAuthenticator struct {
	key []byte
}

// NewTokenAuthenticator creates a new token authenticator middleware
func NewTokenAuthenticator(key []byte) *TokenAuthenticator {
	return &TokenAuthenticator{key: key}
}

// Issue signs a token with the authenticator's key.
func (a *TokenAuthenticator) Issue(login string, role string, ttl time.Duration) (string, time.Time, error) {
	return IssueToken(a.key, login, role, ttl)
}

// Verify authenticates the request's bearer token and returns the
// operator it identifies. The error text is the plain 401 body Middleware
// sends for the same failure.
func (a *TokenAuthenticator) Verify(r *http.Request) (*identity.Operator, error) {
	authHeader := r.Header.Get("Authorization")

	if len(authHeader) == 0 {
		return nil, errors.New("Authorization missing")
	}

	tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, errors.New("Malformed authorization header")
	}

	claims := &operatorClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.key, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errors.New("Invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("Token has no subject")
	}

	var issuedAt, expiresAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	op := identity.OperatorFromClaims(claims.Subject, claims.Role, issuedAt, expiresAt)
	op.WithRemoteIP(ClientIP(r))
	return op, nil
}

// Middleware returns an HTTP middleware that validates bearer tokens and
// stores the authenticated operator on the request context.
func (a *TokenAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		op, err := a.Verify(r)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(err.Error()))
			return
		}
		ctx := identity.Set(r.Context(), op)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP resolves the originating address of a request, preferring the
// X-Forwarded-For header set by a fronting proxy.
func ClientIP(r *http.Request) net.IP {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}
