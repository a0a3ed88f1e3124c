package identity

import (
	"context"
	"net"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// Key is the context key for Operator.
	Key ContextKey = "operator"
)

// Operator roles. Admins can mutate state (ingest, trigger runs, apply
// policy); auditors get read-only access plus audit verification.
const (
	RoleAdmin   = "admin"
	RoleAuditor = "auditor"
)

// Operator represents the authenticated principal for a request.
// It combines token claims with request-specific context.
type Operator struct {
	// Token claims
	Login     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Request context
	RemoteIP net.IP
}

// OperatorFromClaims builds an Operator from verified token claims.
func OperatorFromClaims(login, role string, issuedAt, expiresAt time.Time) *Operator {
	if role == "" {
		role = RoleAuditor
	}
	return &Operator{
		Login:     login,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
}

// WithRemoteIP sets the remote IP address.
func (o *Operator) WithRemoteIP(ip net.IP) *Operator {
	o.RemoteIP = ip
	return o
}

// IsAdmin returns true if the operator may mutate pipeline state.
func (o *Operator) IsAdmin() bool {
	return o.Role == RoleAdmin
}

// Get retrieves the Operator from context.
func Get(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(Key).(*Operator)
	return op, ok
}

// Set stores the Operator in context.
func Set(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, Key, op)
}
