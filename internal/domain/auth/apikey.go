package auth

import (
	"context"

	"github.com/xenking/freshcart/internal/domain/apperr"
	"github.com/xenking/freshcart/internal/domain/consumer"
)

// ErrUnauthorized is returned when an API key is missing, unknown or revoked.
var ErrUnauthorized = apperr.New(apperr.KindForbidden, "unauthorized", "unauthorized")

// APIKeyInfo holds the identity bound to a validated API key.
type APIKeyInfo struct {
	ID         int64
	KeyHash    string
	Name       string
	ConsumerID int64
	Role       consumer.Role
}

// Principal is the authenticated caller of a request.
type Principal struct {
	ConsumerID int64
	Role       consumer.Role
}

// IsAdmin reports whether the principal may manage coupon definitions.
func (p Principal) IsAdmin() bool { return p.Role == consumer.RoleAdmin }

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the authenticated principal from ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
