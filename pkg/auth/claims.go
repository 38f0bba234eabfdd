// Package auth resolves the principal behind a request from a JWT
// bearer token. Depending on the configured mode, tokens are verified
// with a static HMAC secret or against their issuer's JWKS endpoint;
// the resulting principal is the identity the access controller keys
// on.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// PrincipalKey is the context key for storing the resolved principal.
	PrincipalKey contextKey = "principal"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// AdminRole grants admin rights when present in the roles claim.
const AdminRole = "admin"

// Claims is the JWT claims structure this engine accepts. It embeds
// RegisteredClaims for the standard fields (sub, iss, exp, ...) and adds
// the authorization claims the access controller consumes.
type Claims struct {
	jwt.RegisteredClaims
	Email  string   `json:"email,omitempty"`
	Tenant string   `json:"tid,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Admin  bool     `json:"admin,omitempty"`
	Scope  string   `json:"scp,omitempty"`
}

// Principal is the identity the permission engine keys on.
type Principal struct {
	ID     string
	Email  string
	Tenant string
	Roles  []string
	Admin  bool
}

// Principal converts validated claims into an identity record. The
// subject claim is required; admin rights come from either the admin
// claim or the admin role.
func (c *Claims) Principal() (Principal, error) {
	if c == nil || c.Subject == "" {
		return Principal{}, apperrors.Validationf("token carries no subject")
	}
	p := Principal{
		ID:     c.Subject,
		Email:  c.Email,
		Tenant: c.Tenant,
		Roles:  c.Roles,
		Admin:  c.Admin,
	}
	for _, r := range c.Roles {
		if r == AdminRole {
			p.Admin = true
		}
	}
	return p, nil
}

// WithPrincipal stores the resolved principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipal retrieves the resolved principal from the context.
// Returns false if none is present.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

// WithToken stores the raw token string on the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, TokenKey, token)
}

// GetToken retrieves the raw token string from the context. Returns
// false if none is present.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}
