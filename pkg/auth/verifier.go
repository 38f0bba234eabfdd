package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/queryguard-io/queryguard-engine/pkg/apperrors"
)

// Verification modes.
const (
	// ModeOff parses tokens without verifying signatures. Development
	// only; never run production with verification off.
	ModeOff = "off"
	// ModeStatic verifies tokens with a shared HMAC secret.
	ModeStatic = "static"
	// ModeJWKS verifies tokens against the issuer's published key set.
	ModeJWKS = "jwks"
)

// VerifierConfig selects how bearer tokens are checked.
type VerifierConfig struct {
	// Mode is one of off, static or jwks.
	Mode string
	// StaticSecret is the shared HMAC secret for static mode.
	StaticSecret string
	// Issuer, when set, must match the token's iss claim exactly.
	Issuer string
	// Audience, when set, must appear in the token's aud claim.
	Audience string
	// JWKSEndpoints maps issuer URLs to JWKS endpoint URLs (jwks mode).
	JWKSEndpoints map[string]string
}

// Verifier resolves principals from bearer tokens according to the
// configured mode. Off mode parses without verification, static mode
// checks an HMAC signature, and jwks mode delegates to JWKSClient.
type Verifier struct {
	mode     string
	secret   []byte
	issuer   string
	audience string
	jwks     *JWKSClient
}

// NewVerifier builds a verifier for the configured mode. An empty mode
// means off.
func NewVerifier(cfg *VerifierConfig) (*Verifier, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = ModeOff
	}

	v := &Verifier{
		mode:     mode,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}

	switch mode {
	case ModeOff:
		jwks, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
		if err != nil {
			return nil, err
		}
		v.jwks = jwks
	case ModeStatic:
		if cfg.StaticSecret == "" {
			return nil, apperrors.Configurationf("static auth mode requires a shared secret")
		}
		v.secret = []byte(cfg.StaticSecret)
	case ModeJWKS:
		jwks, err := NewJWKSClient(&JWKSConfig{
			EnableVerification: true,
			JWKSEndpoints:      cfg.JWKSEndpoints,
		})
		if err != nil {
			return nil, err
		}
		v.jwks = jwks
	default:
		return nil, apperrors.Configurationf("unknown auth mode %q", cfg.Mode)
	}

	return v, nil
}

// ValidateToken checks a bearer token and returns its claims. In off
// mode the token is only parsed. In static and jwks modes the issuer
// and audience constraints are enforced after signature verification.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	var (
		claims *Claims
		err    error
	)
	if v.mode == ModeStatic {
		claims, err = v.validateStatic(tokenString)
	} else {
		claims, err = v.jwks.ValidateToken(tokenString)
	}
	if err != nil {
		return nil, err
	}

	if v.mode != ModeOff {
		if err := v.checkIssuerAudience(claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// ResolvePrincipal validates a token and returns the principal it
// identifies. Callers treat any error as an unresolved principal and
// fall back to the restrictive default profile.
func (v *Verifier) ResolvePrincipal(tokenString string) (Principal, error) {
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return Principal{}, err
	}
	return claims.Principal()
}

// Close releases resources held by the underlying key clients.
func (v *Verifier) Close() {
	if v.jwks != nil {
		v.jwks.Close()
	}
}

func (v *Verifier) validateStatic(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

func (v *Verifier) checkIssuerAudience(claims *Claims) error {
	if v.issuer != "" && claims.Issuer != v.issuer {
		return fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
	}
	if v.audience != "" {
		found := false
		for _, aud := range claims.Audience {
			if aud == v.audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("token audience does not include %s", v.audience)
		}
	}
	return nil
}

// Ensure Verifier satisfies the validation interface.
var _ JWKSClientInterface = (*Verifier)(nil)
