// Package testhelpers provides shared fixtures for integration tests.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// GenerateTestJWT builds an unsigned token (alg none) carrying the given
// identity claims. Only verifiers running with verification off accept
// it; signature-checking modes reject the empty signature segment.
func GenerateTestJWT(sub, tenant, email string, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	claims := map[string]any{"sub": sub}
	if tenant != "" {
		claims["tid"] = tenant
	}
	if email != "" {
		claims["email"] = email
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	payload, _ := json.Marshal(claims)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(payload))
}
