// Package jwtx decodes and validates access tokens on the client side.
//
// The client never verifies signatures; the backend is the authority for
// that. What the client needs is a structural judgement ("is this string
// worth sending?") and the expiry claim, so it can refresh proactively
// instead of burning a request on a token the server will reject anyway.
package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the access-token claims the CodeStrata backend issues. Kept
// additive to preserve compatibility with older tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Username for the authenticated user
	Username string `json:"username,omitempty"`

	// Email address recorded at registration
	Email string `json:"email,omitempty"`

	// Role is one of "student", "instructor" or "admin"
	Role string `json:"role,omitempty"`

	// TokenVersion is bumped server-side on password change or forced
	// logout, invalidating all previously issued tokens.
	TokenVersion *int `json:"tokenVersion,omitempty"`
}

// DecodeClaims decodes the claims payload of a token without verifying the
// signature and without validating expiry. Returns nil on any malformed
// input, including opaque provider tokens which carry no claims.
func DecodeClaims(token string) *Claims {
	if token == "" {
		return nil
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil
	}

	return claims
}

// Expiry returns the expiry time carried by the token's claims. The second
// return is false when the token is malformed or carries no exp claim.
func Expiry(token string) (time.Time, bool) {
	claims := DecodeClaims(token)
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
