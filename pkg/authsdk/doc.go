// Package authsdk is the HTTP client for the CodeStrata auth backend.
//
// It owns the wire contracts (login, register, refresh, profile, GitHub
// exchange) and is the single place where transport and server failures are
// classified into the AuthError taxonomy. Downstream code branches on
// AuthError.Kind and never re-interprets status codes or body shapes.
package authsdk
