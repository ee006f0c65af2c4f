// Package domain holds the session core's data model: the credential pair,
// the user profile and the session state snapshot broadcast to observers.
package domain

// Credential is the access/refresh token pair plus the server-side token
// version. Owned exclusively by the token store; everything else receives
// copies.
type Credential struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
	TokenVersion *int   `json:"version,omitempty"`
}

// IsZero reports whether the credential carries no tokens at all.
func (c Credential) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Clone returns an independent copy, including the version pointer.
func (c Credential) Clone() Credential {
	out := c
	if c.TokenVersion != nil {
		v := *c.TokenVersion
		out.TokenVersion = &v
	}
	return out
}

// Equal compares two credentials by value.
func (c Credential) Equal(other Credential) bool {
	if c.AccessToken != other.AccessToken || c.RefreshToken != other.RefreshToken {
		return false
	}
	switch {
	case c.TokenVersion == nil && other.TokenVersion == nil:
		return true
	case c.TokenVersion == nil || other.TokenVersion == nil:
		return false
	default:
		return *c.TokenVersion == *other.TokenVersion
	}
}
