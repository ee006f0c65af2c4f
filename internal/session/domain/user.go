package domain

import (
	"encoding/json"

	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
)

// UserProfile is the session core's view of the signed-in user.
type UserProfile struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email,omitempty"`
	Role     string          `json:"role"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// ProfileFromWire converts the backend's profile shape. Returns nil for nil.
func ProfileFromWire(p *authsdk.UserProfile) *UserProfile {
	if p == nil {
		return nil
	}
	return &UserProfile{
		ID:       p.ID,
		Username: p.Username,
		Email:    p.Email,
		Role:     p.Role,
		Settings: append(json.RawMessage(nil), p.Settings...),
	}
}

// Clone returns an independent copy so observers can never mutate the
// manager's state.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Settings = append(json.RawMessage(nil), p.Settings...)
	return &out
}
