package authsdk

import "encoding/json"

// Role names form a closed set enforced server-side; the client only carries
// them around.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// UserProfile is the server's view of the authenticated user.
type UserProfile struct {
	// ID is the unique identifier for the user
	ID int64 `json:"id"`

	// Username is the user's login name
	Username string `json:"username"`

	// Email recorded at registration
	Email string `json:"email,omitempty"`

	// Role is one of the Role* constants
	Role string `json:"role"`

	// Settings is an opaque per-user settings blob, passed through untouched
	Settings json.RawMessage `json:"settings,omitempty"`
}

// AuthResponse is the shape returned by POST /auth/login,
// POST /auth/register and POST /auth/github/callback.
type AuthResponse struct {
	// User is the authenticated user's profile
	User *UserProfile `json:"user"`

	// Token is the access token (JWT, or opaque gho_ token for GitHub)
	Token string `json:"token"`

	// RefreshToken is the opaque refresh token
	RefreshToken string `json:"refreshToken"`

	// TokenVersion mirrors the server-side token version when present
	TokenVersion *int `json:"tokenVersion,omitempty"`

	// UseCookies indicates the server established a cookie-backed session
	// alongside the bearer tokens
	UseCookies bool `json:"useCookies,omitempty"`
}

// RefreshResponse is the shape returned by POST /auth/refresh-token.
type RefreshResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *UserProfile `json:"user,omitempty"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type githubCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

type githubURLResponse struct {
	URL string `json:"url"`
}
