package domain

// Status is the session state machine's position.
type Status int

const (
	// StatusUnauthenticated means no usable session exists.
	StatusUnauthenticated Status = iota

	// StatusAuthenticated means a live credential backs the session.
	StatusAuthenticated

	// StatusDegraded means the session looks authenticated UI-wise but is
	// backed only by cached data while recovery keeps being attempted.
	StatusDegraded
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusDegraded:
		return "degraded"
	default:
		return "unauthenticated"
	}
}

// Authenticated reports whether the UI should treat the session as signed
// in. Degraded counts: that is the whole point of degraded mode.
func (s Status) Authenticated() bool {
	return s == StatusAuthenticated || s == StatusDegraded
}

// SessionState is the snapshot broadcast to observers. Always a copy, never
// a live reference into the manager.
type SessionState struct {
	Status Status
	User   *UserProfile

	// Reason is set on transitions to StatusUnauthenticated.
	Reason Reason
}

// Reason codes explain why a session ended or is about to.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonUserRequest    Reason = "user_request"
	ReasonIdleTimeout    Reason = "idle_timeout"
	ReasonSessionExpired Reason = "session_expired"
	ReasonForcedRecovery Reason = "forced_recovery"
)
