package service

import (
	"context"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/pkg/jwtx"
)

// DiagSnapshot is a read-only view over the session core for
// troubleshooting. It never exposes token material, only presence and
// expiry.
type DiagSnapshot struct {
	CapturedAt time.Time `json:"captured_at"`

	Status        string `json:"status"`
	HasUser       bool   `json:"has_user"`
	Authenticated bool   `json:"authenticated"`

	HasAccessToken  bool      `json:"has_access_token"`
	HasRefreshToken bool      `json:"has_refresh_token"`
	TokenValid      bool      `json:"token_valid"`
	TokenExpiry     time.Time `json:"token_expiry,omitzero"`

	StoreMemoryOnly bool `json:"store_memory_only"`
	StoreAvailable  bool `json:"store_available"`

	RefreshActive   bool   `json:"refresh_active"`
	RefreshFailures int    `json:"refresh_failures"`
	LastRefreshErr  string `json:"last_refresh_error,omitempty"`

	CacheSnapshot bool `json:"cache_snapshot"`
	WatchdogArmed bool `json:"watchdog_armed"`
}

// Diagnostics introspects the session components and offers forced
// recovery when they have wedged.
type Diagnostics struct {
	manager *Manager
}

func NewDiagnostics(m *Manager) *Diagnostics {
	return &Diagnostics{manager: m}
}

// Snapshot captures the current state of every component.
func (d *Diagnostics) Snapshot(ctx context.Context) DiagSnapshot {
	m := d.manager
	state := m.State()
	cred := m.store.Credential()

	snap := DiagSnapshot{
		CapturedAt:      time.Now().UTC(),
		Status:          state.Status.String(),
		HasUser:         state.User != nil,
		Authenticated:   m.IsAuthenticated(),
		HasAccessToken:  cred.AccessToken != "",
		HasRefreshToken: cred.RefreshToken != "",
		StoreMemoryOnly: m.store.MemoryOnly(),
		StoreAvailable:  m.store.Available(),
		RefreshActive:   m.coord.Active(),
		RefreshFailures: m.coord.Failures(),
	}

	if cred.AccessToken != "" {
		snap.TokenValid = m.validator.IsValid(cred.AccessToken)
		if exp, ok := jwtx.Expiry(cred.AccessToken); ok {
			snap.TokenExpiry = exp
		}
	}
	if err := m.coord.LastError(); err != nil {
		snap.LastRefreshErr = err.Error()
	}
	if m.cache != nil {
		snap.CacheSnapshot = m.cache.HasSnapshot(ctx)
	}
	if m.watchdog != nil {
		snap.WatchdogArmed = m.watchdog.Armed()
	}

	return snap
}

// ForceRecover drops every credential and counter and returns the session
// to a clean unauthenticated state. The escape hatch for a wedged client.
func (d *Diagnostics) ForceRecover(ctx context.Context) {
	d.manager.coord.Reset()
	d.manager.Logout(ctx, domain.ReasonForcedRecovery)
}
