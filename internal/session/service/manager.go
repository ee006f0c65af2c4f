package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store/cache"
	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
	"github.com/darceymckelvey/codestrata-auth/pkg/idx"
	"github.com/darceymckelvey/codestrata-auth/pkg/jwtx"
	"github.com/darceymckelvey/codestrata-auth/pkg/slogx"
)

// ErrProfileWaitTimeout means a caller gave up waiting on the shared
// profile fetch. The fetch itself keeps running.
var ErrProfileWaitTimeout = errors.New("session: timed out waiting for in-flight profile fetch")

// AuthAPI is the slice of the backend client the manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*authsdk.AuthResponse, error)
	Register(ctx context.Context, req authsdk.RegisterRequest) (*authsdk.AuthResponse, error)
	Profile(ctx context.Context, accessToken string) (*authsdk.UserProfile, error)
	GitHubLoginURL(ctx context.Context, purpose string) (string, error)
	GitHubCallback(ctx context.Context, code, state string) (*authsdk.AuthResponse, error)
}

// Manager is the session state machine: the single authoritative in-memory
// belief about whether the user is authenticated, and the only component
// allowed to mutate it. Everything observable leaves as a copy.
//
// A generation counter guards against results of flights that complete
// after a logout: any async completion carrying a stale generation is
// discarded.
type Manager struct {
	log       *slog.Logger
	api       AuthAPI
	store     *store.Store
	cache     *cache.Cache
	validator *jwtx.Validator
	coord     *Coordinator
	bus       *Broadcaster
	watchdog  *Watchdog

	// WaitTimeout bounds how long a profile caller waits on the shared
	// single-flight fetch.
	WaitTimeout time.Duration

	mu          sync.Mutex
	status      domain.Status
	user        *domain.UserProfile
	initialized bool
	gen         uint64

	profileGroup singleflight.Group
}

func NewManager(
	log *slog.Logger,
	api AuthAPI,
	st *store.Store,
	ca *cache.Cache,
	validator *jwtx.Validator,
	coord *Coordinator,
) *Manager {
	return &Manager{
		log:         log,
		api:         api,
		store:       st,
		cache:       ca,
		validator:   validator,
		coord:       coord,
		bus:         NewBroadcaster(),
		WaitTimeout: 20 * time.Second,
	}
}

// AttachWatchdog wires the inactivity/expiry watchdog. The manager arms it
// on every new token and disarms it on logout.
func (m *Manager) AttachWatchdog(w *Watchdog) { m.watchdog = w }

// Subscribe registers a state observer and returns its cancel function.
func (m *Manager) Subscribe(fn Subscriber) func() { return m.bus.Subscribe(fn) }

// State returns a copy of the current session state.
func (m *Manager) State() domain.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.SessionState{Status: m.status, User: m.user.Clone()}
}

// Token returns the current access token from the store, empty when none.
func (m *Manager) Token() string { return m.store.Token() }

// IsAuthenticated is a synchronous, side-effect-free predicate. Before the
// in-memory belief is initialized (right after process start), it
// re-derives the answer from the token store and validator; a structurally
// valid but expired token still counts, because a refresh may revive it.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	if m.initialized {
		auth := m.status.Authenticated()
		m.mu.Unlock()
		return auth
	}
	m.mu.Unlock()

	token := m.store.Token()
	if token == "" {
		return false
	}
	err := m.validator.Validate(token)
	return err == nil || errors.Is(err, jwtx.ErrTokenExpired)
}

// Login exchanges credentials for a session. On failure the state stays
// Unauthenticated and the typed error propagates to the caller.
func (m *Manager) Login(ctx context.Context, email, password string) (*domain.UserProfile, error) {
	resp, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.applyAuthResponse(ctx, resp), nil
}

// Register creates an account; the backend replies with the same session
// shape as login.
func (m *Manager) Register(ctx context.Context, req authsdk.RegisterRequest) (*domain.UserProfile, error) {
	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return m.applyAuthResponse(ctx, resp), nil
}

// applyAuthResponse installs a fresh session from a login/register/exchange
// response.
func (m *Manager) applyAuthResponse(ctx context.Context, resp *authsdk.AuthResponse) *domain.UserProfile {
	version := resp.TokenVersion
	if version == nil {
		version = versionFromToken(resp.Token)
	}
	m.store.SetTokens(resp.Token, resp.RefreshToken, version)
	m.coord.Reset()

	user := domain.ProfileFromWire(resp.User)

	m.mu.Lock()
	m.gen++
	m.status = domain.StatusAuthenticated
	m.user = user
	m.initialized = true
	snap := domain.SessionState{Status: m.status, User: m.user.Clone()}
	m.mu.Unlock()

	if m.cache != nil && user != nil {
		if err := m.cache.SaveProfile(ctx, user); err != nil {
			m.log.Warn("profile cache write failed", "error", err)
		}
	}

	m.armWatchdog(resp.Token)
	m.bus.Publish(snap)

	return user.Clone()
}

// Logout flips the state synchronously before any cleanup, so observers
// react immediately; storage and cache cleanup is best-effort afterwards.
func (m *Manager) Logout(ctx context.Context, reason domain.Reason) {
	m.mu.Lock()
	m.gen++
	m.status = domain.StatusUnauthenticated
	m.user = nil
	m.initialized = true
	snap := domain.SessionState{Status: domain.StatusUnauthenticated, Reason: reason}
	m.mu.Unlock()

	if m.watchdog != nil {
		m.watchdog.Disarm()
	}
	m.bus.Publish(snap)

	m.store.ClearTokens()
	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			m.log.Warn("cache clear failed during logout", "error", err)
		}
	}
	m.log.Info("logged out", slog.String("reason", string(reason)))
}

// Refresh runs a coordinated token refresh and applies its session-state
// consequences. Used by the watchdog's proactive refresh and exposed to
// consumers that want an explicit refresh.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	res, err := m.coord.Refresh(ctx)
	if err != nil {
		return m.handleRefreshFailure(ctx, gen, err)
	}

	m.mu.Lock()
	stale := m.gen != gen
	var statusChanged bool
	var snap domain.SessionState
	if !stale {
		statusChanged = m.status != domain.StatusAuthenticated
		m.status = domain.StatusAuthenticated
		m.initialized = true
		if res.User != nil {
			m.user = res.User
		}
		snap = domain.SessionState{Status: m.status, User: m.user.Clone()}
	}
	m.mu.Unlock()

	if stale {
		m.log.Debug("discarding refresh result from a previous session generation")
		return nil
	}

	m.armWatchdog(res.Credential.AccessToken)
	if statusChanged {
		// A degraded session just recovered; observers need to know.
		m.bus.Publish(snap)
	}
	return nil
}

// handleRefreshFailure maps a refresh error onto session state. Only a
// server-confirmed dead refresh token (or an exhausted/absent one) can end
// the session, and even then a cached snapshot downgrades the ending to
// degraded mode.
func (m *Manager) handleRefreshFailure(ctx context.Context, gen uint64, err error) error {
	kind := authsdk.KindOf(err)
	switch {
	case kind == authsdk.KindRefreshInvalid,
		errors.Is(err, ErrNoRefreshToken),
		errors.Is(err, ErrRefreshExhausted):
		m.degradeOrEnd(ctx, gen)
	case kind == authsdk.KindNetwork, kind == authsdk.KindServer:
		// Transient: never log out on connectivity loss.
	default:
		// Wait timeouts, throttling, denied: state unchanged.
	}
	return err
}

// degradeOrEnd is the availability-over-consistency rule: when a cached
// snapshot of the user's profile or owned vaults exists, an authentication
// failure that would force logout keeps the session alive in degraded mode
// instead, preserving access to cached content while recovery is attempted.
func (m *Manager) degradeOrEnd(ctx context.Context, gen uint64) {
	hasSnapshot := m.cache != nil && m.cache.HasSnapshot(ctx)

	var cachedUser *domain.UserProfile
	if hasSnapshot && m.cache != nil {
		cachedUser, _ = m.cache.Profile(ctx)
	}

	m.mu.Lock()
	if m.gen != gen || (m.initialized && m.status == domain.StatusUnauthenticated) {
		m.mu.Unlock()
		return
	}

	var snap domain.SessionState
	if hasSnapshot {
		if m.status == domain.StatusDegraded {
			m.mu.Unlock()
			return
		}
		m.status = domain.StatusDegraded
		m.initialized = true
		if m.user == nil {
			m.user = cachedUser
		}
		snap = domain.SessionState{Status: m.status, User: m.user.Clone()}
		m.mu.Unlock()

		m.log.Warn("session degraded to cached data")
		m.bus.Publish(snap)
		return
	}

	m.gen++
	m.status = domain.StatusUnauthenticated
	m.user = nil
	m.initialized = true
	snap = domain.SessionState{Status: m.status, Reason: domain.ReasonSessionExpired}
	m.mu.Unlock()

	if m.watchdog != nil {
		m.watchdog.Disarm()
	}
	m.bus.Publish(snap)
	m.store.ClearTokens()
}

// Profile returns the user's profile. A cached in-memory profile is served
// immediately while a background refresh runs; otherwise the caller joins
// the shared single-flight fetch.
func (m *Manager) Profile(ctx context.Context) (*domain.UserProfile, error) {
	m.mu.Lock()
	cached := m.user.Clone()
	gen := m.gen
	m.mu.Unlock()

	if cached != nil {
		go func() {
			if _, err := m.fetchProfile(context.Background(), gen); err != nil {
				m.log.Debug("background profile refresh failed", "error", err)
			}
		}()
		return cached, nil
	}

	return m.fetchProfile(ctx, gen)
}

// fetchProfile joins the single-flight profile fetch with a bounded wait.
func (m *Manager) fetchProfile(ctx context.Context, gen uint64) (*domain.UserProfile, error) {
	ch := m.profileGroup.DoChan("profile", func() (any, error) {
		return m.profileFlight(ctx, gen)
	})

	var timeout <-chan time.Time
	if m.WaitTimeout > 0 {
		timer := time.NewTimer(m.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.UserProfile).Clone(), nil
	case <-timeout:
		return nil, ErrProfileWaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// profileFlight is the one network profile fetch shared by all current
// callers. On 401 it delegates to the refresh coordinator and retries
// exactly once with the new token.
func (m *Manager) profileFlight(ctx context.Context, gen uint64) (*domain.UserProfile, error) {
	ctx = slogx.WithContext(context.WithoutCancel(ctx), m.log)
	ctx = slogx.WithFlightID(ctx, idx.New().String())
	log := slogx.FromContext(ctx)

	token := m.store.Token()
	if token == "" {
		return nil, &authsdk.AuthError{Kind: authsdk.KindTokenExpired, Message: "no access token"}
	}

	// A token already known to be expired is refreshed up front rather
	// than burned on a request the server will reject.
	if errors.Is(m.validator.Validate(token), jwtx.ErrTokenExpired) {
		if _, rerr := m.coord.Refresh(ctx); rerr != nil {
			_ = m.handleRefreshFailure(ctx, gen, rerr)
			return m.cachedOrError(ctx, rerr)
		}
		token = m.store.Token()
		log.Debug("refreshed expired token before profile fetch")
	}

	wire, err := m.profileAttempt(ctx, token)
	if err == nil {
		return m.applyProfile(ctx, gen, wire)
	}

	switch authsdk.KindOf(err) {
	case authsdk.KindTokenExpired:
		if _, rerr := m.coord.Refresh(ctx); rerr != nil {
			_ = m.handleRefreshFailure(ctx, gen, rerr)
			return m.cachedOrError(ctx, rerr)
		}

		wire, err = m.profileAttempt(ctx, m.store.Token())
		if err == nil {
			return m.applyProfile(ctx, gen, wire)
		}
		if authsdk.KindOf(err) == authsdk.KindTokenExpired {
			log.Warn("profile still rejected after a successful refresh")
			m.degradeOrEnd(ctx, gen)
		}
		return m.cachedOrError(ctx, err)

	case authsdk.KindNetwork, authsdk.KindServer:
		// Connectivity loss never changes session state; a cached profile
		// keeps the UI alive.
		return m.cachedOrError(ctx, err)

	default:
		// Denied and protocol errors propagate untouched; a permission
		// mismatch is not an authentication failure.
		return nil, err
	}
}

// profileAttempt wraps the wire call with the transient-only retry policy.
func (m *Manager) profileAttempt(ctx context.Context, token string) (*authsdk.UserProfile, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = 3 * time.Second

	var wire *authsdk.UserProfile
	op := func() error {
		var err error
		wire, err = m.api.Profile(ctx, token)
		if err == nil {
			return nil
		}
		var ae *authsdk.AuthError
		if errors.As(err, &ae) && ae.Transient() {
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return wire, nil
}

// applyProfile installs a freshly fetched profile unless the session
// generation moved on while the fetch was in flight.
func (m *Manager) applyProfile(ctx context.Context, gen uint64, wire *authsdk.UserProfile) (*domain.UserProfile, error) {
	user := domain.ProfileFromWire(wire)

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.log.Debug("discarding profile fetched for a previous session generation")
		return user, nil
	}
	m.user = user
	statusChanged := m.status != domain.StatusAuthenticated
	m.status = domain.StatusAuthenticated
	m.initialized = true
	snap := domain.SessionState{Status: m.status, User: m.user.Clone()}
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.SaveProfile(ctx, user); err != nil {
			m.log.Warn("profile cache write failed", "error", err)
		}
	}

	if statusChanged {
		m.bus.Publish(snap)
	}
	return user, nil
}

// cachedOrError serves the offline cache when the live fetch failed for a
// reason that should not end the session.
func (m *Manager) cachedOrError(ctx context.Context, err error) (*domain.UserProfile, error) {
	if m.cache != nil {
		if p, cerr := m.cache.Profile(ctx); cerr == nil && p != nil {
			return p, nil
		}
	}
	return nil, err
}

// HandleExternalAuthSuccess installs a session from a completed GitHub
// OAuth exchange. Strict validation is skipped: the opaque provider dialect
// carries no claims. The state flips to Authenticated immediately to avoid
// racy UI, and the profile is fetched asynchronously when not supplied.
func (m *Manager) HandleExternalAuthSuccess(ctx context.Context, token, refreshToken string, profile *authsdk.UserProfile) {
	m.store.ClearTokens()
	m.store.SetTokens(token, refreshToken, versionFromToken(token))
	m.coord.Reset()

	user := domain.ProfileFromWire(profile)

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.status = domain.StatusAuthenticated
	m.user = user
	m.initialized = true
	snap := domain.SessionState{Status: m.status, User: m.user.Clone()}
	m.mu.Unlock()

	m.armWatchdog(token)
	m.bus.Publish(snap)

	if user != nil {
		if m.cache != nil {
			if err := m.cache.SaveProfile(ctx, user); err != nil {
				m.log.Warn("profile cache write failed", "error", err)
			}
		}
		return
	}

	go func() {
		if _, err := m.fetchProfile(context.Background(), gen); err != nil {
			m.log.Warn("post-exchange profile fetch failed", "error", err)
		}
	}()
}

// ExternalAuthURL asks the backend for the GitHub authorization URL.
func (m *Manager) ExternalAuthURL(ctx context.Context, purpose string) (string, error) {
	return m.api.GitHubLoginURL(ctx, purpose)
}

// CompleteExternalAuth exchanges the OAuth code/state pair delivered on the
// provider redirect and installs the resulting session.
func (m *Manager) CompleteExternalAuth(ctx context.Context, code, state string) (*domain.UserProfile, error) {
	resp, err := m.api.GitHubCallback(ctx, code, state)
	if err != nil {
		return nil, err
	}
	m.HandleExternalAuthSuccess(ctx, resp.Token, resp.RefreshToken, resp.User)
	return domain.ProfileFromWire(resp.User), nil
}

func (m *Manager) armWatchdog(token string) {
	if m.watchdog != nil {
		m.watchdog.Arm(token)
	}
}
