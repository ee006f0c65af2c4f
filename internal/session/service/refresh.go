package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store"
	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
	"github.com/darceymckelvey/codestrata-auth/pkg/idx"
	"github.com/darceymckelvey/codestrata-auth/pkg/jwtx"
)

var (
	// ErrNoRefreshToken means there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("session: no refresh token available")

	// ErrRefreshExhausted means the bounded attempt budget is spent;
	// automatic refreshes are refused until a successful login resets it.
	ErrRefreshExhausted = errors.New("session: refresh attempts exhausted")

	// ErrRefreshWaitTimeout means a waiter joined an in-flight refresh and
	// gave up waiting. The flight itself keeps running.
	ErrRefreshWaitTimeout = errors.New("session: timed out waiting for in-flight refresh")

	// ErrRefreshThrottled means automatic refreshes are arriving faster
	// than the rate limit allows.
	ErrRefreshThrottled = errors.New("session: refresh attempts throttled")
)

// RefreshAPI is the slice of the backend client the coordinator needs.
type RefreshAPI interface {
	RefreshToken(ctx context.Context, refreshToken string) (*authsdk.RefreshResponse, error)
}

// RefreshResult is the shared outcome of one refresh flight.
type RefreshResult struct {
	Credential domain.Credential

	// User is populated when the refresh response carried a profile.
	User *domain.UserProfile
}

// Coordinator guarantees at most one in-flight refresh call system-wide.
// Concurrent callers join the running flight and share its outcome; a
// bounded wait keeps a hung flight from blocking waiters forever.
//
// The coordinator never destroys credentials itself: whether a failed
// refresh ends the session, degrades it, or leaves it untouched is the
// manager's call, because it depends on the offline cache.
type Coordinator struct {
	log   *slog.Logger
	api   RefreshAPI
	store *store.Store

	// WaitTimeout bounds how long a joining caller waits for the shared
	// outcome.
	WaitTimeout time.Duration

	// MaxAttempts bounds consecutive failed flights before automatic
	// refresh is refused.
	MaxAttempts int

	// RetryElapsed bounds the transport-level retry loop inside one flight.
	RetryElapsed time.Duration

	limiter *rate.Limiter
	group   singleflight.Group

	mu       sync.Mutex
	failures int
	lastErr  error
	active   bool
}

func NewCoordinator(log *slog.Logger, api RefreshAPI, st *store.Store) *Coordinator {
	return &Coordinator{
		log:          log,
		api:          api,
		store:        st,
		WaitTimeout:  20 * time.Second,
		MaxAttempts:  5,
		RetryElapsed: 3 * time.Second,
		limiter:      rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// SetRateLimit replaces the automatic-refresh throttle.
func (c *Coordinator) SetRateLimit(l *rate.Limiter) { c.limiter = l }

// Refresh obtains a fresh credential, joining an in-flight refresh when one
// exists. The returned error is either one of the coordinator sentinels or
// the classified *authsdk.AuthError from the flight.
func (c *Coordinator) Refresh(ctx context.Context) (RefreshResult, error) {
	c.mu.Lock()
	if c.MaxAttempts > 0 && c.failures >= c.MaxAttempts {
		c.mu.Unlock()
		return RefreshResult{}, ErrRefreshExhausted
	}
	c.mu.Unlock()

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.flight(ctx)
	})

	var timeout <-chan time.Time
	if c.WaitTimeout > 0 {
		timer := time.NewTimer(c.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return RefreshResult{}, res.Err
		}
		return res.Val.(RefreshResult), nil
	case <-timeout:
		// Fail locally; the flight keeps running and its eventual result
		// still lands in the store for the next caller.
		return RefreshResult{}, ErrRefreshWaitTimeout
	case <-ctx.Done():
		return RefreshResult{}, ctx.Err()
	}
}

// flight performs the single network refresh call for all current waiters.
func (c *Coordinator) flight(ctx context.Context) (RefreshResult, error) {
	flightID := idx.New()
	log := c.log.With(slog.String("flight_id", flightID.String()))

	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return RefreshResult{}, ErrNoRefreshToken
	}

	if c.limiter != nil && !c.limiter.Allow() {
		return RefreshResult{}, ErrRefreshThrottled
	}

	c.setActive(true)
	defer c.setActive(false)

	// The flight deliberately detaches from the first waiter's context:
	// a waiter timing out must not cancel the call other waiters share.
	flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.WaitTimeout+10*time.Second)
	defer cancel()

	resp, err := c.attempt(flightCtx, refreshToken)
	if err != nil {
		return RefreshResult{}, c.recordFailure(log, err)
	}

	version := versionFromToken(resp.Token)
	c.store.SetTokens(resp.Token, resp.RefreshToken, version)

	c.mu.Lock()
	c.failures = 0
	c.lastErr = nil
	c.mu.Unlock()

	log.Info("refresh complete", slog.Bool("has_user", resp.User != nil))

	return RefreshResult{
		Credential: domain.Credential{
			AccessToken:  resp.Token,
			RefreshToken: resp.RefreshToken,
			TokenVersion: version,
		},
		User: domain.ProfileFromWire(resp.User),
	}, nil
}

// attempt issues the wire call with a bounded exponential-backoff retry for
// transient transport faults. Server-confirmed outcomes are permanent:
// retrying a dead refresh token only hammers the backend.
func (c *Coordinator) attempt(ctx context.Context, refreshToken string) (*authsdk.RefreshResponse, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = c.RetryElapsed

	var resp *authsdk.RefreshResponse
	op := func() error {
		var err error
		resp, err = c.api.RefreshToken(ctx, refreshToken)
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
	return resp, nil
}

// recordFailure bumps the attempt counter and applies the per-category
// credential effect, then hands the original classified error back for the
// manager's state decision.
func (c *Coordinator) recordFailure(log *slog.Logger, err error) error {
	c.mu.Lock()
	c.failures++
	c.lastErr = err
	failures := c.failures
	c.mu.Unlock()

	log.Warn("refresh failed",
		slog.String("kind", authsdk.KindOf(err).String()),
		slog.Int("failures", failures),
	)

	// The credential-destruction decision belongs to the session layer: a
	// dead refresh token ends or degrades the session depending on the
	// offline cache, and a degraded session keeps its credentials so
	// recovery attempts have something to retry with.
	return err
}

// Reset clears the failure budget. Called after a successful login.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
	c.lastErr = nil
}

// Failures reports consecutive failed flights.
func (c *Coordinator) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// LastError reports the most recent flight failure, nil after success.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Active reports whether a refresh flight is running right now.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) setActive(v bool) {
	c.mu.Lock()
	c.active = v
	c.mu.Unlock()
}

// versionFromToken extracts the token version claim when the new access
// token carries one.
func versionFromToken(token string) *int {
	if claims := jwtx.DecodeClaims(token); claims != nil {
		return claims.TokenVersion
	}
	return nil
}
