package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/darceymckelvey/codestrata-auth/internal/session/service"
	"github.com/darceymckelvey/codestrata-auth/internal/session/store"
	"github.com/darceymckelvey/codestrata-auth/pkg/authsdk"
	"github.com/darceymckelvey/codestrata-auth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// fakeRefreshAPI scripts the backend's refresh behavior and counts calls.
type fakeRefreshAPI struct {
	mu      sync.Mutex
	calls   atomic.Int32
	delay   time.Duration
	resp    *authsdk.RefreshResponse
	err     error
	release chan struct{} // when set, calls block until closed
}

func (f *fakeRefreshAPI) RefreshToken(ctx context.Context, refreshToken string) (*authsdk.RefreshResponse, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestTokenStore(t *testing.T) *store.Store {
	t.Helper()
	tier := store.NewFileTier(t.TempDir())
	return store.New(slogx.Discard(), tier, tier)
}

func newTestCoordinator(t *testing.T, api service.RefreshAPI) (*service.Coordinator, *store.Store) {
	t.Helper()
	st := newTestTokenStore(t)
	c := service.NewCoordinator(slogx.Discard(), api, st)
	c.SetRateLimit(rate.NewLimiter(rate.Inf, 1))
	c.RetryElapsed = 100 * time.Millisecond
	return c, st
}

func TestRefreshSingleFlight(t *testing.T) {
	api := &fakeRefreshAPI{
		delay: 100 * time.Millisecond,
		resp:  &authsdk.RefreshResponse{Token: "t2", RefreshToken: "r2"},
	}
	coord, st := newTestCoordinator(t, api)
	st.SetTokens("t1", "r1", nil)

	const waiters = 8
	results := make([]service.RefreshResult, waiters)
	errs := make([]error, waiters)

	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Refresh(context.Background())
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, api.calls.Load(), "exactly one network refresh")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "t2", results[i].Credential.AccessToken)
		require.Equal(t, "r2", results[i].Credential.RefreshToken)
	}
	require.Equal(t, "t2", st.Token())
}

func TestRefreshFailureTaxonomy(t *testing.T) {
	t.Run("invalid refresh token leaves credentials for the session layer", func(t *testing.T) {
		api := &fakeRefreshAPI{err: &authsdk.AuthError{Kind: authsdk.KindRefreshInvalid, Status: 401, Code: authsdk.CodeInvalidRefreshToken}}
		coord, st := newTestCoordinator(t, api)
		st.SetTokens("t1", "r1", nil)

		_, err := coord.Refresh(context.Background())
		require.Equal(t, authsdk.KindRefreshInvalid, authsdk.KindOf(err))
		// The coordinator only reports; whether the credential dies is the
		// manager's decision.
		require.Equal(t, "t1", st.Token())
		require.Equal(t, "r1", st.RefreshToken())
		require.Equal(t, 1, coord.Failures())
	})

	t.Run("network failure keeps credentials", func(t *testing.T) {
		api := &fakeRefreshAPI{err: &authsdk.AuthError{Kind: authsdk.KindNetwork, Message: "unreachable"}}
		coord, st := newTestCoordinator(t, api)
		st.SetTokens("t1", "r1", nil)

		_, err := coord.Refresh(context.Background())
		require.Equal(t, authsdk.KindNetwork, authsdk.KindOf(err))
		require.Equal(t, "t1", st.Token())
		require.Equal(t, "r1", st.RefreshToken())
	})

	t.Run("server error keeps credentials", func(t *testing.T) {
		api := &fakeRefreshAPI{err: &authsdk.AuthError{Kind: authsdk.KindServer, Status: 502}}
		coord, st := newTestCoordinator(t, api)
		st.SetTokens("t1", "r1", nil)

		_, err := coord.Refresh(context.Background())
		require.Equal(t, authsdk.KindServer, authsdk.KindOf(err))
		require.Equal(t, "t1", st.Token())
	})
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	api := &fakeRefreshAPI{}
	coord, _ := newTestCoordinator(t, api)

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, service.ErrNoRefreshToken)
	require.Zero(t, api.calls.Load())
}

func TestRefreshAttemptBudget(t *testing.T) {
	api := &fakeRefreshAPI{err: &authsdk.AuthError{Kind: authsdk.KindServer, Status: 500}}
	coord, st := newTestCoordinator(t, api)
	coord.MaxAttempts = 2
	st.SetTokens("t1", "r1", nil)

	for i := 0; i < 2; i++ {
		_, err := coord.Refresh(context.Background())
		require.Error(t, err)
		require.NotErrorIs(t, err, service.ErrRefreshExhausted)
	}

	calls := api.calls.Load()
	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, service.ErrRefreshExhausted)
	require.Equal(t, calls, api.calls.Load(), "no network call once exhausted")

	// A successful login resets the budget.
	coord.Reset()
	api.mu.Lock()
	api.err = nil
	api.resp = &authsdk.RefreshResponse{Token: "t2", RefreshToken: "r2"}
	api.mu.Unlock()

	_, err = coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Zero(t, coord.Failures())
}

func TestRefreshWaiterTimeout(t *testing.T) {
	release := make(chan struct{})
	api := &fakeRefreshAPI{
		release: release,
		resp:    &authsdk.RefreshResponse{Token: "t2", RefreshToken: "r2"},
	}
	coord, st := newTestCoordinator(t, api)
	coord.WaitTimeout = 50 * time.Millisecond
	st.SetTokens("t1", "r1", nil)

	_, err := coord.Refresh(context.Background())
	require.ErrorIs(t, err, service.ErrRefreshWaitTimeout)

	// The flight was not cancelled: once the backend responds, its result
	// still lands in the store.
	close(release)
	require.Eventually(t, func() bool {
		return st.Token() == "t2"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefreshRetriesTransientErrors(t *testing.T) {
	api := &sequencedAPI{
		outcomes: []refreshOutcome{
			{err: &authsdk.AuthError{Kind: authsdk.KindNetwork, Message: "blip"}},
			{resp: &authsdk.RefreshResponse{Token: "t2", RefreshToken: "r2"}},
		},
	}
	st := newTestTokenStore(t)
	st.SetTokens("t1", "r1", nil)

	coord := service.NewCoordinator(slogx.Discard(), api, st)
	coord.SetRateLimit(rate.NewLimiter(rate.Inf, 1))
	coord.RetryElapsed = 2 * time.Second

	res, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "t2", res.Credential.AccessToken)
	require.EqualValues(t, 2, api.calls.Load())
}

type refreshOutcome struct {
	resp *authsdk.RefreshResponse
	err  error
}

// sequencedAPI replays scripted outcomes in order, repeating the last one.
type sequencedAPI struct {
	mu       sync.Mutex
	calls    atomic.Int32
	outcomes []refreshOutcome
}

func (s *sequencedAPI) RefreshToken(ctx context.Context, refreshToken string) (*authsdk.RefreshResponse, error) {
	n := int(s.calls.Add(1)) - 1
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.outcomes) {
		n = len(s.outcomes) - 1
	}
	o := s.outcomes[n]
	return o.resp, o.err
}
