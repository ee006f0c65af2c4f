package service_test

import (
	"strings"
	"testing"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/internal/session/service"
	"github.com/darceymckelvey/codestrata-auth/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestWatchdogIdleLogout(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.IdleTimeout = 50 * time.Millisecond
	w.CheckInterval = 10 * time.Millisecond

	idle := make(chan domain.Reason, 1)
	w.OnIdle = func(r domain.Reason) { idle <- r }

	w.Start()
	defer w.Stop()
	w.Arm("gho_" + strings.Repeat("x", 40))

	select {
	case r := <-idle:
		require.Equal(t, domain.ReasonIdleTimeout, r)
	case <-time.After(2 * time.Second):
		t.Fatal("idle threshold never fired")
	}
	require.False(t, w.Armed(), "idle logout disarms the watchdog")
}

func TestWatchdogTouchDefersIdle(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.IdleTimeout = 80 * time.Millisecond
	w.CheckInterval = 10 * time.Millisecond

	idle := make(chan domain.Reason, 1)
	w.OnIdle = func(r domain.Reason) { idle <- r }

	w.Start()
	defer w.Stop()
	w.Arm("gho_" + strings.Repeat("x", 40))

	// Keep touching past the original deadline.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		w.Touch()
	}

	select {
	case <-idle:
		t.Fatal("idle fired despite activity")
	default:
	}
	require.True(t, w.Armed())
}

func TestWatchdogProactiveRefresh(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.RefreshMargin = 100 * time.Millisecond
	w.WarnMargin = 20 * time.Millisecond

	refreshed := make(chan struct{}, 1)
	w.OnProactiveRefresh = func() { refreshed <- struct{}{} }

	w.Arm(signedToken(t, time.Now().Add(150*time.Millisecond)))
	defer w.Disarm()

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("proactive refresh never fired")
	}
}

func TestWatchdogExpiryWarning(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.RefreshMargin = 120 * time.Millisecond
	w.WarnMargin = 100 * time.Millisecond

	warned := make(chan time.Duration, 1)
	w.OnExpiryWarning = func(remaining time.Duration) { warned <- remaining }

	w.Arm(signedToken(t, time.Now().Add(150*time.Millisecond)))
	defer w.Disarm()

	select {
	case remaining := <-warned:
		require.LessOrEqual(t, remaining, 150*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("expiry warning never fired")
	}
	require.False(t, w.WarningPending())
}

func TestWatchdogTouchCancelsWarningOnly(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.RefreshMargin = 50 * time.Millisecond
	w.WarnMargin = 30 * time.Millisecond

	warned := make(chan struct{}, 1)
	refreshed := make(chan struct{}, 1)
	w.OnExpiryWarning = func(time.Duration) { warned <- struct{}{} }
	w.OnProactiveRefresh = func() { refreshed <- struct{}{} }

	w.Arm(signedToken(t, time.Now().Add(time.Hour)))
	defer w.Disarm()
	require.True(t, w.WarningPending())

	w.Touch()
	require.False(t, w.WarningPending(), "activity cancels the pending warning")
	require.True(t, w.Armed(), "the refresh schedule survives")
}

func TestWatchdogOpaqueTokenIdleWatchOnly(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())

	w.Arm("gho_" + strings.Repeat("x", 40))
	defer w.Disarm()

	require.True(t, w.Armed())
	require.False(t, w.WarningPending(), "no expiry claim, no expiry timers")
}

func TestWatchdogStaleWarningCannotDisarmRearm(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.RefreshMargin = 2 * time.Hour
	w.WarnMargin = time.Hour

	warned := make(chan struct{}, 2)
	w.OnExpiryWarning = func(time.Duration) { warned <- struct{}{} }

	// First token expires inside the warn margin, so its warning fires
	// immediately; the second arm lands while that callback may still be
	// racing for the lock.
	w.Arm(signedToken(t, time.Now().Add(time.Minute)))
	w.Arm(signedToken(t, time.Now().Add(3*time.Hour)))
	defer w.Disarm()

	time.Sleep(50 * time.Millisecond)
	require.True(t, w.WarningPending(), "the re-armed warning stays scheduled")

	w.Touch()
	require.False(t, w.WarningPending(), "activity can still cancel it")
}

func TestWatchdogRearmReplacesSchedule(t *testing.T) {
	w := service.NewWatchdog(slogx.Discard())
	w.RefreshMargin = 10 * time.Millisecond
	w.WarnMargin = 5 * time.Millisecond

	w.Arm(signedToken(t, time.Now().Add(time.Hour)))
	w.Arm(signedToken(t, time.Now().Add(2*time.Hour)))
	defer w.Disarm()

	require.True(t, w.Armed())
	require.True(t, w.WarningPending())

	w.Disarm()
	require.False(t, w.Armed())
	require.False(t, w.WarningPending())
}
