package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/pkg/jwtx"
)

// Watchdog is the background session timer, independent of any particular
// HTTP call. It watches for user inactivity, schedules a proactive refresh
// a margin before the access token expires, and emits an expiry-imminent
// warning at a shorter margin. Timer-level problems are logged, never
// surfaced as errors.
type Watchdog struct {
	log *slog.Logger

	// IdleTimeout forces logout after this much time without activity.
	IdleTimeout time.Duration

	// CheckInterval is how often inactivity is evaluated.
	CheckInterval time.Duration

	// RefreshMargin schedules the proactive refresh this long before
	// token expiry.
	RefreshMargin time.Duration

	// WarnMargin schedules the expiry warning this long before expiry.
	// Must be shorter than RefreshMargin to be useful.
	WarnMargin time.Duration

	// OnIdle fires when the idle threshold is crossed.
	OnIdle func(domain.Reason)

	// OnProactiveRefresh fires at the refresh margin.
	OnProactiveRefresh func()

	// OnExpiryWarning fires at the warn margin with the time remaining.
	OnExpiryWarning func(remaining time.Duration)

	mu           sync.Mutex
	lastActivity time.Time
	armed        bool
	refreshTimer *time.Timer
	warnTimer    *time.Timer
	done         chan struct{}
}

func NewWatchdog(log *slog.Logger) *Watchdog {
	return &Watchdog{
		log:           log,
		IdleTimeout:   30 * time.Minute,
		CheckInterval: 30 * time.Second,
		RefreshMargin: 2 * time.Minute,
		WarnMargin:    time.Minute,
		lastActivity:  time.Now(),
	}
}

// Start launches the inactivity loop. Stop must be called on teardown.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return
	}
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.idleLoop(done)
}

// Stop halts the inactivity loop and cancels all pending timers.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.done != nil {
		close(w.done)
		w.done = nil
	}
	w.mu.Unlock()

	w.Disarm()
}

func (w *Watchdog) idleLoop(done <-chan struct{}) {
	ticker := time.NewTicker(w.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			w.checkIdle()
		}
	}
}

func (w *Watchdog) checkIdle() {
	w.mu.Lock()
	idle := w.armed && time.Since(w.lastActivity) >= w.IdleTimeout
	if idle {
		w.disarmLocked()
	}
	onIdle := w.OnIdle
	w.mu.Unlock()

	if idle {
		w.log.Info("idle threshold crossed, forcing logout")
		if onIdle != nil {
			onIdle(domain.ReasonIdleTimeout)
		}
	}
}

// Touch records user activity. A pending expiry warning is cancelled; the
// scheduled proactive refresh still fires.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastActivity = time.Now()
	if w.warnTimer != nil {
		w.warnTimer.Stop()
		w.warnTimer = nil
	}
}

// Arm (re)schedules the proactive refresh and the expiry warning from the
// token's expiry claim. Opaque tokens carry no expiry, so only the idle
// watch applies to them.
func (w *Watchdog) Arm(accessToken string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.disarmLocked()
	w.armed = true
	w.lastActivity = time.Now()

	expiry, ok := jwtx.Expiry(accessToken)
	if !ok {
		w.log.Debug("token carries no expiry, scheduling idle watch only")
		return
	}

	untilExpiry := time.Until(expiry)

	refreshIn := untilExpiry - w.RefreshMargin
	if refreshIn < 0 {
		refreshIn = 0
	}
	w.refreshTimer = time.AfterFunc(refreshIn, func() {
		w.log.Debug("proactive refresh timer fired")
		if w.OnProactiveRefresh != nil {
			w.OnProactiveRefresh()
		}
	})

	warnIn := untilExpiry - w.WarnMargin
	if warnIn < 0 {
		warnIn = 0
	}
	var warn *time.Timer
	warn = time.AfterFunc(warnIn, func() {
		// A re-arm or disarm may have replaced this timer between firing
		// and acquiring the lock; only the current timer may warn.
		w.mu.Lock()
		current := w.warnTimer == warn
		if current {
			w.warnTimer = nil
		}
		w.mu.Unlock()

		if current && w.OnExpiryWarning != nil {
			w.OnExpiryWarning(time.Until(expiry))
		}
	})
	w.warnTimer = warn
}

// Disarm cancels both one-shot timers and suspends the idle watch. Called
// when the session becomes unauthenticated.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.disarmLocked()
}

func (w *Watchdog) disarmLocked() {
	w.armed = false
	if w.refreshTimer != nil {
		w.refreshTimer.Stop()
		w.refreshTimer = nil
	}
	if w.warnTimer != nil {
		w.warnTimer.Stop()
		w.warnTimer = nil
	}
}

// Armed reports whether expiry timers are currently scheduled or the idle
// watch is active.
func (w *Watchdog) Armed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// WarningPending reports whether the expiry warning is still scheduled.
func (w *Watchdog) WarningPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.warnTimer != nil
}
