package service

import (
	"sync"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/pkg/idx"
)

// Subscriber receives session state snapshots. Deliveries are copies;
// mutating them affects nothing.
type Subscriber func(domain.SessionState)

// Broadcaster is an explicit subscribe/unsubscribe registry for state
// change notifications. No global event bus: consumers hold the cancel
// function returned by Subscribe and call it on teardown, so nothing acts
// on state for a consumer that is already gone.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[idx.ID]Subscriber
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[idx.ID]Subscriber)}
}

// Subscribe registers fn and returns its cancel function. Cancel is
// idempotent.
func (b *Broadcaster) Subscribe(fn Subscriber) func() {
	id := idx.New()

	b.mu.Lock()
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers a snapshot to every subscriber. Each subscriber gets its
// own copy of the user profile. Delivery happens outside the registry lock
// so a subscriber may unsubscribe (or subscribe) from within its callback.
func (b *Broadcaster) Publish(state domain.SessionState) {
	b.mu.Lock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, fn := range b.subs {
		targets = append(targets, fn)
	}
	b.mu.Unlock()

	for _, fn := range targets {
		snapshot := state
		snapshot.User = state.User.Clone()
		fn(snapshot)
	}
}

// Len reports the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
