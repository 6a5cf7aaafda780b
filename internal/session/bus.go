// Package session implements the session state store: session records, the
// email index, per-session processing states, and the pub/sub bus that fans
// live updates out to every client watching the same operator account.
package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/pkg/models"
)

// subscriberBuffer sizes each subscriber channel. A full buffer drops the
// event for that subscriber only; a slow client degrades only its own
// stream.
const subscriberBuffer = 64

type subscriber struct {
	id        int
	sessionID string // empty for wildcard subscribers
	ch        chan models.StreamEvent
}

// Bus is the store's publish/subscribe hub. Topics are per-session; a
// wildcard subscription receives every event once regardless of how many
// sessions it targeted.
type Bus struct {
	mu        sync.RWMutex
	bySession map[string][]*subscriber
	wildcard  []*subscriber
	nextID    int
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		bySession: make(map[string][]*subscriber),
	}
}

// Subscribe registers a subscriber for one session's events. The returned
// cancel func tears the subscription down; the channel is closed by cancel.
func (b *Bus) Subscribe(sessionID string) (<-chan models.StreamEvent, func()) {
	return b.subscribe(sessionID)
}

// SubscribeAll registers a wildcard subscriber receiving every published
// event once.
func (b *Bus) SubscribeAll() (<-chan models.StreamEvent, func()) {
	return b.subscribe("")
}

func (b *Bus) subscribe(sessionID string) (<-chan models.StreamEvent, func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id:        b.nextID,
		sessionID: sessionID,
		ch:        make(chan models.StreamEvent, subscriberBuffer),
	}
	if sessionID == "" {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.bySession[sessionID] = append(b.bySession[sessionID], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.remove(sub)
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (b *Bus) remove(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.sessionID == "" {
		b.wildcard = dropSub(b.wildcard, sub.id)
		return
	}
	subs := dropSub(b.bySession[sub.sessionID], sub.id)
	if len(subs) == 0 {
		delete(b.bySession, sub.sessionID)
	} else {
		b.bySession[sub.sessionID] = subs
	}
}

func dropSub(subs []*subscriber, id int) []*subscriber {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers ev to the subscribers of each target session and once to
// every wildcard subscriber. Sends never block: a full subscriber buffer
// drops the event for that subscriber.
func (b *Bus) Publish(ev models.StreamEvent, sessionIDs ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, id := range sessionIDs {
		for _, sub := range b.bySession[id] {
			deliver(sub, ev)
		}
	}
	for _, sub := range b.wildcard {
		deliver(sub, ev)
	}
}

func deliver(sub *subscriber, ev models.StreamEvent) {
	select {
	case sub.ch <- ev:
	default:
		log.Debug().
			Str("sessionId", sub.sessionID).
			Str("eventType", ev.Type).
			Msg("Subscriber buffer full, event dropped")
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.wildcard)
	for _, subs := range b.bySession {
		n += len(subs)
	}
	return n
}
