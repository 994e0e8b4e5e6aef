// Package event is a typed in-process publish/subscribe hub for arena
// domain events.
//
// Publishing never blocks the scheduler: a subscriber whose buffer is full
// misses events and can observe the loss through its Dropped counter. Caps on
// subscriber counts belong at the transport boundary, not here.
package event

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names one domain event.
type Kind string

const (
	KindBettingOpen        Kind = "betting_open"
	KindBettingOddsChanged Kind = "betting_odds_changed"
	KindBettingClosed      Kind = "betting_closed"
	KindCombatStarted      Kind = "combat_started"
	KindTurnResolved       Kind = "turn_resolved"
	KindFighterEliminated  Kind = "fighter_eliminated"
	KindRumbleComplete     Kind = "rumble_complete"
	KindPayoutComplete     Kind = "payout_complete"
	KindIchorShower        Kind = "ichor_shower"
	KindSlotRecycled       Kind = "slot_recycled"
)

// Event is one published domain event with its entity snapshot payload.
type Event struct {
	Kind      Kind      `json:"kind"`
	SlotIndex int       `json:"slot_index"`
	RumbleID  uint64    `json:"rumble_id,omitempty"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

const subscriberBuffer = 64

// Subscription is one subscriber's feed. Cancel releases it; reading from C
// after Cancel drains whatever was already buffered.
type Subscription struct {
	C       <-chan Event
	Dropped *atomic.Int64

	cancel func()
	once   sync.Once
}

// Cancel unsubscribes and closes the channel.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

type subscriber struct {
	ch      chan Event
	kinds   map[Kind]struct{} // nil means all kinds
	dropped *atomic.Int64
}

// Hub fans events out to subscribers.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a subscriber for the given kinds; with no kinds it
// receives every event.
func (h *Hub) Subscribe(kinds ...Kind) *Subscription {
	sub := &subscriber{
		ch:      make(chan Event, subscriberBuffer),
		dropped: &atomic.Int64{},
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	return &Subscription{
		C:       sub.ch,
		Dropped: sub.dropped,
		cancel: func() {
			h.mu.Lock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub.ch)
			}
			h.mu.Unlock()
		},
	}
}

// Publish delivers the event to every matching subscriber without blocking.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[evt.Kind]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
