// Package eventbus fans the engine's lifecycle events out to in-process
// subscribers (operator surfaces, tests, future transports).
package eventbus

import (
	"sync"
	"time"
)

// Event types published by the engine.
const (
	Admitted       = "engine.admitted"
	Rejected       = "engine.rejected"
	Dispatched     = "engine.dispatched"
	DeliveryFailed = "engine.delivery_failed"
	DailyReset     = "engine.daily_reset"
)

// Gate describes a policy gate decision. Reason is set on rejections only.
type Gate struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Reason   string `json:"reason,omitempty"`
}

// Dispatch describes a dispatch outcome. Error is set on failures only.
type Dispatch struct {
	ID       string    `json:"id"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	FireAt   time.Time `json:"fire_at"`
	Error    string    `json:"error,omitempty"`
}

// Event is one engine occurrence. At most one payload field is non-nil,
// matching Type; DailyReset carries no payload.
type Event struct {
	Type     string
	Time     time.Time
	Gate     *Gate
	Dispatch *Dispatch
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. Publish never blocks: a subscriber
// whose buffer is full misses the event. The bus owns no goroutines.
func New() Bus {
	return &fanout{}
}

type fanout struct {
	mu   sync.Mutex
	subs []*subscriber
}

type subscriber struct {
	ch   chan Event
	gone bool
}

// Publish delivers e to every live subscriber. Sends and channel closes are
// serialized on the same mutex, so unsubscribing mid-publish is safe.
func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	for _, s := range b.subs {
		if s.gone {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s.gone {
			return
		}
		s.gone = true
		for i := range b.subs {
			if b.subs[i] == s {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		close(s.ch)
	}
	return s.ch, unsubscribe
}
