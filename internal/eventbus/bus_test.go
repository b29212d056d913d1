package eventbus

import (
	"testing"
	"time"
)

func TestFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: Admitted, Gate: &Gate{ID: "n1", Category: "general", Title: "x"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case ev := <-ch:
			if ev.Type != Admitted || ev.Gate == nil || ev.Gate.ID != "n1" {
				t.Fatalf("unexpected event: %+v", ev)
			}
			if ev.Time.IsZero() {
				t.Fatal("publish must stamp a zero Time")
			}
		default:
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(Event{Type: DailyReset})
		b.Publish(Event{Type: DailyReset}) // buffer full, must drop
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if got := len(ch); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	if _, ok := <-ch; ok {
		t.Fatal("unsubscribe must close the channel")
	}
	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Type: Dispatched, Dispatch: &Dispatch{ID: "n2"}})
}
