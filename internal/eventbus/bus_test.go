package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "run.started", Data: "j1"})

	select {
	case e := <-ch:
		if e.Type != "run.started" || e.Data != "j1" {
			t.Errorf("got %+v", e)
		}
		if e.Time.IsZero() {
			t.Error("Time not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // buffer full: dropped, not blocked

	e := <-ch
	if e.Type != "a" {
		t.Errorf("got %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Errorf("unexpected second event %q", e.Type)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Publishing after unsubscribe must not panic or deliver.
	b.Publish(Event{Type: "late"})
	if _, ok := <-ch; ok {
		t.Error("received on closed subscription")
	}
}
