package eventbus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "a", Data: 1})
	b.Publish(Event{Type: "b", Data: 2})

	for _, want := range []string{"a", "b"} {
		select {
		case e := <-ch:
			if e.Type != want {
				t.Fatalf("got %q, want %q", e.Type, want)
			}
			if e.Time.IsZero() {
				t.Fatal("publish must stamp the event time")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
}

func TestSubscribeTypeFilter(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(4, "wanted")
	defer unsub()

	b.Publish(Event{Type: "ignored"})
	b.Publish(Event{Type: "wanted"})

	select {
	case e := <-ch:
		if e.Type != "wanted" {
			t.Fatalf("filter leaked %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected second event %q", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Nobody reads; the second publish must drop, not block.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: "one"})
		b.Publish(Event{Type: "two"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if e := <-ch; e.Type != "one" {
		t.Fatalf("buffered event = %q, want the first", e.Type)
	}
}

func TestUnsubscribeIsSafeDuringPublish(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	// Channel is closed; publishing must not panic.
	b.Publish(Event{Type: "x"})

	if _, ok := <-ch; ok {
		t.Fatal("channel must be closed after unsubscribe")
	}
}
