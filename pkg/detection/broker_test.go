package detection

import (
	"context"
	"errors"
	"testing"
	"time"
)

func recvEvent(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func waitClosed(t *testing.T, sub Subscription) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	s1, err := b.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	s2, _ := b.Subscribe(ctx)

	if b.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount = %d, want 2", b.SubscriberCount())
	}

	at := time.Now()
	b.Publish(Event{At: at})

	if ev := recvEvent(t, s1); !ev.At.Equal(at) {
		t.Errorf("s1 got %v, want %v", ev.At, at)
	}
	if ev := recvEvent(t, s2); !ev.At.Equal(at) {
		t.Errorf("s2 got %v, want %v", ev.At, at)
	}
}

func TestBrokerPublishStampsTime(t *testing.T) {
	b := NewBroker()
	sub, _ := b.Subscribe(context.Background())
	b.Publish(Event{})
	if ev := recvEvent(t, sub); ev.At.IsZero() {
		t.Error("expected arrival time to be set")
	}
}

func TestBrokerLatestWins(t *testing.T) {
	b := NewBroker()
	sub, _ := b.Subscribe(context.Background())

	base := time.Now()
	for i := 0; i < 3; i++ {
		b.Publish(Event{At: base.Add(time.Duration(i) * time.Second)})
	}

	ev := recvEvent(t, sub)
	if !ev.At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("expected the most recent event, got %v", ev.At)
	}

	select {
	case ev := <-sub.Events():
		t.Errorf("unexpected extra event %v", ev)
	default:
	}

	stats := b.Stats()
	if stats.EventsPublished != 3 || stats.EventsDropped != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBrokerUnsubscribeIdempotent(t *testing.T) {
	b := NewBroker()
	sub, _ := b.Subscribe(context.Background())

	sub.Unsubscribe()
	sub.Unsubscribe()

	waitClosed(t, sub)
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after unsubscribe", b.SubscriberCount())
	}

	// Publishing to no subscribers is fine.
	b.Publish(Event{})
}

func TestBrokerContextCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := b.Subscribe(ctx)

	cancel()
	waitClosed(t, sub)
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d after cancel", b.SubscriberCount())
	}
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	s1, _ := b.Subscribe(context.Background())
	s2, _ := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	waitClosed(t, s1)
	waitClosed(t, s2)

	if _, err := b.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	b.Publish(Event{})
	s1.Unsubscribe()

	if b.Stats().Connected {
		t.Error("closed broker reports connected")
	}
}
