package detection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Broker is an in-memory Stream. Publish fans an event out to every live
// subscription without blocking; each subscription buffers one event and a
// newer event replaces an unread one.
type Broker struct {
	mu     sync.Mutex
	subs   map[*brokerSub]struct{}
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*brokerSub]struct{})}
}

type brokerSub struct {
	b    *Broker
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *brokerSub) Events() <-chan Event { return s.ch }

func (s *brokerSub) Unsubscribe() { s.b.remove(s) }

// Subscribe registers a new subscription. It ends when ctx is done,
// Unsubscribe is called, or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := &brokerSub{
		b:    b,
		ch:   make(chan Event, 1),
		done: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.remove(sub)
			case <-sub.done:
			}
		}()
	}
	return sub, nil
}

// Publish delivers ev to every subscription. It never blocks.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.published.Add(1)
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Full: replace the unread event with the newer one.
		select {
		case <-sub.ch:
			b.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close ends every subscription. Further Subscribe calls return ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		b.end(sub)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	b.mu.Lock()
	connected := !b.closed
	b.mu.Unlock()

	return Stats{
		Connected:       connected,
		EventsPublished: b.published.Load(),
		EventsDropped:   b.dropped.Load(),
	}
}

func (b *Broker) remove(sub *brokerSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		b.end(sub)
	}
}

// end must be called with b.mu held.
func (b *Broker) end(sub *brokerSub) {
	delete(b.subs, sub)
	sub.once.Do(func() {
		close(sub.done)
		close(sub.ch)
	})
}

// Verify Broker implements Stream at compile time.
var _ Stream = (*Broker)(nil)
