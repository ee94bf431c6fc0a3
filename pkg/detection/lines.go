package detection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// lineReader yields text lines from a transport connection.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

type dialFunc func(ctx context.Context) (lineReader, error)

// lineStream connects lazily on the first Subscribe, publishes an event for
// every matching line, and disconnects when the last subscriber leaves. A read
// error ends all current subscriptions; the next Subscribe reconnects.
type lineStream struct {
	source string
	dial   dialFunc
	match  Matcher
	logger *slog.Logger

	mu     sync.Mutex
	conn   lineReader
	broker *Broker
	closed bool

	linesRead   atomic.Int64
	events      atomic.Int64
	dropped     atomic.Int64
	connectsCnt atomic.Int64
}

func newLineStream(source string, dial dialFunc, o *options) *lineStream {
	return &lineStream{
		source: source,
		dial:   dial,
		match:  o.match,
		logger: o.logger,
	}
}

// Subscribe connects if needed and registers a subscription.
func (s *lineStream) Subscribe(ctx context.Context) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.broker == nil {
		conn, err := s.dial(ctx)
		if err != nil {
			return nil, &SubscriptionError{Source: s.source, Err: err}
		}
		s.conn = conn
		s.broker = NewBroker()
		s.connectsCnt.Add(1)
		s.logger.Info("detection stream connected", "source", s.source)
		go s.pump(conn, s.broker)
	}

	inner, err := s.broker.Subscribe(context.Background())
	if err != nil {
		return nil, &SubscriptionError{Source: s.source, Err: err}
	}

	sub := &lineSub{inner: inner.(*brokerSub), s: s, broker: s.broker}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
			case <-sub.inner.done:
			}
		}()
	}
	return sub, nil
}

// Close disconnects and ends every subscription.
func (s *lineStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.broker != nil {
		s.broker.Close()
	}
	return s.disconnect()
}

// Stats returns stream statistics.
func (s *lineStream) Stats() Stats {
	s.mu.Lock()
	connected := s.conn != nil
	dropped := s.dropped.Load()
	if s.broker != nil {
		dropped += s.broker.dropped.Load()
	}
	s.mu.Unlock()

	return Stats{
		Connected:       connected,
		LinesRead:       s.linesRead.Load(),
		EventsPublished: s.events.Load(),
		EventsDropped:   dropped,
		ConnectCount:    s.connectsCnt.Load(),
	}
}

func (s *lineStream) pump(conn lineReader, broker *Broker) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			s.logger.Warn("detection stream ended", "source", s.source, "error", err)
			break
		}
		s.linesRead.Add(1)
		if s.match(line) {
			s.events.Add(1)
			broker.Publish(Event{At: time.Now()})
		}
	}

	s.mu.Lock()
	if s.broker == broker {
		s.dropped.Add(broker.dropped.Load())
		s.broker = nil
		s.conn = nil
	}
	s.mu.Unlock()

	conn.Close()
	broker.Close()
}

// release disconnects once broker has no subscribers left.
func (s *lineStream) release(broker *Broker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broker != broker || broker.SubscriberCount() > 0 {
		return
	}
	s.disconnect()
}

// disconnect must be called with s.mu held.
func (s *lineStream) disconnect() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	if s.broker != nil {
		s.dropped.Add(s.broker.dropped.Load())
	}
	s.conn = nil
	s.broker = nil
	s.logger.Info("detection stream disconnected", "source", s.source)
	return err
}

type lineSub struct {
	inner  *brokerSub
	s      *lineStream
	broker *Broker
	once   sync.Once
}

func (l *lineSub) Events() <-chan Event { return l.inner.Events() }

func (l *lineSub) Unsubscribe() {
	l.once.Do(func() {
		l.inner.Unsubscribe()
		l.s.release(l.broker)
	})
}
