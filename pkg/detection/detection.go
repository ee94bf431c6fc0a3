// Package detection delivers zero-payload "object detected" signals from an
// external sensor to in-process subscribers.
//
// A Stream is subscribed once per consumer; the returned Subscription yields
// events in arrival order until Unsubscribe is called or the underlying
// transport terminates, at which point the events channel is closed.
// Delivery is lossy: a subscriber that falls behind keeps only the most
// recent pending event.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	// ErrClosed is returned when subscribing to a closed stream.
	ErrClosed = errors.New("detection: stream closed")

	// ErrNoTransport is returned when no serial port or URL is configured.
	ErrNoTransport = errors.New("detection: no transport configured")
)

// Event is a single detection signal. It carries only its arrival time.
type Event struct {
	At time.Time `json:"at"`
}

// Subscription is a live registration with a Stream.
type Subscription interface {
	// Events yields detection events until the subscription ends.
	// The channel is closed on Unsubscribe or stream termination.
	Events() <-chan Event

	// Unsubscribe releases the registration. Safe to call more than once.
	Unsubscribe()
}

// Stream is a push source of detection events.
type Stream interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// SubscriptionError reports a failure to establish or maintain a stream.
type SubscriptionError struct {
	Source string
	Err    error
}

// Error implements the error interface.
func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("detection [%s]: %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// Stats contains stream statistics.
type Stats struct {
	Connected       bool  `json:"connected"`
	LinesRead       int64 `json:"lines_read"`
	EventsPublished int64 `json:"events_published"`
	EventsDropped   int64 `json:"events_dropped"`
	ConnectCount    int64 `json:"connect_count"`
}
