package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by Send once the hub's Run loop has exited.
var ErrStopped = errors.New("hub: stopped")

// Hub maintains the set of active clients and broadcasts messages to them.
// When retain is set, the most recent broadcast is replayed to every newly
// registered client before anything else, so a late joiner starts from the
// current value.
type Hub struct {
	name   string
	logger *slog.Logger
	retain bool

	// Registered clients; owned by the Run loop.
	clients map[*Client]struct{}
	last    *Message

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once

	count   atomic.Int64
	dropped atomic.Int64
	running atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRetainLast replays the latest broadcast to new clients.
func WithRetainLast() Option {
	return func(h *Hub) { h.retain = true }
}

// New creates a new Hub.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run starts the hub's main loop and blocks until ctx is done.
// On exit every client's send channel is closed.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.doneOnce.Do(func() { close(h.done) })
		for client := range h.clients {
			h.remove(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			if h.retain && h.last != nil {
				client.send <- *h.last
			}
			h.logger.Debug("client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
			}
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case message := <-h.broadcast:
			if h.retain {
				m := message
				h.last = &m
			}
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full: drop the client.
					h.remove(client)
					h.dropped.Add(1)
					h.logger.Warn("dropped slow client")
				}
			}
		}
	}
}

// remove must only be called from the Run loop.
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
}

// Send queues msg for every client, waiting for room in the broadcast
// queue instead of dropping. Slow clients are still dropped individually.
func (h *Hub) Send(ctx context.Context, msg Message) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendJSON encodes v and queues it with Send.
func (h *Hub) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.Send(ctx, Message{Data: data})
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// DroppedClients returns how many clients were dropped for being slow.
func (h *Hub) DroppedClients() int64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

func (h *Hub) Name() string {
	return h.name
}
