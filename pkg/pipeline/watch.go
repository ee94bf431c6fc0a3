package pipeline

import (
	"context"
	"sync"
)

// Watch returns a channel that yields the current state followed by every
// subsequent transition, in order and without loss. The channel is closed
// when ctx is done. A slow reader never blocks the orchestrator; pending
// states queue per watcher.
func (o *Orchestrator) Watch(ctx context.Context) <-chan State {
	w := &watcher{
		notify: make(chan struct{}, 1),
		out:    make(chan State),
	}

	o.mu.Lock()
	w.push(o.state)
	o.watchers[w] = struct{}{}
	o.mu.Unlock()

	go w.run(ctx, func() {
		o.mu.Lock()
		delete(o.watchers, w)
		o.mu.Unlock()
	})
	return w.out
}

// WatcherCount returns the number of active watchers.
func (o *Orchestrator) WatcherCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.watchers)
}

type watcher struct {
	mu     sync.Mutex
	queue  []State
	notify chan struct{}
	out    chan State
}

// push enqueues s. Called with the orchestrator lock held, so states are
// enqueued in transition order.
func (w *watcher) push(s State) {
	w.mu.Lock()
	w.queue = append(w.queue, s)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *watcher) run(ctx context.Context, detach func()) {
	defer close(w.out)
	defer detach()

	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, s := range batch {
			select {
			case w.out <- s:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-w.notify:
		case <-ctx.Done():
			return
		}
	}
}
