package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
)

// Orchestrator is the capture-and-analyze state machine.
type Orchestrator struct {
	source   ImageSource
	analyzer Analyzer
	stream   detection.Stream
	cfg      Config
	logger   *slog.Logger

	// mu guards the state machine.
	mu       sync.Mutex
	state    State
	seq      uint64
	inFlight bool
	pending  *run
	watchers map[*watcher]struct{}

	// lifeMu guards the subscription lifecycle.
	lifeMu  sync.Mutex
	started bool
	stopped bool
	sub     detection.Subscription
	stopCh  chan struct{}
	wg      sync.WaitGroup

	runsStarted     atomic.Int64
	runsSucceeded   atomic.Int64
	runsFailed      atomic.Int64
	runsCancelled   atomic.Int64
	triggersQueued  atomic.Int64
	triggersDropped atomic.Int64
	detections      atomic.Int64
	resubscribes    atomic.Int64
}

// New creates an orchestrator. stream may be nil for manual-only operation.
func New(source ImageSource, analyzer Analyzer, stream detection.Stream, opts ...Option) (*Orchestrator, error) {
	if source == nil {
		return nil, ErrNoSource
	}
	if analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.DetectionMode, _ = capture.ParseMode(string(cfg.DetectionMode))

	o := &Orchestrator{
		source:   source,
		analyzer: analyzer,
		stream:   stream,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "pipeline"),
		watchers: make(map[*watcher]struct{}),
	}
	o.state = State{Phase: PhaseIdle, At: time.Now()}
	return o, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Config returns the orchestrator configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// TriggerManualCapture starts a run for mode, or applies the busy policy if
// a run is in flight.
func (o *Orchestrator) TriggerManualCapture(mode capture.Mode) (Outcome, error) {
	m, err := capture.ParseMode(string(mode))
	if err != nil {
		return "", err
	}
	return o.trigger(TriggerManual, m), nil
}

func (o *Orchestrator) trigger(src TriggerSource, mode capture.Mode) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	r := run{trigger: src, mode: mode}
	if !o.inFlight {
		o.startLocked(r)
		return OutcomeStarted
	}

	if o.cfg.Policy == PolicyDrop {
		o.triggersDropped.Add(1)
		o.logger.Debug("trigger dropped, run in flight", "trigger", src, "mode", mode, "run_id", o.state.RunID)
		return OutcomeDropped
	}

	if o.pending != nil {
		o.triggersDropped.Add(1)
	}
	o.pending = &r
	o.triggersQueued.Add(1)
	o.logger.Debug("trigger queued, run in flight", "trigger", src, "mode", mode, "run_id", o.state.RunID)
	return OutcomeQueued
}

// startLocked enters Capturing and launches the run. o.mu must be held.
func (o *Orchestrator) startLocked(r run) {
	r.id = uuid.NewString()
	o.inFlight = true
	o.runsStarted.Add(1)
	o.logger.Info("run started", "run_id", r.id, "trigger", r.trigger, "mode", r.mode)
	o.transitionLocked(r.state(PhaseCapturing))
	go o.execute(r)
}

// execute performs the two suspension points of a run. Transitions are
// applied under o.mu immediately after each call returns.
func (o *Orchestrator) execute(r run) {
	img, err := o.capture(r.mode)

	o.mu.Lock()
	switch {
	case err != nil && capture.IsCancelled(err):
		o.runsCancelled.Add(1)
		o.logger.Info("capture cancelled", "run_id", r.id)
		o.transitionLocked(r.state(PhaseIdle))
		o.settleLocked()
		o.mu.Unlock()
		return
	case err != nil:
		o.runsFailed.Add(1)
		acqErr := &AcquisitionError{Mode: r.mode, Err: err}
		o.logger.Warn("capture failed", "run_id", r.id, "error", err)
		o.transitionLocked(r.failed(nil, acqErr))
		o.settleLocked()
		o.mu.Unlock()
		return
	}
	o.transitionLocked(r.captured(img))
	o.transitionLocked(r.analyzing(img))
	o.mu.Unlock()

	text, err := o.analyze(img)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.runsFailed.Add(1)
		o.logger.Warn("analysis failed", "run_id", r.id, "error", err)
		o.transitionLocked(r.failed(img, &AnalysisError{Err: err}))
	} else {
		o.runsSucceeded.Add(1)
		o.logger.Info("run complete", "run_id", r.id, "chars", len(text))
		o.transitionLocked(r.result(img, text))
	}
	o.settleLocked()
}

func (o *Orchestrator) capture(mode capture.Mode) ([]byte, error) {
	ctx, cancel := o.callContext()
	defer cancel()
	img, err := o.source.Capture(ctx, mode)
	if err == nil && len(img) == 0 {
		err = capture.ErrEmptyImage
	}
	return img, err
}

func (o *Orchestrator) analyze(img []byte) (string, error) {
	ctx, cancel := o.callContext()
	defer cancel()
	return o.analyzer.Analyze(ctx, img)
}

// callContext is independent of Start/Stop: teardown never aborts a run.
func (o *Orchestrator) callContext() (context.Context, context.CancelFunc) {
	if o.cfg.RunTimeout > 0 {
		return context.WithTimeout(context.Background(), o.cfg.RunTimeout)
	}
	return context.WithCancel(context.Background())
}

// settleLocked ends the in-flight run and starts the pending one, if any.
func (o *Orchestrator) settleLocked() {
	o.inFlight = false
	if o.pending != nil {
		r := *o.pending
		o.pending = nil
		o.startLocked(r)
	}
}

// transitionLocked replaces the state and notifies watchers. o.mu must be held.
func (o *Orchestrator) transitionLocked(s State) {
	o.seq++
	s.Seq = o.seq
	s.At = time.Now()
	prev := o.state.Phase
	o.state = s
	for w := range o.watchers {
		w.push(s)
	}
	o.logger.Debug("state transition", "from", prev, "to", s.Phase, "run_id", s.RunID, "seq", s.Seq)
}

// Start subscribes to the detection stream. Calling Start again while
// started is a no-op. The subscription lives until Stop or until ctx is done.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	if o.stopped {
		return ErrStopped
	}
	if o.started {
		return nil
	}
	if o.stream == nil {
		o.started = true
		o.logger.Info("started without detection stream")
		return nil
	}

	sub, err := o.stream.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: subscribe: %w", err)
	}

	o.sub = sub
	o.started = true
	o.stopCh = make(chan struct{})
	o.wg.Add(1)
	go o.listen(ctx, sub, o.stopCh)

	o.logger.Info("subscribed to detection stream")
	return nil
}

// Stop releases the detection subscription. It is safe to call without
// Start and more than once. An in-flight run is not aborted.
func (o *Orchestrator) Stop() {
	o.lifeMu.Lock()
	if o.stopped {
		o.lifeMu.Unlock()
		return
	}
	o.stopped = true
	sub := o.sub
	o.sub = nil
	if o.stopCh != nil {
		close(o.stopCh)
	}
	o.lifeMu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	o.wg.Wait()
	o.logger.Info("stopped")
}

func (o *Orchestrator) listen(ctx context.Context, sub detection.Subscription, stopCh chan struct{}) {
	defer o.wg.Done()

	for {
		select {
		case <-stopCh:
			return

		case <-ctx.Done():
			o.release(stopCh, sub)
			return

		case _, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					o.release(stopCh, sub)
					return
				}
				o.logger.Warn("detection stream terminated")
				next := o.resubscribe(ctx, sub, stopCh)
				if next == nil {
					return
				}
				sub = next
				continue
			}
			o.detections.Add(1)
			outcome := o.trigger(TriggerDetection, o.cfg.DetectionMode)
			o.logger.Debug("detection event", "outcome", outcome)
		}
	}
}

// release ends a Start whose context is done, so a later Start subscribes again.
func (o *Orchestrator) release(stopCh chan struct{}, sub detection.Subscription) {
	o.lifeMu.Lock()
	if o.stopCh == stopCh && !o.stopped {
		o.sub = nil
		o.started = false
	}
	o.lifeMu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// resubscribe replaces a terminated subscription, retrying every
// ResubscribeInterval until it succeeds, Stop is called, or ctx is done.
// It returns nil when the listener should exit.
func (o *Orchestrator) resubscribe(ctx context.Context, old detection.Subscription, stopCh chan struct{}) detection.Subscription {
	o.lifeMu.Lock()
	if o.sub == old {
		o.sub = nil
	}
	o.lifeMu.Unlock()
	old.Unsubscribe()

	if o.cfg.ResubscribeInterval == 0 {
		o.logger.Info("resubscription disabled, detection idle")
		return nil
	}

	for {
		select {
		case <-stopCh:
			return nil
		case <-ctx.Done():
			o.release(stopCh, nil)
			return nil
		case <-time.After(o.cfg.ResubscribeInterval):
		}

		sub, err := o.dial(ctx, stopCh)
		if err != nil {
			select {
			case <-stopCh:
				return nil
			default:
			}
			o.logger.Warn("resubscribe failed", "error", err, "retry_in", o.cfg.ResubscribeInterval)
			continue
		}

		o.lifeMu.Lock()
		if o.stopped || o.stopCh != stopCh {
			o.lifeMu.Unlock()
			sub.Unsubscribe()
			return nil
		}
		o.sub = sub
		o.lifeMu.Unlock()

		o.resubscribes.Add(1)
		o.logger.Info("resubscribed to detection stream")
		return sub
	}
}

// dial subscribes without holding lifeMu. The subscription context is
// cancelled when stopCh closes, which also abandons a pending dial.
func (o *Orchestrator) dial(ctx context.Context, stopCh chan struct{}) (detection.Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-subCtx.Done():
		}
	}()
	sub, err := o.stream.Subscribe(subCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	return sub, nil
}

// Subscribed reports whether a detection subscription is live.
func (o *Orchestrator) Subscribed() bool {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	return o.sub != nil
}

// Stats returns orchestrator statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Phase:           o.State().Phase,
		Subscribed:      o.Subscribed(),
		RunsStarted:     o.runsStarted.Load(),
		RunsSucceeded:   o.runsSucceeded.Load(),
		RunsFailed:      o.runsFailed.Load(),
		RunsCancelled:   o.runsCancelled.Load(),
		TriggersQueued:  o.triggersQueued.Load(),
		TriggersDropped: o.triggersDropped.Load(),
		DetectionEvents: o.detections.Load(),
		Resubscribes:    o.resubscribes.Load(),
	}
}
