package pipeline

import (
	"time"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
)

// Phase identifies the active PipelineState variant.
type Phase string

// Pipeline phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseCapturing Phase = "capturing"
	PhaseCaptured  Phase = "captured"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResult    Phase = "result"
	PhaseFailed    Phase = "failed"
)

// InFlight reports whether a run is between trigger and settlement.
func (p Phase) InFlight() bool {
	switch p {
	case PhaseCapturing, PhaseCaptured, PhaseAnalyzing:
		return true
	default:
		return false
	}
}

// Settled reports whether p is a rest state a new trigger can leave.
func (p Phase) Settled() bool {
	return !p.InFlight()
}

// TriggerSource records what started a run.
type TriggerSource string

// Trigger sources.
const (
	TriggerManual    TriggerSource = "manual"
	TriggerDetection TriggerSource = "detection"
)

// State is an immutable snapshot of the pipeline. Exactly one Phase is
// active; fields not meaningful for the phase are zero. A transition
// replaces the whole value, and Image is shared read-only between the
// states of one run.
type State struct {
	Phase Phase `json:"phase"`

	// Seq increases by one on every transition.
	Seq uint64    `json:"seq"`
	At  time.Time `json:"at"`

	// Run metadata; empty in the initial Idle state.
	RunID   string        `json:"run_id,omitempty"`
	Trigger TriggerSource `json:"trigger,omitempty"`
	Mode    capture.Mode  `json:"mode,omitempty"`

	// Image is set in Captured, Analyzing, Result and in Failed after a
	// successful capture.
	Image []byte `json:"-"`

	// Text is the analysis result (Result only).
	Text string `json:"text,omitempty"`

	// Info is the user-facing diagnostic (Failed only).
	Info string `json:"error,omitempty"`

	// Err is the typed failure (Failed only): *AcquisitionError or *AnalysisError.
	Err error `json:"-"`
}

// HasImage reports whether the state carries image bytes.
func (s State) HasImage() bool {
	return len(s.Image) > 0
}

// run describes one pending or in-flight pipeline run.
type run struct {
	id      string
	trigger TriggerSource
	mode    capture.Mode
}

func (r run) state(p Phase) State {
	return State{Phase: p, RunID: r.id, Trigger: r.trigger, Mode: r.mode}
}

func (r run) captured(img []byte) State {
	s := r.state(PhaseCaptured)
	s.Image = img
	return s
}

func (r run) analyzing(img []byte) State {
	s := r.state(PhaseAnalyzing)
	s.Image = img
	return s
}

func (r run) result(img []byte, text string) State {
	s := r.state(PhaseResult)
	s.Image = img
	s.Text = text
	return s
}

func (r run) failed(img []byte, err error) State {
	s := r.state(PhaseFailed)
	s.Image = img
	s.Err = err
	s.Info = err.Error()
	return s
}
