package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-photoanalyzer/pkg/capture"
	"github.com/teslashibe/go-photoanalyzer/pkg/detection"
	"github.com/teslashibe/go-photoanalyzer/pkg/pipeline"
)

// fakePipeline implements Pipeline with a fixed state.
type fakePipeline struct {
	mu       sync.Mutex
	state    pipeline.State
	outcome  pipeline.Outcome
	triggers []capture.Mode
	stats    pipeline.Stats
}

func (f *fakePipeline) State() pipeline.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakePipeline) Watch(ctx context.Context) <-chan pipeline.State {
	ch := make(chan pipeline.State, 1)
	ch <- f.State()
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (f *fakePipeline) TriggerManualCapture(mode capture.Mode) (pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, mode)
	return f.outcome, nil
}

func (f *fakePipeline) Stats() pipeline.Stats {
	return f.stats
}

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", &fakePipeline{}, "")
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetState(t *testing.T) {
	p := &fakePipeline{state: pipeline.State{
		Phase: pipeline.PhaseResult,
		Seq:   4,
		RunID: "run-1",
		Mode:  capture.ModeLive,
		Image: jpegBytes,
		Text:  "a cat",
	}}
	s := NewServer(":0", p, "")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if err != nil {
		t.Fatal(err)
	}

	var body map[string]interface{}
	decode(t, resp, &body)

	if body["phase"] != "result" || body["text"] != "a cat" || body["run_id"] != "run-1" {
		t.Errorf("body = %v", body)
	}
	if body["has_image"] != true {
		t.Errorf("has_image = %v", body["has_image"])
	}
	if _, ok := body["Image"]; ok {
		t.Error("image bytes must not be embedded in state JSON")
	}
}

func TestGetStateFailed(t *testing.T) {
	p := &fakePipeline{state: pipeline.State{
		Phase: pipeline.PhaseFailed,
		Info:  "pipeline: analysis failed: timeout",
	}}
	s := NewServer(":0", p, "")

	resp, _ := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/state", nil))
	var body map[string]interface{}
	decode(t, resp, &body)

	if body["error"] != "pipeline: analysis failed: timeout" || body["has_image"] != false {
		t.Errorf("body = %v", body)
	}
}

func TestGetImage(t *testing.T) {
	p := &fakePipeline{state: pipeline.State{Phase: pipeline.PhaseAnalyzing, RunID: "r", Image: jpegBytes}}
	s := NewServer(":0", p, "")

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/image", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %s", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != string(jpegBytes) {
		t.Errorf("body = %v", data)
	}
}

func TestGetImageNone(t *testing.T) {
	s := NewServer(":0", &fakePipeline{state: pipeline.State{Phase: pipeline.PhaseIdle}}, "")
	resp, _ := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/image", nil))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPostCapture(t *testing.T) {
	tests := []struct {
		path     string
		status   int
		wantMode capture.Mode
	}{
		{"/api/capture/live", http.StatusAccepted, capture.ModeLive},
		{"/api/capture/gallery", http.StatusAccepted, capture.ModeStored},
		{"/api/capture/video", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := &fakePipeline{outcome: pipeline.OutcomeQueued}
			s := NewServer(":0", p, "")

			resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.wantMode == "" {
				if len(p.triggers) != 0 {
					t.Error("bad mode must not trigger a run")
				}
				return
			}

			var body CaptureResponse
			decode(t, resp, &body)
			if body.Outcome != pipeline.OutcomeQueued || body.Mode != tt.wantMode {
				t.Errorf("body = %+v", body)
			}
			if len(p.triggers) != 1 || p.triggers[0] != tt.wantMode {
				t.Errorf("triggers = %v", p.triggers)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	p := &fakePipeline{stats: pipeline.Stats{RunsStarted: 3, RunsSucceeded: 2, Subscribed: true}}
	s := NewServer(":0", p, "", WithDetectionStats(func() detection.Stats {
		return detection.Stats{Connected: true, EventsPublished: 7}
	}))

	resp, _ := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var body StatsResponse
	decode(t, resp, &body)

	if body.Pipeline.RunsStarted != 3 || body.Pipeline.RunsSucceeded != 2 {
		t.Errorf("pipeline stats = %+v", body.Pipeline)
	}
	if body.Detection == nil || body.Detection.EventsPublished != 7 {
		t.Errorf("detection stats = %+v", body.Detection)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(":0", &fakePipeline{}, "")
	resp, _ := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/state", nil))
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}

func TestNewImage(t *testing.T) {
	tests := []struct {
		name    string
		lastRun string
		state   pipeline.State
		want    bool
	}{
		{"no image", "", pipeline.State{RunID: "a"}, false},
		{"first image of run", "", pipeline.State{RunID: "a", Image: jpegBytes}, true},
		{"same run", "a", pipeline.State{RunID: "a", Image: jpegBytes}, false},
		{"next run", "a", pipeline.State{RunID: "b", Image: jpegBytes}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newImage(tt.lastRun, tt.state); got != tt.want {
				t.Errorf("newImage = %v, want %v", got, tt.want)
			}
		})
	}
}

// burstPipeline emits a fixed backlog of transitions from Watch.
type burstPipeline struct {
	fakePipeline
	ch chan pipeline.State
}

func (b *burstPipeline) Watch(ctx context.Context) <-chan pipeline.State {
	return b.ch
}

func TestBridgeWaitsForQueueRoom(t *testing.T) {
	const backlog = 300
	p := &burstPipeline{ch: make(chan pipeline.State, backlog)}
	for i := 0; i < backlog; i++ {
		p.ch <- pipeline.State{RunID: "run", Phase: pipeline.PhaseCapturing}
	}
	s := NewServer(":0", p, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.bridge(ctx)
		close(done)
	}()

	// With the hubs stopped the broadcast queue fills and the bridge must
	// hold the remaining transitions instead of discarding them.
	time.Sleep(50 * time.Millisecond)
	if len(p.ch) == 0 {
		t.Fatal("bridge consumed every transition with a full broadcast queue")
	}

	go s.stateHub.Run(ctx)
	go s.imageHub.Run(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for len(p.ch) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d transitions never forwarded", len(p.ch))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	close(p.ch)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not exit")
	}
}
