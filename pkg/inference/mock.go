package inference

import (
	"context"
	"errors"
	"sync"
)

var errMockNotConfigured = errors.New("inference: mock has no VisionFunc")

// Mock is a scriptable Provider that records every call.
type Mock struct {
	VisionFunc func(ctx context.Context, req *VisionRequest) (*VisionResponse, error)
	HealthFunc func(ctx context.Context) error

	mu    sync.Mutex
	calls []MockCall
}

// MockCall is one recorded invocation. Request is set for Vision calls.
type MockCall struct {
	Method  string
	Request *VisionRequest
}

// NewMock returns a mock that describes every image as content.
func NewMock(content string) *Mock {
	return &Mock{
		VisionFunc: func(context.Context, *VisionRequest) (*VisionResponse, error) {
			return &VisionResponse{Content: content, FinishReason: "stop", Model: "mock"}, nil
		},
	}
}

// WithError returns a mock whose Vision and Health always fail with err.
func WithError(err error) *Mock {
	return &Mock{
		VisionFunc: func(context.Context, *VisionRequest) (*VisionResponse, error) { return nil, err },
		HealthFunc: func(context.Context) error { return err },
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Vision(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	m.record(MockCall{Method: "Vision", Request: req})
	if m.VisionFunc == nil {
		return nil, WrapError("mock", errMockNotConfigured)
	}
	return m.VisionFunc(ctx, req)
}

func (m *Mock) Health(ctx context.Context) error {
	m.record(MockCall{Method: "Health"})
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.record(MockCall{Method: "Close"})
	return nil
}

func (m *Mock) record(c MockCall) {
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount counts recorded calls to method.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastRequest returns the most recent Vision request, or nil.
func (m *Mock) LastRequest() *VisionRequest {
	calls := m.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Method == "Vision" {
			return calls[i].Request
		}
	}
	return nil
}

// Reset forgets all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

var _ Provider = (*Mock)(nil)
