package capture

import (
	"context"
	"sync"
	"time"
)

// Mock implements Source for testing.
type Mock struct {
	// CaptureFunc is called when Capture is invoked.
	CaptureFunc func(ctx context.Context, mode Mode) ([]byte, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Capture invocation.
type MockCall struct {
	Mode Mode
	Time time.Time
}

// NewMock creates a mock that always returns data.
func NewMock(data []byte) *Mock {
	return &Mock{
		CaptureFunc: func(ctx context.Context, mode Mode) ([]byte, error) {
			return data, nil
		},
	}
}

// MockWithError creates a mock that always returns err.
func MockWithError(err error) *Mock {
	return &Mock{
		CaptureFunc: func(ctx context.Context, mode Mode) ([]byte, error) {
			return nil, err
		},
	}
}

// Capture calls CaptureFunc and records the call.
func (m *Mock) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Mode: mode, Time: time.Now()})
	fn := m.CaptureFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, ErrDeviceUnavailable
	}
	return fn(ctx, mode)
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Capture calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ Source = (*Mock)(nil)
