package detection

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial"
)

// fakePorts hands out io.Pipe-backed ports and keeps the write ends.
type fakePorts struct {
	mu      sync.Mutex
	writers []*io.PipeWriter
	modes   []*serial.Mode
	err     error
}

func (f *fakePorts) open(path string, mode *serial.Mode) (Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, w := io.Pipe()
	f.writers = append(f.writers, w)
	f.modes = append(f.modes, mode)
	return r, nil
}

func (f *fakePorts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writers)
}

func (f *fakePorts) writer(i int) *io.PipeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSerialPublishesMatchingLines(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open))
	defer s.Close()

	sub, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := io.WriteString(ports.writer(0), "boot ok\nDETECTED\n"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, sub)

	waitFor(t, func() bool { return s.Stats().LinesRead == 2 })
	wantStats := Stats{Connected: true, LinesRead: 2, EventsPublished: 1, ConnectCount: 1}
	if diff := cmp.Diff(wantStats, s.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	wantMode := &serial.Mode{BaudRate: DefaultBaudRate, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	if diff := cmp.Diff(wantMode, ports.modes[0]); diff != "" {
		t.Errorf("serial mode mismatch (-want +got):\n%s", diff)
	}
}

func TestSerialSharesOnePort(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open), WithBaudRate(9600))
	defer s.Close()

	s1, _ := s.Subscribe(context.Background())
	s2, _ := s.Subscribe(context.Background())

	if ports.count() != 1 {
		t.Fatalf("expected one open port, got %d", ports.count())
	}
	if s.BaudRate() != 9600 {
		t.Errorf("BaudRate = %d", s.BaudRate())
	}

	io.WriteString(ports.writer(0), "DETECTED\n")
	recvEvent(t, s1)
	recvEvent(t, s2)
}

func TestSerialUnsubscribeClosesPort(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open))
	defer s.Close()

	sub, _ := s.Subscribe(context.Background())
	sub.Unsubscribe()
	sub.Unsubscribe()
	waitClosed(t, sub)

	if _, err := io.WriteString(ports.writer(0), "DETECTED\n"); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected port to be closed, write err = %v", err)
	}
	waitFor(t, func() bool { return !s.Stats().Connected })
}

func TestSerialTerminationAndReconnect(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open))
	defer s.Close()

	sub, _ := s.Subscribe(context.Background())
	ports.writer(0).Close()
	waitClosed(t, sub)

	waitFor(t, func() bool { return !s.Stats().Connected })

	sub2, err := s.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if ports.count() != 2 {
		t.Fatalf("expected port to be reopened, opens = %d", ports.count())
	}
	io.WriteString(ports.writer(1), `{"event":"detected"}`+"\n")
	recvEvent(t, sub2)

	if s.Stats().ConnectCount != 2 {
		t.Errorf("ConnectCount = %d", s.Stats().ConnectCount)
	}
}

func TestSerialOpenError(t *testing.T) {
	openErr := errors.New("permission denied")
	s := NewSerial("/dev/ttyUSB0", WithPortOpener((&fakePorts{err: openErr}).open))

	_, err := s.Subscribe(context.Background())
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubscriptionError, got %v", err)
	}
	if !errors.Is(err, openErr) {
		t.Errorf("expected wrapped open error, got %v", err)
	}
}

func TestSerialNoPath(t *testing.T) {
	s := NewSerial("")
	if _, err := s.Subscribe(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}
}

func TestSerialClose(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open))

	sub, _ := s.Subscribe(context.Background())
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	s.Close()
	waitClosed(t, sub)

	if _, err := s.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSerialContextCancel(t *testing.T) {
	ports := &fakePorts{}
	s := NewSerial("/dev/ttyUSB0", WithPortOpener(ports.open))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := s.Subscribe(ctx)
	cancel()
	waitClosed(t, sub)
	waitFor(t, func() bool { return !s.Stats().Connected })
}
