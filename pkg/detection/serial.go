package detection

import (
	"bufio"
	"context"
	"io"

	"go.bug.st/serial"
)

// Serial is a Stream backed by a serial device such as an ESP32 over USB
// UART or a Bluetooth RFCOMM port.
type Serial struct {
	*lineStream
	path string
	mode *serial.Mode
}

// NewSerial creates a serial stream for the device at path. The port is
// opened on the first Subscribe.
func NewSerial(path string, opts ...Option) *Serial {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	s := &Serial{
		path: path,
		mode: &serial.Mode{
			BaudRate: o.baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
	}
	open := o.openPort
	s.lineStream = newLineStream("serial:"+path, func(ctx context.Context) (lineReader, error) {
		if s.path == "" {
			return nil, ErrNoTransport
		}
		port, err := open(s.path, s.mode)
		if err != nil {
			return nil, err
		}
		return newScanLines(port), nil
	}, o)
	s.logger = o.logger.With("component", "detection.serial")
	return s
}

// Path returns the serial device path.
func (s *Serial) Path() string {
	return s.path
}

// BaudRate returns the configured baud rate.
func (s *Serial) BaudRate() int {
	return s.mode.BaudRate
}

// scanLines reads newline-terminated lines from an io.Reader.
type scanLines struct {
	port Port
	scan *bufio.Scanner
}

func newScanLines(port Port) *scanLines {
	return &scanLines{port: port, scan: bufio.NewScanner(port)}
}

func (l *scanLines) ReadLine() (string, error) {
	if l.scan.Scan() {
		return l.scan.Text(), nil
	}
	if err := l.scan.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (l *scanLines) Close() error {
	return l.port.Close()
}

// Verify Serial implements Stream at compile time.
var _ Stream = (*Serial)(nil)
