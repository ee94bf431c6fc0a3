package detection

import (
	"io"
	"log/slog"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// DefaultBaudRate matches the ESP32 UART default used by the detector firmware.
const DefaultBaudRate = 115200

// Port is the minimal interface needed from a serial port.
type Port interface {
	io.Reader
	io.Closer
}

// PortOpener opens a serial port.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

type options struct {
	baudRate int
	match    Matcher
	logger   *slog.Logger
	openPort PortOpener
	dialer   *websocket.Dialer
}

// Option configures a Serial or WebSocket stream.
type Option func(*options)

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baudRate = baud
		}
	}
}

// WithMatcher replaces the default DETECTED token matcher.
func WithMatcher(m Matcher) Option {
	return func(o *options) {
		if m != nil {
			o.match = m
		}
	}
}

// WithToken matches a custom detection token.
func WithToken(token string) Option {
	return func(o *options) { o.match = TokenMatcher(token) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPortOpener overrides how serial ports are opened.
func WithPortOpener(open PortOpener) Option {
	return func(o *options) {
		if open != nil {
			o.openPort = open
		}
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

func defaultOptions() *options {
	return &options{
		baudRate: DefaultBaudRate,
		match:    TokenMatcher(DefaultToken),
		logger:   slog.Default(),
		openPort: openSerialPort,
		dialer:   websocket.DefaultDialer,
	}
}

func openSerialPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}
