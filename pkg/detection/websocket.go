package detection

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"
)

// WebSocket is a Stream fed by text messages from a websocket endpoint, for
// detectors that report over Wi-Fi instead of a serial link.
type WebSocket struct {
	*lineStream
	url string
}

// NewWebSocket creates a websocket stream for url (ws:// or wss://). The
// connection is dialed on the first Subscribe.
func NewWebSocket(url string, opts ...Option) *WebSocket {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	w := &WebSocket{url: url}
	dialer := o.dialer
	w.lineStream = newLineStream("ws:"+url, func(ctx context.Context) (lineReader, error) {
		if w.url == "" {
			return nil, ErrNoTransport
		}
		conn, resp, err := dialer.DialContext(ctx, w.url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return nil, err
		}
		return &wsLines{conn: conn}, nil
	}, o)
	w.logger = o.logger.With("component", "detection.websocket")
	return w
}

// URL returns the websocket endpoint.
func (w *WebSocket) URL() string {
	return w.url
}

// wsLines splits each websocket message into lines.
type wsLines struct {
	conn    *websocket.Conn
	pending []string
}

func (l *wsLines) ReadLine() (string, error) {
	for len(l.pending) == 0 {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		l.pending = strings.Split(strings.TrimRight(string(msg), "\r\n"), "\n")
	}
	line := l.pending[0]
	l.pending = l.pending[1:]
	return line, nil
}

func (l *wsLines) Close() error {
	return l.conn.Close()
}

// Verify WebSocket implements Stream at compile time.
var _ Stream = (*WebSocket)(nil)
