package detection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newDetectorServer(t *testing.T, messages ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketPublishes(t *testing.T) {
	server := newDetectorServer(t, "hello", "DETECTED\nping")
	defer server.Close()

	ws := NewWebSocket(wsURL(server))
	defer ws.Close()

	sub, err := ws.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	recvEvent(t, sub)

	waitFor(t, func() bool { return ws.Stats().LinesRead == 3 })
	if ws.Stats().EventsPublished != 1 {
		t.Errorf("EventsPublished = %d", ws.Stats().EventsPublished)
	}
}

func TestWebSocketServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte("DETECTED"))
		conn.Close()
	}))
	defer server.Close()

	ws := NewWebSocket(wsURL(server))
	defer ws.Close()

	sub, err := ws.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	waitClosed(t, sub)
}

func TestWebSocketDialError(t *testing.T) {
	ws := NewWebSocket("ws://127.0.0.1:1/events")
	_, err := ws.Subscribe(context.Background())

	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubscriptionError, got %v", err)
	}
	if !strings.HasPrefix(subErr.Source, "ws:") {
		t.Errorf("Source = %q", subErr.Source)
	}
}

func TestWebSocketNoURL(t *testing.T) {
	ws := NewWebSocket("")
	if _, err := ws.Subscribe(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Errorf("expected ErrNoTransport, got %v", err)
	}
}
