package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 64 << 10

	// sendBuffer is the per-client outbound queue. A client that falls this
	// far behind is dropped by the hub.
	sendBuffer = 256
)

// Conn is the subset of *websocket.Conn a Client uses.
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one websocket subscriber of a Hub.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// NewClient registers conn with hub. It returns nil once the hub has stopped.
func NewClient(hub *Hub, conn Conn) *Client {
	c := &Client{hub: hub, conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case hub.register <- c:
		return c
	case <-hub.done:
		return nil
	}
}

// Run serves the connection until the peer goes away or the hub drops it.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()

	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// readLoop discards inbound frames. Reading is still required to process
// pongs and notice a closed peer.
func (c *Client) readLoop() {
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	c.conn.SetReadLimit(maxInboundSize)
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop owns all writes to the connection.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(msg.frameType(), msg.Data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
