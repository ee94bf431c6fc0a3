// Package hub fans websocket messages out to any number of clients from a
// single broadcast loop.
package hub

import "github.com/gofiber/websocket/v2"

// Message is one broadcast frame. Binary frames carry raw image bytes; the
// rest are JSON text frames.
type Message struct {
	Binary bool
	Data   []byte
}

// frameType maps the message to a websocket frame opcode.
func (m Message) frameType() int {
	if m.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
