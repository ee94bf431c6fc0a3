package detection

import (
	"encoding/json"
	"strings"
)

// DefaultToken is the line an ESP32 detector prints when it sees an object.
const DefaultToken = "DETECTED"

// Matcher reports whether a transport line is a detection signal.
type Matcher func(line string) bool

// TokenMatcher matches lines equal to token (case-insensitive, surrounding
// whitespace ignored) and JSON lines of the form {"event":"<token>"}.
func TokenMatcher(token string) Matcher {
	token = strings.TrimSpace(token)
	if token == "" {
		token = DefaultToken
	}
	return func(line string) bool {
		line = strings.TrimSpace(line)
		if line == "" {
			return false
		}
		if strings.EqualFold(line, token) {
			return true
		}
		if line[0] != '{' {
			return false
		}
		var msg struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return false
		}
		return strings.EqualFold(msg.Event, token)
	}
}
