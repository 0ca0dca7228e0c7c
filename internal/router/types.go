package router

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/tore/internal/subscription"
)

// Matcher finds the listeners interested in a message target.
// *subscription.Registry implements it.
type Matcher interface {
	Match(target string) []subscription.Listener
}

// ErrorHandler receives errors reported by the server inside the protocol.
type ErrorHandler func(err error)

// ServerError is an error frame pushed by the server. Details is the decoded
// content of the frame, usually a string.
type ServerError struct {
	Details any
}

func (e *ServerError) Error() string {
	switch d := e.Details.(type) {
	case nil:
		return "server error"
	case string:
		return "server error: " + d
	default:
		if b, err := json.Marshal(d); err == nil {
			return "server error: " + string(b)
		}
		return fmt.Sprintf("server error: %v", d)
	}
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	PayloadsReceived int64
	MessagesMatched  int64 // Messages delivered to at least one listener
	MessagesDropped  int64 // Messages no subscription matched
	ListenerCalls    int64
	ListenerPanics   int64
	ServerErrors     int64
	ParseErrors      int64
	UnknownFrames    int64
}
