package connection

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/tore/internal/clock"
	"github.com/rickgao/tore/internal/frame"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrClosed             = errors.New("connection manager closed")
	ErrTransportClosed    = errors.New("transport closed")
	ErrStaleConnection    = errors.New("connection stale (no pong)")
	ErrUnsupportedScheme  = errors.New("unsupported endpoint scheme")
	ErrInvalidEndpointURL = errors.New("invalid endpoint url")
	ErrFrameTooLarge      = errors.New("inbound frame too large")
)

// DefaultMaxFrameSize bounds inbound frames when no limit is configured.
const DefaultMaxFrameSize = 1 << 20

// DefaultEndpointPath is the path the messaging endpoint is served on.
const DefaultEndpointPath = "/messaging"

// DefaultReconnectDelay is the fixed wait between a disconnect and the next
// connection attempt.
const DefaultReconnectDelay = 3 * time.Second

// State is the lifecycle state of a Manager.
type State int

const (
	// StateConnecting: a transport is being dialed.
	StateConnecting State = iota
	// StateOpen: a transport is open and frames can be sent.
	StateOpen
	// StateError: a transport failed; it is being force-closed.
	StateError
	// StateDisconnected: the transport closed unexpectedly; a reconnect is
	// scheduled.
	StateDisconnected
	// StateClosed: Close was called. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is one physical socket connection.
type Transport interface {
	// Send writes one encoded frame.
	Send(data []byte) error

	// Receive blocks until the next payload arrives. It returns an error
	// wrapping ErrTransportClosed when the connection was closed normally
	// by either side, and any other error for transport failures.
	Receive() ([]byte, error)

	// Close closes the connection. Safe to call more than once.
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Transport, error) {
	return f(ctx, endpoint)
}

// PayloadHandler receives every inbound payload of the current transport.
// It runs on the manager's event goroutine.
type PayloadHandler func(payload []byte)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Endpoint       string        // Socket URL (e.g., ws://localhost:8080/messaging)
	ReconnectDelay time.Duration // Fixed delay before reconnecting
	Codec          frame.Codec   // Frame encoding (nil = JSON)
	Clock          clock.Clock   // Timer source (nil = real time)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Endpoint:       "ws://localhost:8080" + DefaultEndpointPath,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// DialerConfig configures the built-in websocket and tcp dialers.
type DialerConfig struct {
	HandshakeTimeout time.Duration // Dial + websocket handshake limit
	WriteTimeout     time.Duration // Write deadline for sends
	PingInterval     time.Duration // Keepalive ping period (0 = disabled)
	PingTimeout      time.Duration // Max time without pong before the transport fails
	Codec            frame.Codec   // Selects subprotocol and message type (nil = JSON)
	MaxFrameSize     int64         // Inbound frame limit in bytes (0 = DefaultMaxFrameSize)
}

// DefaultDialerConfig returns sensible defaults.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		MaxFrameSize:     DefaultMaxFrameSize,
	}
}

func (c DialerConfig) maxFrameSize() int64 {
	if c.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// ManagerStats provides statistics about a Manager.
type ManagerStats struct {
	State           State
	ConnID          string // Id of the current or last transport
	Attempts        int64  // Dials started
	Opens           int64  // Transports opened
	Disconnects     int64  // Transports ended (any reason)
	TransportErrors int64  // Dial or transport failures
	FramesSent      int64
	PayloadsRead    int64
	StalePayloads   int64 // Payloads dropped from superseded transports
}
