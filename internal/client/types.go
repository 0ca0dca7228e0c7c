package client

import (
	"log/slog"
	"time"

	"github.com/rickgao/tore/internal/clock"
	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/frame"
	"github.com/rickgao/tore/internal/router"
	"github.com/rickgao/tore/internal/subscription"
)

// Listener receives the content of a matching message and its match
// targets. Match[0] is the destination the message was published to.
type Listener = subscription.Listener

// Config holds client configuration.
type Config struct {
	Origin         string        // Page origin or socket URL (http, https, ws, wss, tcp)
	Path           string        // Endpoint path (default /messaging)
	Codec          string        // Frame encoding: json or cbor
	ReconnectDelay time.Duration // Fixed delay between a disconnect and the next attempt
	Resubscribe    bool          // Replay subscriptions on every open

	// Transport settings for the built-in dialers
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	MaxFrameSize     int64 // Inbound frame limit in bytes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	dc := connection.DefaultDialerConfig()
	return Config{
		Origin:           "http://localhost:8080",
		Path:             connection.DefaultEndpointPath,
		Codec:            frame.CodecJSON,
		ReconnectDelay:   connection.DefaultReconnectDelay,
		Resubscribe:      true,
		HandshakeTimeout: dc.HandshakeTimeout,
		WriteTimeout:     dc.WriteTimeout,
		PingInterval:     dc.PingInterval,
		PingTimeout:      dc.PingTimeout,
		MaxFrameSize:     dc.MaxFrameSize,
	}
}

// Stats aggregates the statistics of the client's components.
type Stats struct {
	Connection    connection.ManagerStats
	Router        router.RouterStats
	Subscriptions int
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger *slog.Logger
	dialer connection.Dialer
	clock  clock.Clock
	codec  frame.Codec
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDialer replaces the built-in websocket/tcp dialer.
func WithDialer(d connection.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithClock sets the clock driving the reconnect timer.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCodec overrides Config.Codec.
func WithCodec(c frame.Codec) Option {
	return func(o *options) { o.codec = c }
}
