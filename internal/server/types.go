package server

import (
	"errors"
	"time"

	"github.com/rickgao/tore/internal/connection"
)

// Errors reported to clients as error frames.
var (
	ErrAlreadySubscribed = errors.New("already exists")
	ErrNotSubscribed     = errors.New("not exists")
	ErrPublishNotAllowed = errors.New("publish is not allowed on websocket")
	ErrUnknownFrameType  = errors.New("unknown message type")
)

// TimeLayout formats the payload of the clock publisher.
const TimeLayout = "2006-01-02 15:04:05"

// Config holds server configuration.
type Config struct {
	Addr                  string // HTTP/WebSocket listen address
	TCPAddr               string // Empty disables the TCP endpoint
	UDPAddr               string // Empty disables the UDP endpoint
	Path                  string // WebSocket endpoint path
	StaticDir             string // Served under /web/ when set
	TLSCertFile           string
	TLSKeyFile            string
	AllowWebSocketPublish bool
	TimeDestination       string        // Empty disables the clock publisher
	TimeInterval          time.Duration // Clock publisher period
	MaxDatagramSize       int
	MaxFrameSize          int64 // Inbound websocket/TCP frame limit (0 = connection.DefaultMaxFrameSize)
	WriteTimeout          time.Duration
	PingInterval          time.Duration // WebSocket keepalive (0 = disabled)
	ShutdownTimeout       time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Path:            "/messaging",
		TimeDestination: "/time",
		TimeInterval:    time.Second,
		MaxDatagramSize: 1024,
		MaxFrameSize:    connection.DefaultMaxFrameSize,
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	SessionsOpened int64
	SessionsActive int64
	FramesHandled  int64
	FramesRejected int64
	Datagrams      int64
	TimePushes     int64
}
