package config

import "time"

// Config is the root configuration shared by toreclient and toreserver.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ClientConfig holds messaging client settings.
type ClientConfig struct {
	Origin           string        `yaml:"origin"` // http(s) origin or ws(s)/tcp socket URL
	Path             string        `yaml:"path"`
	Codec            string        `yaml:"codec"` // json or cbor
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	Resubscribe      *bool         `yaml:"resubscribe"` // Default: true
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	MaxFrameSize     int64         `yaml:"max_frame_size"` // Bytes
}

// ResubscribeEnabled reports whether subscriptions are replayed on reconnect.
func (c ClientConfig) ResubscribeEnabled() bool {
	return c.Resubscribe == nil || *c.Resubscribe
}

// ServerConfig holds messaging server settings.
type ServerConfig struct {
	Addr                  string        `yaml:"addr"`     // HTTP/WebSocket listen address
	TCPAddr               string        `yaml:"tcp_addr"` // Empty disables the TCP endpoint
	UDPAddr               string        `yaml:"udp_addr"` // Empty disables the UDP endpoint
	Path                  string        `yaml:"path"`
	StaticDir             string        `yaml:"static_dir"`
	TLSCertFile           string        `yaml:"tls_cert_file"`
	TLSKeyFile            string        `yaml:"tls_key_file"`
	AllowWebSocketPublish bool          `yaml:"allow_websocket_publish"`
	TimeDestination       string        `yaml:"time_destination"` // Empty disables the clock publisher
	TimeInterval          time.Duration `yaml:"time_interval"`
	QueueSize             int           `yaml:"queue_size"`
	MaxDatagramSize       int           `yaml:"max_datagram_size"`
	MaxFrameSize          int64         `yaml:"max_frame_size"` // Bytes, websocket and tcp
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	PingInterval          time.Duration `yaml:"ping_interval"`
	ShutdownTimeout       time.Duration `yaml:"shutdown_timeout"`
}

// TLSEnabled reports whether the HTTP endpoint serves TLS.
func (c ServerConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
