package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
)

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"text", "json"}
	validCodecs  = []string{"json", "cbor"}
	validSchemes = []string{"http", "https", "ws", "wss", "tcp"}
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %v, got %q", validLevels, c.Log.Level)
	}
	if !slices.Contains(validFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", validFormats, c.Log.Format)
	}

	if err := c.Client.validate("client"); err != nil {
		return err
	}
	return c.Server.validate("server")
}

func (c *ClientConfig) validate(prefix string) error {
	u, err := url.Parse(c.Origin)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s.origin must be an absolute URL, got %q", prefix, c.Origin)
	}
	if !slices.Contains(validSchemes, u.Scheme) {
		return fmt.Errorf("%s.origin scheme must be one of %v, got %q", prefix, validSchemes, u.Scheme)
	}
	if !slices.Contains(validCodecs, c.Codec) {
		return fmt.Errorf("%s.codec must be one of %v, got %q", prefix, validCodecs, c.Codec)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("%s.reconnect_delay must be > 0", prefix)
	}
	if c.PingInterval > 0 && c.PingTimeout < c.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) cannot be shorter than ping_interval (%s)",
			prefix, c.PingTimeout, c.PingInterval)
	}
	if c.MaxFrameSize < 1 {
		return fmt.Errorf("%s.max_frame_size must be >= 1, got %d", prefix, c.MaxFrameSize)
	}
	return nil
}

func (c *ServerConfig) validate(prefix string) error {
	if c.Addr == "" {
		return fmt.Errorf("%s.addr is required", prefix)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.TimeInterval < 0 {
		return fmt.Errorf("%s.time_interval must be > 0", prefix)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%s.queue_size must be >= 1", prefix)
	}
	if c.MaxDatagramSize < 1 || c.MaxDatagramSize > 65507 {
		return fmt.Errorf("%s.max_datagram_size must be between 1 and 65507, got %d", prefix, c.MaxDatagramSize)
	}
	if c.MaxFrameSize < 1 {
		return fmt.Errorf("%s.max_frame_size must be >= 1, got %d", prefix, c.MaxFrameSize)
	}
	return nil
}
