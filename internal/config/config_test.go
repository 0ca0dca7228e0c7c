package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
log:
  level: debug
  format: json
client:
  origin: https://messaging.example.com
  codec: cbor
  reconnect_delay: 500ms
  resubscribe: false
server:
  addr: ":9000"
  tcp_addr: ":9001"
  allow_websocket_publish: true
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Client.Origin != "https://messaging.example.com" {
		t.Errorf("Client.Origin = %q", cfg.Client.Origin)
	}
	if cfg.Client.ReconnectDelay != 500*time.Millisecond {
		t.Errorf("Client.ReconnectDelay = %v, want 500ms", cfg.Client.ReconnectDelay)
	}
	if cfg.Client.ResubscribeEnabled() {
		t.Error("Client.ResubscribeEnabled() = true, want false")
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.TCPAddr != ":9001" {
		t.Errorf("Server addrs = %q, %q", cfg.Server.Addr, cfg.Server.TCPAddr)
	}
	if !cfg.Server.AllowWebSocketPublish {
		t.Error("Server.AllowWebSocketPublish = false, want true")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TORE_ORIGIN", "wss://edge.example.com")

	yaml := `
client:
  origin: ${TORE_ORIGIN}
`
	path := writeTempFile(t, "config.yaml", yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Client.Origin != "wss://edge.example.com" {
		t.Errorf("Client.Origin = %q, want %q", cfg.Client.Origin, "wss://edge.example.com")
	}
}

func TestLoadJSONC(t *testing.T) {
	jsonc := `{
	// client settings
	"client": {
		"origin": "http://localhost:8080",
		"reconnect_delay": "2s", /* fixed */
	},
	"server": {
		"queue_size": 64,
	},
}`
	path := writeTempFile(t, "config.jsonc", jsonc)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Client.ReconnectDelay != 2*time.Second {
		t.Errorf("Client.ReconnectDelay = %v, want 2s", cfg.Client.ReconnectDelay)
	}
	if cfg.Server.QueueSize != 64 {
		t.Errorf("Server.QueueSize = %d, want 64", cfg.Server.QueueSize)
	}
	if cfg.Client.Codec != DefaultCodec {
		t.Errorf("Client.Codec = %q, want default", cfg.Client.Codec)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "client:\n  codec: json\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Client.Origin != DefaultOrigin {
		t.Errorf("Client.Origin = %q, want %q", cfg.Client.Origin, DefaultOrigin)
	}
	if cfg.Client.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("Client.ReconnectDelay = %v, want %v", cfg.Client.ReconnectDelay, DefaultReconnectDelay)
	}
	if !cfg.Client.ResubscribeEnabled() {
		t.Error("Client.ResubscribeEnabled() = false, want true")
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want %q", cfg.Server.Path, DefaultPath)
	}
	if cfg.Server.TimeInterval != DefaultTimeInterval {
		t.Errorf("Server.TimeInterval = %v, want %v", cfg.Server.TimeInterval, DefaultTimeInterval)
	}
	if cfg.Server.TCPAddr != "" {
		t.Errorf("Server.TCPAddr = %q, want disabled", cfg.Server.TCPAddr)
	}
	if cfg.Client.MaxFrameSize != DefaultMaxFrameSize || cfg.Server.MaxFrameSize != DefaultMaxFrameSize {
		t.Errorf("MaxFrameSize = %d/%d, want %d", cfg.Client.MaxFrameSize, cfg.Server.MaxFrameSize, DefaultMaxFrameSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Errorf("Load() error = %v, want read error", err)
	}
}

func TestLoadAndValidateRejectsInvalid(t *testing.T) {
	path := writeTempFile(t, "config.yaml", "client:\n  codec: xml\n")

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "client.codec") {
		t.Errorf("LoadAndValidate() error = %v, want codec error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: `log.level must be one of [debug info warn error], got "trace"`,
		},
		{
			name:    "relative origin",
			mutate:  func(c *Config) { c.Client.Origin = "/messaging" },
			wantErr: `client.origin must be an absolute URL, got "/messaging"`,
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *Config) { c.Client.Origin = "ftp://example.com" },
			wantErr: `client.origin scheme must be one of [http https ws wss tcp], got "ftp"`,
		},
		{
			name:    "negative reconnect delay",
			mutate:  func(c *Config) { c.Client.ReconnectDelay = -time.Second },
			wantErr: "client.reconnect_delay must be > 0",
		},
		{
			name: "ping timeout shorter than interval",
			mutate: func(c *Config) {
				c.Client.PingInterval = 10 * time.Second
				c.Client.PingTimeout = 5 * time.Second
			},
			wantErr: "client.ping_timeout (5s) cannot be shorter than ping_interval (10s)",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.Server.TLSCertFile = "cert.pem" },
			wantErr: "server.tls_cert_file and server.tls_key_file must be set together",
		},
		{
			name:    "datagram too large",
			mutate:  func(c *Config) { c.Server.MaxDatagramSize = 70000 },
			wantErr: "server.max_datagram_size must be between 1 and 65507, got 70000",
		},
		{
			name:    "negative client frame limit",
			mutate:  func(c *Config) { c.Client.MaxFrameSize = -1 },
			wantErr: "client.max_frame_size must be >= 1, got -1",
		},
		{
			name:    "negative server frame limit",
			mutate:  func(c *Config) { c.Server.MaxFrameSize = -1 },
			wantErr: "server.max_frame_size must be >= 1, got -1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLogConfigNewLogger(t *testing.T) {
	var buf strings.Builder

	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("output = %q, want json record", out)
	}

	buf.Reset()
	LogConfig{}.NewLogger(&buf).Debug("dropped")
	if buf.Len() != 0 {
		t.Errorf("debug record written at default level: %q", buf.String())
	}
}
