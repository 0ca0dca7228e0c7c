package connection

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// SchemeDialer picks the websocket or tcp dialer from the endpoint scheme.
type SchemeDialer struct {
	WebSocket Dialer
	TCP       Dialer
}

// NewDialer returns a SchemeDialer with the built-in dialers.
func NewDialer(cfg DialerConfig, logger *slog.Logger) *SchemeDialer {
	return &SchemeDialer{
		WebSocket: NewWebSocketDialer(cfg, logger),
		TCP:       NewTCPDialer(cfg, logger),
	}
}

// Dial dispatches on the endpoint scheme.
func (s *SchemeDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpointURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return s.WebSocket.Dial(ctx, endpoint)
	case "tcp":
		return s.TCP.Dial(ctx, endpoint)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
