package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/frame"
	"github.com/rickgao/tore/internal/router"
	"github.com/rickgao/tore/internal/subscription"
)

// Client is a reconnecting publish/subscribe client over one socket.
type Client struct {
	cfg    Config
	logger *slog.Logger
	codec  frame.Codec

	manager  *connection.Manager
	registry *subscription.Registry
	router   *router.Router
}

// New creates a Client. The connection is opened by Start.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	codec := o.codec
	if codec == nil {
		var err error
		if codec, err = frame.Lookup(cfg.Codec); err != nil {
			return nil, err
		}
	}

	endpoint, err := connection.EndpointURL(cfg.Origin, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("endpoint: %w", err)
	}

	dialer := o.dialer
	if dialer == nil {
		dialer = connection.NewDialer(connection.DialerConfig{
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			PingInterval:     cfg.PingInterval,
			PingTimeout:      cfg.PingTimeout,
			Codec:            codec,
			MaxFrameSize:     cfg.MaxFrameSize,
		}, o.logger.With("component", "dialer"))
	}

	c := &Client{
		cfg:    cfg,
		logger: o.logger,
		codec:  codec,
	}

	c.manager = connection.NewManager(connection.ManagerConfig{
		Endpoint:       endpoint,
		ReconnectDelay: cfg.ReconnectDelay,
		Codec:          codec,
		Clock:          o.clock,
	}, dialer, c.route, o.logger.With("component", "connection"))

	c.registry = subscription.NewRegistry(c.manager, o.logger.With("component", "subscription"))
	c.router = router.NewRouter(codec, c.registry, c.manager.NotifyError, o.logger.With("component", "router"))

	// Registered before any caller listener so subscriptions are back in
	// place when OnOpen listeners run.
	c.manager.OnOpen(c.opened)

	return c, nil
}

// Start opens the connection. It keeps reconnecting until Close is called
// or ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	return c.manager.Start(ctx)
}

// Subscribe registers listener for messages whose match target satisfies
// the destination pattern, and sends a subscribe frame. An invalid pattern
// fails with a *subscription.PatternError and registers nothing.
func (c *Client) Subscribe(destination string, listener Listener) error {
	return c.registry.Subscribe(destination, listener)
}

// Unsubscribe removes the subscription and sends an unsubscribe frame.
func (c *Client) Unsubscribe(destination string) error {
	return c.registry.Unsubscribe(destination)
}

// Publish sends content to destination. There is no queueing: while the
// connection is not open it fails with connection.ErrNotConnected.
func (c *Client) Publish(content any, destination string) error {
	return c.manager.Send(frame.Publish{Destination: destination, Content: content})
}

// OnOpen adds a listener called every time the connection opens.
func (c *Client) OnOpen(listener func()) { c.manager.OnOpen(listener) }

// OnClose adds a listener called every time the connection closes.
func (c *Client) OnClose(listener func()) { c.manager.OnClose(listener) }

// OnError adds a listener for transport failures and server error frames
// (*router.ServerError).
func (c *Client) OnError(listener func(error)) { c.manager.OnError(listener) }

// Close closes the connection for good and drops all subscriptions.
func (c *Client) Close() error {
	err := c.manager.Close()
	c.registry.Clear()
	return err
}

// State returns the connection state.
func (c *Client) State() connection.State { return c.manager.State() }

// Done is closed once the client has fully closed.
func (c *Client) Done() <-chan struct{} { return c.manager.Done() }

// Destinations returns the subscribed destinations in registration order.
func (c *Client) Destinations() []string { return c.registry.Destinations() }

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	return Stats{
		Connection:    c.manager.Stats(),
		Router:        c.router.Stats(),
		Subscriptions: c.registry.Len(),
	}
}

func (c *Client) route(payload []byte) {
	c.router.Route(payload)
}

func (c *Client) opened() {
	c.registry.Reset()
	if !c.cfg.Resubscribe {
		return
	}

	n := c.registry.Len()
	if n == 0 {
		return
	}
	if err := c.registry.Replay(); err != nil {
		c.logger.Warn("failed to replay subscriptions", "error", err)
		return
	}
	c.logger.Debug("subscriptions replayed", "count", n)
}
