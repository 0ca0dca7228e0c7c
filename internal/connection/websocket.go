package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tore/internal/frame"
	"github.com/rickgao/tore/internal/version"
)

// WebSocketDialer dials ws:// and wss:// endpoints.
type WebSocketDialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

// NewWebSocketDialer creates a websocket dialer.
func NewWebSocketDialer(cfg DialerConfig, logger *slog.Logger) *WebSocketDialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Codec == nil {
		cfg.Codec = frame.JSON()
	}

	return &WebSocketDialer{cfg: cfg, logger: logger}
}

// Dial establishes the websocket connection and starts its keepalive loop.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Subprotocols:     []string{d.cfg.Codec.Name()},
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	conn.SetReadLimit(d.cfg.maxFrameSize())

	messageType := websocket.TextMessage
	if d.cfg.Codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	t := &wsTransport{
		conn:        conn,
		cfg:         d.cfg,
		logger:      d.logger,
		messageType: messageType,
		done:        make(chan struct{}),
		lastPongAt:  time.Now(),
	}

	// Server pings keep the connection alive as much as our own pongs do.
	conn.SetPingHandler(func(data string) error {
		t.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		t.touch()
		return nil
	})

	if d.cfg.PingInterval > 0 {
		go t.heartbeatLoop()
	}

	d.logger.Debug("websocket connected",
		"url", endpoint,
		"subprotocol", conn.Subprotocol(),
	)

	return t, nil
}

// wsTransport is a Transport over a gorilla websocket connection.
type wsTransport struct {
	conn        *websocket.Conn
	cfg         DialerConfig
	logger      *slog.Logger
	messageType int

	// Write serialization
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	lastPongAt time.Time
	failure    error // Set by the heartbeat before it tears the socket down
}

func (t *wsTransport) touch() {
	t.mu.Lock()
	t.lastPongAt = time.Now()
	t.mu.Unlock()
}

// Send writes one frame as a single websocket message.
func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return t.conn.WriteMessage(t.messageType, data)
}

// Receive reads the next data message.
func (t *wsTransport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err == nil {
		return data, nil
	}

	t.mu.Lock()
	failure := t.failure
	t.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	// Ignore errors after Close() is called
	select {
	case <-t.done:
		return nil, ErrTransportClosed
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}
	return nil, err
}

// Close sends a close message and closes the socket.
func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = t.conn.Close()
	})
	return err
}

// fail records err as the reason Receive will report and drops the socket.
func (t *wsTransport) fail(err error) {
	t.mu.Lock()
	if t.failure == nil {
		t.failure = err
	}
	t.mu.Unlock()
	t.conn.Close()
}

// heartbeatLoop pings the server and fails the transport when pongs stop.
func (t *wsTransport) heartbeatLoop() {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteTimeout)
			if err := t.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
			}

			t.mu.Lock()
			lastPong := t.lastPongAt
			t.mu.Unlock()

			if t.cfg.PingTimeout > 0 && time.Since(lastPong) > t.cfg.PingTimeout {
				t.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", t.cfg.PingTimeout,
				)
				t.fail(ErrStaleConnection)
				return
			}
		}
	}
}
