package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/frame"
)

// wsConn adapts an upgraded websocket to connection.Transport.
type wsConn struct {
	conn         *websocket.Conn
	messageType  int
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(conn *websocket.Conn, codec frame.Codec, writeTimeout time.Duration) *wsConn {
	messageType := websocket.TextMessage
	if codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	return &wsConn{
		conn:         conn,
		messageType:  messageType,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return connection.ErrTransportClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(c.messageType, data)
}

func (c *wsConn) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		return data, nil
	}

	select {
	case <-c.done:
		return nil, connection.ErrTransportClosed
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, fmt.Errorf("%w: %v", connection.ErrTransportClosed, err)
	}
	return nil, err
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.conn.Close()
	})
	return err
}

// pingLoop keeps idle connections alive through proxies. Clients answer
// with pongs; a dead peer surfaces as a read error.
func (c *wsConn) pingLoop(interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// ServeWebSocket upgrades the request and serves the messaging protocol.
// The codec follows the negotiated subprotocol; JSON when none was offered.
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	codec, err := frame.Lookup(conn.Subprotocol())
	if err != nil {
		s.logger.Error("no codec for subprotocol", "subprotocol", conn.Subprotocol(), "error", err)
		conn.Close()
		return
	}

	conn.SetReadLimit(s.maxFrameSize())

	t := newWSConn(conn, codec, s.cfg.WriteTimeout)
	if s.cfg.PingInterval > 0 {
		go t.pingLoop(s.cfg.PingInterval, s.logger)
	}

	sess := newSession("websocket", t, codec, s.exchange, s.cfg.AllowWebSocketPublish, &s.stats,
		s.logger.With("remote", r.RemoteAddr, "subprotocol", codec.Name()))

	s.track(sess)
	defer s.untrack(sess)
	sess.serve()
}
