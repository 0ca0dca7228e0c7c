package connection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"
)

// frameDelimiter terminates every frame on the tcp protocol.
const frameDelimiter = 0

// TCPDialer dials tcp://host:port endpoints speaking NUL-terminated frames.
type TCPDialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

// NewTCPDialer creates a tcp dialer.
func NewTCPDialer(cfg DialerConfig, logger *slog.Logger) *TCPDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPDialer{cfg: cfg, logger: logger}
}

// Dial connects to the endpoint's host:port.
func (d *TCPDialer) Dial(ctx context.Context, endpoint string) (Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEndpointURL, err)
	}
	if u.Scheme != "tcp" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	nd := net.Dialer{Timeout: d.cfg.HandshakeTimeout}
	conn, err := nd.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}

	d.logger.Debug("tcp connected", "addr", u.Host)

	return NewTCPTransport(conn, d.cfg.WriteTimeout, d.cfg.maxFrameSize()), nil
}

// TCPTransport frames payloads on a stream connection with a trailing NUL
// byte. It is used by the client dialer and by the server side.
type TCPTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	maxFrameSize int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCPTransport wraps an established connection. Frames longer than
// maxFrameSize bytes fail Receive with ErrFrameTooLarge; 0 selects
// DefaultMaxFrameSize.
func NewTCPTransport(conn net.Conn, writeTimeout time.Duration, maxFrameSize int64) *TCPTransport {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &TCPTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: writeTimeout,
		maxFrameSize: maxFrameSize,
		closed:       make(chan struct{}),
	}
}

// Send writes data followed by the delimiter.
func (t *TCPTransport) Send(data []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, frameDelimiter)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	_, err := t.conn.Write(buf)
	return err
}

// Receive reads up to the next delimiter and returns the frame without it.
// The stream cannot be resynchronised after ErrFrameTooLarge, so callers
// should close the transport.
func (t *TCPTransport) Receive() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := t.reader.ReadSlice(frameDelimiter)
		if int64(len(buf)+len(chunk)) > t.maxFrameSize+1 {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFrameTooLarge, t.maxFrameSize)
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			return buf[:len(buf)-1], nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		}

		select {
		case <-t.closed:
			return nil, ErrTransportClosed
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return nil, err
	}
}

// Close closes the connection.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr returns the peer address.
func (t *TCPTransport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
