package client

import (
	"fmt"
	"net"

	"github.com/rickgao/tore/internal/frame"
)

// UDPPublisher publishes frames as single datagrams. It cannot subscribe.
type UDPPublisher struct {
	conn  net.Conn
	codec frame.Codec
}

// NewUDPPublisher connects a datagram socket to addr (host:port). A nil
// codec means JSON.
func NewUDPPublisher(addr string, codec frame.Codec) (*UDPPublisher, error) {
	if codec == nil {
		codec = frame.JSON()
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %s: %w", addr, err)
	}
	return &UDPPublisher{conn: conn, codec: codec}, nil
}

// Publish sends content to destination. Delivery is not confirmed.
func (p *UDPPublisher) Publish(content any, destination string) error {
	data, err := p.codec.Encode(frame.Publish{Destination: destination, Content: content})
	if err != nil {
		return fmt.Errorf("encode publish frame: %w", err)
	}
	if _, err := p.conn.Write(data); err != nil {
		return fmt.Errorf("send publish frame: %w", err)
	}
	return nil
}

// Close releases the socket.
func (p *UDPPublisher) Close() error {
	return p.conn.Close()
}
