package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rickgao/tore/internal/frame"
)

// ServeUDP reads one publish frame per datagram from pc until ctx is
// cancelled. Datagrams starting with '{' are JSON, anything else is tried as
// CBOR. Other frame types and bad datagrams are logged and dropped; there is
// no reply channel.
func (s *Server) ServeUDP(ctx context.Context, pc net.PacketConn) error {
	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	cborCodec, err := frame.CBOR()
	if err != nil {
		return err
	}
	jsonCodec := frame.JSON()

	s.logger.Info("udp server listening", "addr", pc.LocalAddr().String())

	buf := make([]byte, s.cfg.MaxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp read: %w", err)
		}
		s.stats.datagram()

		codec := cborCodec
		if n > 0 && buf[0] == '{' {
			codec = jsonCodec
		}

		if err := s.handleDatagram(codec, buf[:n]); err != nil {
			s.stats.rejected()
			s.logger.Warn("datagram dropped", "remote", addr.String(), "size", n, "error", err)
		}
	}
}

func (s *Server) handleDatagram(codec frame.Codec, data []byte) error {
	f, err := codec.Decode(data)
	if err != nil {
		return err
	}
	p, ok := f.(frame.Publish)
	if !ok {
		return fmt.Errorf("%w %q on udp", ErrUnknownFrameType, f.Type())
	}
	return s.exchange.Push(p.Content, p.Destination)
}
