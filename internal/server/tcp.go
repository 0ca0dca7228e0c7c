package server

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/frame"
)

// ServeTCP accepts NUL-framed JSON sessions on ln until ctx is cancelled.
// Publishing is always allowed on tcp.
func (s *Server) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("tcp server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}

		t := connection.NewTCPTransport(conn, s.cfg.WriteTimeout, s.maxFrameSize())
		sess := newSession("tcp", t, frame.JSON(), s.exchange, true, &s.stats,
			s.logger.With("remote", conn.RemoteAddr().String()))

		s.track(sess)
		go func() {
			defer s.untrack(sess)
			sess.serve()
		}()
	}
}
