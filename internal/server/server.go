package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/exchange"
	"github.com/rickgao/tore/internal/frame"
	"github.com/rickgao/tore/internal/sysinfo"
)

// Server exposes an Exchange over websocket, tcp and udp.
type Server struct {
	cfg      Config
	exchange *exchange.Exchange
	logger   *slog.Logger
	upgrader websocket.Upgrader

	stats statsCounter

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a server publishing through ex.
func New(cfg Config, ex *exchange.Exchange, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.MaxDatagramSize <= 0 {
		cfg.MaxDatagramSize = DefaultConfig().MaxDatagramSize
	}

	return &Server{
		cfg:      cfg,
		exchange: ex,
		logger:   logger,
		upgrader: websocket.Upgrader{
			Subprotocols: frame.Names(),
			// Pages are served from any origin the operator deploys them on.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
}

// Handler returns the HTTP routes: the messaging websocket, the system info
// endpoint and, when configured, the static page directory.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.Handle(s.cfg.Path, http.HandlerFunc(s.ServeWebSocket)).
		MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
			return websocket.IsWebSocketUpgrade(req)
		})
	r.Handle(s.cfg.Path, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
	}))
	r.Handle(sysinfo.DefaultPath, sysinfo.Handler(s.logger)).Methods(http.MethodGet)

	if s.cfg.StaticDir != "" {
		r.PathPrefix("/web/").Handler(http.StripPrefix("/web", http.FileServer(http.Dir(s.cfg.StaticDir))))
		r.Handle("/", http.RedirectHandler("/web/", http.StatusFound))
	}

	return r
}

// Run serves every configured endpoint until ctx is cancelled or one of them
// fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}

	var tcpLn net.Listener
	if s.cfg.TCPAddr != "" {
		if tcpLn, err = net.Listen("tcp", s.cfg.TCPAddr); err != nil {
			httpLn.Close()
			return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
		}
	}

	var udpConn net.PacketConn
	if s.cfg.UDPAddr != "" {
		if udpConn, err = net.ListenPacket("udp", s.cfg.UDPAddr); err != nil {
			httpLn.Close()
			if tcpLn != nil {
				tcpLn.Close()
			}
			return fmt.Errorf("listen udp %s: %w", s.cfg.UDPAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	s.exchange.Start(gctx)

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		s.logger.Info("http server listening",
			"addr", httpLn.Addr().String(),
			"path", s.cfg.Path,
			"tls", s.cfg.TLSCertFile != "",
		)

		var err error
		if s.cfg.TLSCertFile != "" {
			err = httpSrv.ServeTLS(httpLn, s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			err = httpSrv.Serve(httpLn)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpSrv)
	})

	if tcpLn != nil {
		g.Go(func() error { return s.ServeTCP(gctx, tcpLn) })
	}
	if udpConn != nil {
		g.Go(func() error { return s.ServeUDP(gctx, udpConn) })
	}
	if s.cfg.TimeDestination != "" && s.cfg.TimeInterval > 0 {
		g.Go(func() error { return s.PublishTime(gctx) })
	}

	return g.Wait()
}

func (s *Server) shutdown(httpSrv *http.Server) error {
	s.logger.Info("shutting down server", "sessions", s.Sessions())

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := httpSrv.Shutdown(ctx)

	// Hijacked websocket connections are not closed by Shutdown.
	s.closeSessions()

	if stopErr := s.exchange.Stop(ctx); stopErr != nil && err == nil {
		err = stopErr
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Sessions returns the number of connected websocket and tcp clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats returns current statistics.
func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

func (s *Server) maxFrameSize() int64 {
	if s.cfg.MaxFrameSize <= 0 {
		return connection.DefaultMaxFrameSize
	}
	return s.cfg.MaxFrameSize
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.transport.Close()
	}
}

// statsCounter is the mutex-guarded backing store for Stats.
type statsCounter struct {
	mu sync.Mutex
	s  Stats
}

func (c *statsCounter) opened() {
	c.mu.Lock()
	c.s.SessionsOpened++
	c.s.SessionsActive++
	c.mu.Unlock()
}

func (c *statsCounter) closed() {
	c.mu.Lock()
	c.s.SessionsActive--
	c.mu.Unlock()
}

func (c *statsCounter) handled() {
	c.mu.Lock()
	c.s.FramesHandled++
	c.mu.Unlock()
}

func (c *statsCounter) rejected() {
	c.mu.Lock()
	c.s.FramesRejected++
	c.mu.Unlock()
}

func (c *statsCounter) datagram() {
	c.mu.Lock()
	c.s.Datagrams++
	c.mu.Unlock()
}

func (c *statsCounter) timePushed() {
	c.mu.Lock()
	c.s.TimePushes++
	c.mu.Unlock()
}

func (c *statsCounter) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
