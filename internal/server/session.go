package server

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/exchange"
	"github.com/rickgao/tore/internal/frame"
)

// session serves one client connection. Frames are read on the caller's
// goroutine; outbound frames go through a queue drained by a writer so the
// exchange never blocks on a slow socket.
type session struct {
	id           string
	kind         string
	transport    connection.Transport
	codec        frame.Codec
	exchange     *exchange.Exchange
	allowPublish bool
	logger       *slog.Logger
	stats        *statsCounter

	out *exchange.Queue[[]byte]

	mu   sync.Mutex
	subs map[string]string // destination -> exchange callback id
}

func newSession(kind string, t connection.Transport, codec frame.Codec, ex *exchange.Exchange, allowPublish bool, stats *statsCounter, logger *slog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:           id,
		kind:         kind,
		transport:    t,
		codec:        codec,
		exchange:     ex,
		allowPublish: allowPublish,
		logger:       logger.With("session", id, "kind", kind),
		stats:        stats,
		out:          exchange.NewQueue[[]byte](16),
		subs:         make(map[string]string),
	}
}

// serve runs until the transport fails or is closed, then removes every
// subscription the session made.
func (s *session) serve() {
	s.stats.opened()
	defer s.stats.closed()
	s.logger.Info("session opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	for {
		data, err := s.transport.Receive()
		if err != nil {
			s.logger.Debug("session receive ended", "error", err)
			break
		}
		s.handle(data)
	}

	s.unsubscribeAll()
	s.out.Close()
	wg.Wait()
	s.transport.Close()
	s.logger.Info("session closed")
}

func (s *session) handle(data []byte) {
	s.stats.handled()

	f, err := s.codec.Decode(data)
	if err != nil {
		s.reject(fmt.Errorf("invalid frame: %w", err))
		return
	}

	switch f := f.(type) {
	case frame.Subscribe:
		err = s.subscribe(f.Destination)
	case frame.Unsubscribe:
		err = s.unsubscribe(f.Destination)
	case frame.Publish:
		if !s.allowPublish {
			err = ErrPublishNotAllowed
			break
		}
		err = s.exchange.Push(f.Content, f.Destination)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownFrameType, f.Type())
	}

	if err != nil {
		s.reject(err)
	}
}

func (s *session) subscribe(destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[destination]; ok {
		return fmt.Errorf("destination %q %w", destination, ErrAlreadySubscribed)
	}
	id, err := s.exchange.Add(destination, s.deliver)
	if err != nil {
		return err
	}
	s.subs[destination] = id
	s.logger.Debug("subscribed", "destination", destination)
	return nil
}

func (s *session) unsubscribe(destination string) error {
	s.mu.Lock()
	id, ok := s.subs[destination]
	delete(s.subs, destination)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("destination %q %w", destination, ErrNotSubscribed)
	}
	s.exchange.Remove(id)
	s.logger.Debug("unsubscribed", "destination", destination)
	return nil
}

func (s *session) unsubscribeAll() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]string)
	s.mu.Unlock()

	for _, id := range subs {
		s.exchange.Remove(id)
	}
}

// deliver is the exchange callback. It runs on the exchange consumer.
func (s *session) deliver(content any, match []string) {
	s.send(frame.Message{Content: content, Match: match})
}

func (s *session) reject(err error) {
	s.stats.rejected()
	s.logger.Warn("frame rejected", "error", err)
	s.send(frame.Error{Details: err.Error()})
}

func (s *session) send(f frame.Frame) {
	data, err := s.codec.Encode(f)
	if err != nil {
		s.logger.Error("failed to encode frame", "type", f.Type(), "error", err)
		return
	}
	s.out.Put(data)
}

func (s *session) writeLoop() {
	for {
		data, ok := s.out.Take()
		if !ok {
			return
		}
		if err := s.transport.Send(data); err != nil {
			s.logger.Debug("send failed, closing transport", "error", err)
			// Unblocks the reader so serve can clean up.
			s.transport.Close()
			for {
				if _, ok := s.out.Take(); !ok {
					return
				}
			}
		}
	}
}
