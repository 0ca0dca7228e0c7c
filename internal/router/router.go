package router

import (
	"log/slog"
	"sync"

	"github.com/rickgao/tore/internal/frame"
	"github.com/rickgao/tore/internal/subscription"
)

// Router decodes inbound payloads and dispatches them to subscription
// listeners and error handlers.
type Router struct {
	codec   frame.Codec
	subs    Matcher
	onError ErrorHandler
	logger  *slog.Logger

	// Stats
	mu             sync.RWMutex
	received       int64
	matched        int64
	dropped        int64
	listenerCalls  int64
	listenerPanics int64
	serverErrors   int64
	parseErrors    int64
	unknownFrames  int64
}

// NewRouter creates a Router. A nil codec means JSON.
func NewRouter(codec frame.Codec, subs Matcher, onError ErrorHandler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = frame.JSON()
	}

	return &Router{
		codec:   codec,
		subs:    subs,
		onError: onError,
		logger:  logger,
	}
}

// Route parses and dispatches a single payload. Malformed payloads are
// logged and dropped.
func (r *Router) Route(payload []byte) {
	r.mu.Lock()
	r.received++
	r.mu.Unlock()

	f, err := r.codec.Decode(payload)
	if err != nil {
		r.logger.Warn("failed to parse frame", "error", err, "size", len(payload))
		r.mu.Lock()
		r.parseErrors++
		r.mu.Unlock()
		return
	}

	switch f := f.(type) {
	case frame.Message:
		r.dispatch(f)

	case frame.Error:
		r.mu.Lock()
		r.serverErrors++
		r.mu.Unlock()

		serverErr := &ServerError{Details: f.Details}
		r.logger.Debug("server error", "error", serverErr)
		if r.onError != nil {
			r.onError(serverErr)
		}

	default:
		// Unknown tags and client-bound frame types the server should never send
		r.logger.Warn("skipping frame type", "type", f.Type())
		r.mu.Lock()
		r.unknownFrames++
		r.mu.Unlock()
	}
}

// dispatch delivers a message to every listener whose pattern matches its
// target, in registration order.
func (r *Router) dispatch(msg frame.Message) {
	target := msg.Target()
	listeners := r.subs.Match(target)

	if len(listeners) == 0 {
		r.logger.Debug("no subscription matched", "target", target)
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		return
	}

	var panics int64
	for _, l := range listeners {
		if !r.call(l, msg.Content, msg.Match) {
			panics++
		}
	}

	r.mu.Lock()
	r.matched++
	r.listenerCalls += int64(len(listeners))
	r.listenerPanics += panics
	r.mu.Unlock()
}

// call runs one listener and reports whether it returned normally.
func (r *Router) call(l subscription.Listener, content any, match []string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("message listener panicked",
				"target", match[0],
				"panic", rec,
			)
			ok = false
		}
	}()
	l(content, match)
	return true
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		PayloadsReceived: r.received,
		MessagesMatched:  r.matched,
		MessagesDropped:  r.dropped,
		ListenerCalls:    r.listenerCalls,
		ListenerPanics:   r.listenerPanics,
		ServerErrors:     r.serverErrors,
		ParseErrors:      r.parseErrors,
		UnknownFrames:    r.unknownFrames,
	}
}
