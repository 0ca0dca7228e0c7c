package subscription

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/tore/internal/frame"
)

// Listener receives the content of a matching message and its match
// targets. Match[0] is the destination the message was published to.
type Listener func(content any, match []string)

// Sender writes a frame to the current connection.
type Sender interface {
	Send(f frame.Frame) error
}

// Subscription is a registered destination.
type Subscription struct {
	Destination string
	Pattern     *Pattern
	Listener    Listener
}

// Registry maps destinations to compiled patterns and listeners, and issues
// the matching subscribe/unsubscribe frames.
type Registry struct {
	sender Sender
	logger *slog.Logger

	mu      sync.RWMutex
	byDest  map[string]*Subscription
	ordered []*Subscription     // registration order
	sent    map[string]struct{} // subscribe frames sent on the current connection
}

// NewRegistry creates an empty registry writing frames through sender.
func NewRegistry(sender Sender, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		sender: sender,
		logger: logger,
		byDest: make(map[string]*Subscription),
		sent:   make(map[string]struct{}),
	}
}

// Subscribe registers listener for destination and sends a subscribe frame.
//
// An invalid pattern returns a *PatternError and changes nothing. Registering
// an existing destination replaces its listener; no frame is sent when the
// destination was already subscribed on the current connection. If the frame
// cannot be sent the subscription stays registered and the send error is
// returned; it will be sent again by Replay.
func (r *Registry) Subscribe(destination string, listener Listener) error {
	pattern, err := Compile(destination)
	if err != nil {
		return err
	}

	sub := &Subscription{
		Destination: destination,
		Pattern:     pattern,
		Listener:    listener,
	}

	r.mu.Lock()
	if existing, ok := r.byDest[destination]; ok {
		for i, s := range r.ordered {
			if s == existing {
				r.ordered[i] = sub
				break
			}
		}
	} else {
		r.ordered = append(r.ordered, sub)
	}
	r.byDest[destination] = sub
	_, active := r.sent[destination]
	r.mu.Unlock()

	if active {
		r.logger.Debug("listener replaced", "destination", destination)
		return nil
	}

	if err := r.send(destination); err != nil {
		return fmt.Errorf("subscribe %q: %w", destination, err)
	}

	r.logger.Debug("subscribed", "destination", destination, "literal", pattern.Literal())
	return nil
}

// send writes a subscribe frame and records it for the current connection.
func (r *Registry) send(destination string) error {
	if err := r.sender.Send(frame.Subscribe{Destination: destination}); err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.byDest[destination]; ok {
		r.sent[destination] = struct{}{}
	}
	r.mu.Unlock()
	return nil
}

// Unsubscribe removes destination, if present, and always sends an
// unsubscribe frame.
func (r *Registry) Unsubscribe(destination string) error {
	r.remove(destination)

	if err := r.sender.Send(frame.Unsubscribe{Destination: destination}); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", destination, err)
	}

	r.logger.Debug("unsubscribed", "destination", destination)
	return nil
}

func (r *Registry) remove(destination string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sent, destination)
	existing, ok := r.byDest[destination]
	if !ok {
		return
	}
	delete(r.byDest, destination)
	for i, s := range r.ordered {
		if s == existing {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
}

// Match returns the listeners of every subscription whose pattern matches
// target, in registration order.
func (r *Registry) Match(target string) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var listeners []Listener
	for _, s := range r.ordered {
		ok, err := s.Pattern.Match(target)
		if err != nil {
			r.logger.Warn("pattern evaluation failed",
				"destination", s.Destination,
				"target", target,
				"error", err,
			)
			continue
		}
		if ok && s.Listener != nil {
			listeners = append(listeners, s.Listener)
		}
	}
	return listeners
}

// Get returns the subscription registered under destination.
func (r *Registry) Get(destination string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byDest[destination]
	if !ok {
		return Subscription{}, false
	}
	return *s, true
}

// Destinations returns registered destinations in registration order.
func (r *Registry) Destinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.ordered))
	for i, s := range r.ordered {
		out[i] = s.Destination
	}
	return out
}

// Len returns the number of registered destinations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Reset forgets which destinations were subscribed on the connection. Call
// it when a new connection opens.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = make(map[string]struct{})
}

// Replay resets the registry for a new connection and sends a subscribe
// frame for every registered destination, so the server state matches the
// registry.
func (r *Registry) Replay() error {
	r.Reset()

	var errs []error
	for _, destination := range r.Destinations() {
		if err := r.send(destination); err != nil {
			errs = append(errs, fmt.Errorf("replay %q: %w", destination, err))
		}
	}
	return errors.Join(errs...)
}

// Clear drops all subscriptions without sending frames.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byDest = make(map[string]*Subscription)
	r.ordered = nil
	r.sent = make(map[string]struct{})
}
