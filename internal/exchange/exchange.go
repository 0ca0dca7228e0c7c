package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
)

// Errors
var (
	ErrStopped = errors.New("exchange stopped")
)

// Callback receives a pushed message. match[0] is the destination the
// content was pushed to, followed by the groups of the pattern that matched
// (empty for groups that did not participate).
type Callback func(content any, match []string)

// Config configures an Exchange.
type Config struct {
	QueueSize    int           // Initial queue capacity
	MatchTimeout time.Duration // Per-pattern regex evaluation limit
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:    1024,
		MatchTimeout: 100 * time.Millisecond,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Pushed         int64
	Delivered      int64 // Callback invocations
	Unmatched      int64 // Pushes no pattern matched
	CallbackPanics int64
	MatchErrors    int64
	Patterns       int
	Callbacks      int
	Queue          QueueStats
}

type receiver struct {
	pattern   string
	re        *regexp2.Regexp
	ids       []string // Callback ids in registration order
	callbacks map[string]Callback
}

type pushed struct {
	content     any
	destination string
}

// Exchange routes pushed messages to callbacks registered under destination
// patterns. Patterns are anchored at the start of the destination. Pushes
// are delivered in order by a single consumer goroutine.
type Exchange struct {
	cfg    Config
	logger *slog.Logger
	queue  *Queue[pushed]

	mu        sync.RWMutex
	receivers map[string]*receiver
	order     []string          // Patterns in registration order
	owners    map[string]string // Callback id -> pattern

	// Lifecycle
	startOnce sync.Once
	wg        sync.WaitGroup

	// Stats
	statsMu        sync.Mutex
	pushes         int64
	delivered      int64
	unmatched      int64
	callbackPanics int64
	matchErrors    int64
}

// New creates an Exchange. Pushes queue up until Start.
func New(cfg Config, logger *slog.Logger) *Exchange {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Exchange{
		cfg:       cfg,
		logger:    logger,
		queue:     NewQueue[pushed](cfg.QueueSize),
		receivers: make(map[string]*receiver),
		owners:    make(map[string]string),
	}
}

// Add registers callback for destinations matching pattern and returns an
// id for Remove. Each distinct pattern is compiled once.
func (e *Exchange) Add(pattern string, callback Callback) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.receivers[pattern]
	if !ok {
		// Validate on its own first: an unbalanced ")" would otherwise
		// close the anchor group.
		if _, err := regexp2.Compile(pattern, regexp2.None); err != nil {
			return "", fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		re, err := regexp2.Compile(`\A(?:`+pattern+`)`, regexp2.None)
		if err != nil {
			return "", fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		if e.cfg.MatchTimeout > 0 {
			re.MatchTimeout = e.cfg.MatchTimeout
		}
		r = &receiver{
			pattern:   pattern,
			re:        re,
			callbacks: make(map[string]Callback),
		}
		e.receivers[pattern] = r
		e.order = append(e.order, pattern)
	}

	id := uuid.NewString()
	r.ids = append(r.ids, id)
	r.callbacks[id] = callback
	e.owners[id] = pattern

	e.logger.Debug("callback added", "pattern", pattern, "id", id)
	return id, nil
}

// Remove drops the callback with the given id. A pattern without callbacks
// is forgotten. Unknown ids are ignored.
func (e *Exchange) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pattern, ok := e.owners[id]
	if !ok {
		return
	}
	delete(e.owners, id)

	r := e.receivers[pattern]
	delete(r.callbacks, id)
	for i, cid := range r.ids {
		if cid == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}

	if len(r.ids) == 0 {
		delete(e.receivers, pattern)
		for i, p := range e.order {
			if p == pattern {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}

	e.logger.Debug("callback removed", "pattern", pattern, "id", id)
}

// Push queues content for delivery to every pattern matching destination.
func (e *Exchange) Push(content any, destination string) error {
	if !e.queue.Put(pushed{content: content, destination: destination}) {
		return ErrStopped
	}

	e.statsMu.Lock()
	e.pushes++
	e.statsMu.Unlock()
	return nil
}

// Start begins delivering. Cancelling ctx stops the exchange like Stop.
func (e *Exchange) Start(ctx context.Context) error {
	e.startOnce.Do(func() {
		e.wg.Add(1)
		go e.consumeLoop()

		go func() {
			<-ctx.Done()
			e.queue.Close()
		}()

		e.logger.Info("exchange started", "queue_size", e.cfg.QueueSize)
	})
	return nil
}

// Stop refuses further pushes and waits until queued pushes are delivered
// or ctx expires.
func (e *Exchange) Stop(ctx context.Context) error {
	e.logger.Info("stopping exchange")
	e.queue.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("exchange stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("exchange stop timed out", "pending", e.queue.Len())
		return ctx.Err()
	}
}

// Patterns returns the registered patterns with their callback ids.
func (e *Exchange) Patterns() map[string][]string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string][]string, len(e.receivers))
	for p, r := range e.receivers {
		out[p] = append([]string(nil), r.ids...)
	}
	return out
}

// Stats returns current statistics.
func (e *Exchange) Stats() Stats {
	e.mu.RLock()
	patterns, callbacks := len(e.receivers), len(e.owners)
	e.mu.RUnlock()

	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	return Stats{
		Pushed:         e.pushes,
		Delivered:      e.delivered,
		Unmatched:      e.unmatched,
		CallbackPanics: e.callbackPanics,
		MatchErrors:    e.matchErrors,
		Patterns:       patterns,
		Callbacks:      callbacks,
		Queue:          e.queue.Stats(),
	}
}

// consumeLoop is the delivery goroutine.
func (e *Exchange) consumeLoop() {
	defer e.wg.Done()

	for {
		item, ok := e.queue.Take()
		if !ok {
			return
		}
		e.deliver(item)
	}
}

type target struct {
	callback Callback
	match    []string
}

// deliver calls every callback whose pattern matches. Callbacks run without
// the lock held so they may Add or Remove.
func (e *Exchange) deliver(item pushed) {
	var targets []target
	var matchErrors int64

	e.mu.RLock()
	for _, pattern := range e.order {
		r := e.receivers[pattern]
		m, err := r.re.FindStringMatch(item.destination)
		if err != nil {
			e.logger.Warn("pattern evaluation failed",
				"pattern", pattern,
				"destination", item.destination,
				"error", err,
			)
			matchErrors++
			continue
		}
		if m == nil {
			continue
		}

		match := matchResult(item.destination, m)
		for _, id := range r.ids {
			targets = append(targets, target{callback: r.callbacks[id], match: match})
		}
	}
	e.mu.RUnlock()

	var panics int64
	for _, t := range targets {
		if !e.call(t, item.content) {
			panics++
		}
	}

	e.statsMu.Lock()
	e.delivered += int64(len(targets))
	e.callbackPanics += panics
	e.matchErrors += matchErrors
	if len(targets) == 0 {
		e.unmatched++
	}
	e.statsMu.Unlock()
}

// call runs one callback and reports whether it returned normally.
func (e *Exchange) call(t target, content any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("callback panicked", "destination", t.match[0], "panic", r)
			ok = false
		}
	}()
	t.callback(content, t.match)
	return true
}

// matchResult builds [destination, group1, group2, ...].
func matchResult(destination string, m *regexp2.Match) []string {
	groups := m.Groups()
	match := make([]string, 0, len(groups))
	match = append(match, destination)
	for _, g := range groups[1:] {
		if len(g.Captures) == 0 {
			match = append(match, "")
			continue
		}
		match = append(match, g.String())
	}
	return match
}
