package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tore/internal/clock"
)

// Source produces the content published for a feed on every poll.
type Source interface {
	Poll(ctx context.Context) (any, error)
}

// SourceFunc is a function adapter for Source.
type SourceFunc func(ctx context.Context) (any, error)

func (f SourceFunc) Poll(ctx context.Context) (any, error) {
	return f(ctx)
}

// Publisher receives polled content. *exchange.Exchange satisfies it.
type Publisher interface {
	Push(content any, destination string) error
}

// Feed publishes what Source returns to Destination.
type Feed struct {
	Destination string
	Source      Source
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 1s)
	Concurrency int           // Max feeds polled at once (default: 8)
	Timeout     time.Duration // Per-poll timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		Concurrency: 8,
		Timeout:     5 * time.Second,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Cycles    int64
	Published int64
	Errors    int64
}

// Poller periodically polls its feeds and publishes the results.
type Poller struct {
	cfg       Config
	feeds     []Feed
	publisher Publisher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles    atomic.Int64
	published atomic.Int64
	errors    atomic.Int64
}

// New creates a new Poller.
func New(cfg Config, feeds []Feed, publisher Publisher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:       cfg,
		feeds:     feeds,
		publisher: publisher,
		logger:    logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("poller started",
		"interval", p.cfg.Interval,
		"feeds", len(p.feeds),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:    p.cycles.Load(),
		Published: p.published.Load(),
		Errors:    p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll polls every feed concurrently.
func (p *Poller) pollAll() {
	p.cycles.Add(1)

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, feed := range p.feeds {
		wg.Add(1)
		go func(feed Feed) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollFeed(feed); err != nil {
				p.logger.Warn("failed to poll feed",
					"destination", feed.Destination,
					"err", err,
				)
				p.errors.Add(1)
				return
			}
			p.published.Add(1)
		}(feed)
	}

	wg.Wait()
}

func (p *Poller) pollFeed(feed Feed) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	content, err := feed.Source.Poll(ctx)
	if err != nil {
		return err
	}
	return p.publisher.Push(content, feed.Destination)
}

// TimeSource returns a Source reporting c.Now() formatted with layout.
func TimeSource(c clock.Clock, layout string) Source {
	if c == nil {
		c = clock.Real()
	}
	return SourceFunc(func(context.Context) (any, error) {
		return c.Now().Format(layout), nil
	})
}
