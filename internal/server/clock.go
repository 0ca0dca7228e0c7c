package server

import (
	"context"

	"github.com/rickgao/tore/internal/clock"
	"github.com/rickgao/tore/internal/poller"
)

// PublishTime pushes the local time, formatted with TimeLayout, to the
// configured time destination every TimeInterval until ctx is cancelled.
func (s *Server) PublishTime(ctx context.Context) error {
	p := poller.New(
		poller.Config{Interval: s.cfg.TimeInterval},
		[]poller.Feed{{
			Destination: s.cfg.TimeDestination,
			Source:      poller.TimeSource(clock.Real(), TimeLayout),
		}},
		timePublisher{s},
		s.logger.With("feed", "time"),
	)

	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return p.Stop(context.Background())
}

// timePublisher counts clock pushes into the server stats.
type timePublisher struct{ s *Server }

func (t timePublisher) Push(content any, destination string) error {
	if err := t.s.exchange.Push(content, destination); err != nil {
		return err
	}
	t.s.stats.timePushed()
	return nil
}
