package playtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Checkpointer runs a checkpoint pass on a fixed interval until its context ends.
type Checkpointer struct {
	clock    clockwork.Clock
	interval time.Duration
	run      func(ctx context.Context)
}

// NewCheckpointer creates a checkpointer calling run every interval.
func NewCheckpointer(clock clockwork.Clock, interval time.Duration, run func(ctx context.Context)) *Checkpointer {
	return &Checkpointer{clock: clock, interval: interval, run: run}
}

// Start blocks, running checkpoints until ctx is cancelled.
func (c *Checkpointer) Start(ctx context.Context) {
	log.Info().Dur("interval", c.interval).Msg("playtime checkpointer started")
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("playtime checkpointer shutting down")
			return
		case <-ticker.Chan():
			c.run(ctx)
		}
	}
}
