package session

import (
	"context"
	"errors"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/clock"
	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// StartClock starts the match clock and its per-second ticker.
func (c *Controller) StartClock(ctx context.Context, matchID, userID int64) (clock.State, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return clock.State{}, err
	}
	if err := c.requireEditor(ctx, matchID, userID); err != nil {
		return clock.State{}, err
	}

	st, err := c.engine.Start(matchID)
	if err != nil {
		return st, err
	}
	c.ticker.Start(c.tickContext(), matchID)
	c.notifyClock(ctx, matchID)
	return st, nil
}

// PauseClock stops the match clock.
func (c *Controller) PauseClock(ctx context.Context, matchID, userID int64) (clock.State, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return clock.State{}, err
	}
	if err := c.requireEditor(ctx, matchID, userID); err != nil {
		return clock.State{}, err
	}

	c.ticker.Stop(matchID)
	st, err := c.engine.Pause(matchID)
	if err != nil {
		return st, err
	}
	c.persistClock(ctx, matchID)
	c.notifyClock(ctx, matchID)
	return st, nil
}

// ResetClock stops the clock and rewinds it to the first period.
func (c *Controller) ResetClock(ctx context.Context, matchID, userID int64) (clock.State, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return clock.State{}, err
	}
	if err := c.requireEditor(ctx, matchID, userID); err != nil {
		return clock.State{}, err
	}

	c.ticker.Stop(matchID)
	st, err := c.engine.Reset(matchID)
	if err != nil {
		return st, err
	}
	c.persistClock(ctx, matchID)
	c.notifyClock(ctx, matchID)
	return st, nil
}

// ApplySettings changes the period structure. Owner only, clock stopped.
// The new settings are persisted before they take effect in memory.
func (c *Controller) ApplySettings(ctx context.Context, matchID, ownerID int64, settings clock.Settings) (clock.State, error) {
	if err := c.config.Limits.Validate(settings); err != nil {
		return clock.State{}, err
	}
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return clock.State{}, err
	}
	if err := c.requireOwner(ctx, matchID, ownerID); err != nil {
		return clock.State{}, err
	}

	current, err := c.engine.State(matchID)
	if err != nil {
		return clock.State{}, err
	}
	if current.Running {
		return current, errclass.ErrInvalidState.WithMessage("pause the clock before changing settings")
	}

	period, elapsed := 1, 0
	if err := c.store.UpdateMatch(ctx, matchID, models.MatchUpdate{
		PeriodMinutes:         &settings.PeriodMinutes,
		TotalPeriods:          &settings.TotalPeriods,
		CurrentPeriod:         &period,
		TimeRegisteredSeconds: &elapsed,
	}); err != nil {
		return current, err
	}

	st, err := c.engine.ApplySettings(matchID, settings)
	if err != nil {
		return st, err
	}
	c.notifyClock(ctx, matchID)
	return st, nil
}

// onTick advances the clock by the whole seconds elapsed since the last tick.
// A tick only ever stops its own ticker, so a clock restarted while this tick
// was pushing keeps running.
func (c *Controller) onTick(ctx context.Context, matchID int64) {
	res, err := c.engine.Advance(matchID)
	if err != nil {
		if !errors.Is(err, errclass.ErrInvalidState) {
			log.Warn().Err(err).Int64("match_id", matchID).Msg("tick failed")
		}
		c.ticker.StopCurrent(ctx, matchID)
		return
	}
	if res.Seconds == 0 {
		if !res.State.Running {
			c.ticker.StopCurrent(ctx, matchID)
		}
		return
	}
	if res.Stopped() {
		c.ticker.StopCurrent(ctx, matchID)
		c.persistClock(ctx, matchID)
	}

	c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeClockState, c.clockPayload(matchID, res.State))
	if res.Advisory != "" {
		c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeClockAdvisory, events.ClockAdvisoryPayload{
			Message: res.Advisory,
		})
	}
}

func (c *Controller) persistClock(ctx context.Context, matchID int64) {
	if err := c.writeClock(ctx, matchID); err != nil {
		log.Warn().Err(err).Int64("match_id", matchID).Msg("failed to persist clock")
	}
}

func (c *Controller) writeClock(ctx context.Context, matchID int64) error {
	st, err := c.engine.State(matchID)
	if err != nil {
		return err
	}
	return c.store.UpdateMatch(ctx, matchID, models.MatchUpdate{
		CurrentPeriod:         &st.Period,
		TimeRegisteredSeconds: &st.Elapsed,
	})
}
