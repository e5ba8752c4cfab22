package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Finalize closes the match for good. Playtime and clock are persisted first;
// if that fails the match stays live.
func (c *Controller) Finalize(ctx context.Context, matchID, ownerID int64) error {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return err
	}
	if err := c.requireOwner(ctx, matchID, ownerID); err != nil {
		return err
	}

	c.ticker.Stop(matchID)
	if _, err := c.engine.Pause(matchID); err != nil {
		return err
	}
	if err := c.checkpointMatch(ctx, matchID); err != nil {
		c.notifyClock(ctx, matchID)
		return fmt.Errorf("save playtime before finalize: %w", err)
	}

	finalized := true
	if err := c.store.UpdateMatch(ctx, matchID, models.MatchUpdate{
		IsFinalized: &finalized,
		Lock:        &models.LockUpdate{},
	}); err != nil {
		return fmt.Errorf("finalize match %d: %w", matchID, err)
	}

	c.registry.Finalize(matchID)
	if _, err := c.engine.Finalize(matchID); err != nil {
		return err
	}

	log.Info().Int64("match_id", matchID).Int64("user_id", ownerID).Msg("match finalized")
	c.notifyClock(ctx, matchID)
	c.notifyActivePlayers(ctx, matchID)
	return nil
}

// CheckpointAll checkpoints every open, unfinalized match.
func (c *Controller) CheckpointAll(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]int64, 0, len(c.open))
	for id := range c.open {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if c.registry.IsFinalized(id) {
			continue
		}
		if err := c.checkpointMatch(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("match %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// checkpointMatch persists the clock fields and every player's playtime.
func (c *Controller) checkpointMatch(ctx context.Context, matchID int64) error {
	var errs []error
	if err := c.writeClock(ctx, matchID); err != nil {
		errs = append(errs, fmt.Errorf("clock: %w", err))
	}
	if err := c.ledger.Checkpoint(ctx, matchID, c.store); err != nil {
		errs = append(errs, fmt.Errorf("playtime: %w", err))
	}
	return errors.Join(errs...)
}
