package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/live/ownership"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

// LockResult is the answer to a lock command.
type LockResult struct {
	Outcome   ownership.Outcome `json:"-"`
	Status    string            `json:"status"`
	OwnerID   int64             `json:"owner_id"`
	OwnerName string            `json:"owner_name,omitempty"`
}

// Collaborator is a user with edit access, owner first.
type Collaborator struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsOwner  bool   `json:"is_owner"`
}

// Lock acquires the match for userID.
func (c *Controller) Lock(ctx context.Context, matchID, userID int64) (LockResult, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return LockResult{}, err
	}

	res, err := c.registry.Acquire(matchID, userID)
	if err != nil {
		return LockResult{}, err
	}
	out := LockResult{Outcome: res.Outcome, Status: res.Outcome.String(), OwnerID: res.OwnerID}

	switch res.Outcome {
	case ownership.Denied:
		out.OwnerName = c.userName(ctx, res.OwnerID)
		return out, nil
	case ownership.Granted:
		if res.Changed {
			c.persistLock(ctx, matchID)
			c.notifyClock(ctx, matchID)
		}
	}
	return out, nil
}

// Unlock releases the match. Ownership passes to the collaborator with the
// smallest id; without collaborators the clock is paused and the lock cleared.
func (c *Controller) Unlock(ctx context.Context, matchID, userID int64) (*int64, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return nil, err
	}
	if err := c.requireOwner(ctx, matchID, userID); err != nil {
		return nil, err
	}

	if err := c.checkpointMatch(ctx, matchID); err != nil {
		log.Warn().Err(err).Int64("match_id", matchID).Msg("checkpoint before unlock incomplete")
	}

	newOwner, err := c.registry.Release(matchID, userID)
	if err != nil {
		return nil, err
	}
	if newOwner == nil {
		if _, err := c.engine.Pause(matchID); err == nil {
			c.ticker.Stop(matchID)
		}
	}

	c.persistLock(ctx, matchID)
	c.notifyClock(ctx, matchID)
	return newOwner, nil
}

// Disconnect releases matchID when userID still owns it. A user who no longer
// owns the match, for example after an explicit unlock, is left alone.
func (c *Controller) Disconnect(ctx context.Context, matchID, userID int64) {
	if !c.registry.IsOwner(matchID, userID) {
		return
	}
	c.releaseOwned(ctx, matchID, userID, "released match on disconnect")
}

// UnlockAll releases every match userID owns and returns how many were released.
func (c *Controller) UnlockAll(ctx context.Context, userID int64) int {
	released := 0
	for _, matchID := range c.registry.OwnedBy(userID) {
		if c.releaseOwned(ctx, matchID, userID, "released match on logout") {
			released++
		}
	}
	return released
}

func (c *Controller) releaseOwned(ctx context.Context, matchID, userID int64, msg string) bool {
	newOwner, err := c.Unlock(ctx, matchID, userID)
	if err != nil {
		if !errors.Is(err, errclass.ErrConflict) && !errors.Is(err, errclass.ErrInvalidState) {
			log.Warn().Err(err).Int64("match_id", matchID).Int64("user_id", userID).Msg("release failed")
		}
		return false
	}
	log.Info().
		Int64("match_id", matchID).
		Int64("user_id", userID).
		Bool("transferred", newOwner != nil).
		Msg(msg)
	return true
}

func (c *Controller) persistLock(ctx context.Context, matchID int64) {
	lock := &models.LockUpdate{}
	if owner, at, ok := c.registry.Owner(matchID); ok {
		lock.UserID = &owner
		lock.At = &at
	}
	if err := c.store.UpdateMatch(ctx, matchID, models.MatchUpdate{Lock: lock}); err != nil {
		log.Warn().Err(err).Int64("match_id", matchID).Msg("failed to persist lock owner")
	}
}

// RequestJoin asks the owner for edit access.
func (c *Controller) RequestJoin(ctx context.Context, matchID, userID int64, displayName string) (ownership.JoinOutcome, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return 0, err
	}
	if displayName == "" {
		displayName = c.userName(ctx, userID)
	}

	outcome, err := c.registry.RequestJoin(matchID, userID, displayName)
	if err != nil {
		return 0, err
	}
	if outcome == ownership.JoinAlreadyOwner {
		return outcome, nil
	}

	c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeJoinRequested, events.JoinRequestedPayload{
		RequesterID:   userID,
		RequesterName: displayName,
	})
	return outcome, nil
}

// ListJoinRequests returns the pending requests. Owner only.
func (c *Controller) ListJoinRequests(ctx context.Context, matchID, ownerID int64) ([]ownership.JoinRequest, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return nil, err
	}
	return c.registry.ListRequests(matchID, ownerID)
}

// DecideJoin accepts or denies a pending request and tells the requester.
func (c *Controller) DecideJoin(ctx context.Context, matchID, ownerID, requesterID int64, accept bool) error {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return err
	}
	if _, err := c.registry.Decide(matchID, ownerID, requesterID, accept); err != nil {
		return err
	}

	c.emit(ctx, fanout.UserTopic(requesterID), matchID, events.EventTypeJoinDecided, events.JoinDecidedPayload{
		MatchID:   matchID,
		Approved:  accept,
		OwnerName: c.userName(ctx, ownerID),
	})
	return nil
}

// Collaborators lists the users with edit access, owner first.
func (c *Controller) Collaborators(ctx context.Context, matchID int64) ([]Collaborator, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return nil, err
	}
	ids := c.registry.Collaborators(matchID)
	out := make([]Collaborator, 0, len(ids))
	for _, id := range ids {
		out = append(out, Collaborator{
			UserID:   id,
			Username: c.userName(ctx, id),
			IsOwner:  c.registry.IsOwner(matchID, id),
		})
	}
	return out, nil
}

// IsEditor reports whether userID may edit matchID right now.
func (c *Controller) IsEditor(ctx context.Context, matchID, userID int64) (bool, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return false, fmt.Errorf("check editor: %w", err)
	}
	return c.requireEditor(ctx, matchID, userID) == nil, nil
}
