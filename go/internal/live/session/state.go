package session

import (
	"context"

	"github.com/mcdev12/courtside/go/internal/live/events"
)

// Snapshot is the full live state of a match as a newly connected viewer needs it.
type Snapshot struct {
	MatchID       int64                    `json:"match_id"`
	Clock         events.ClockStatePayload `json:"clock"`
	ActivePlayers []int64                  `json:"active_players"`
	Playtime      map[int64]int            `json:"playtime"`
	Collaborators []int64                  `json:"collaborators"`
}

// State returns the current snapshot of matchID.
func (c *Controller) State(ctx context.Context, matchID int64) (*Snapshot, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return nil, err
	}
	st, err := c.engine.State(matchID)
	if err != nil {
		return nil, err
	}

	active := c.engine.ActivePlayers(matchID)
	if active == nil {
		active = []int64{}
	}
	collaborators := c.registry.Collaborators(matchID)
	if collaborators == nil {
		collaborators = []int64{}
	}
	return &Snapshot{
		MatchID:       matchID,
		Clock:         c.clockPayload(matchID, st),
		ActivePlayers: active,
		Playtime:      c.ledger.Totals(matchID),
		Collaborators: collaborators,
	}, nil
}

// DisplayedPlaytime is saved plus unsaved seconds for one player.
func (c *Controller) DisplayedPlaytime(ctx context.Context, matchID, playerID int64) (int, error) {
	if _, err := c.ensureOpen(ctx, matchID); err != nil {
		return 0, err
	}
	return c.ledger.DisplayedTotal(matchID, playerID), nil
}
