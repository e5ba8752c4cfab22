package session

import (
	"context"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/models"
)

// ActionInput is a client submitted action. A nil Timestamp or zero Period
// is taken from the match clock.
type ActionInput struct {
	PlayerID   *int64            `json:"player_id"`
	IsOpponent bool              `json:"is_opponent"`
	Action     models.ActionType `json:"action"`
	Result     bool              `json:"result"`
	X          *float64          `json:"x"`
	Y          *float64          `json:"y"`
	Period     int               `json:"period"`
	Timestamp  *int              `json:"timestamp"`
}

// SetActivePlayer marks a player on or off the field.
func (c *Controller) SetActivePlayer(ctx context.Context, matchID, userID, playerID int64, active bool) ([]int64, error) {
	om, err := c.ensureOpen(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := c.requireEditor(ctx, matchID, userID); err != nil {
		return nil, err
	}
	if active {
		ok, err := c.rosterContains(ctx, matchID, om, playerID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errclass.ErrNotFound.WithMessagef("player %d is not on this team", playerID)
		}
	}

	ids, err := c.engine.SetActive(matchID, playerID, active)
	if err != nil {
		return nil, err
	}
	c.notifyActivePlayers(ctx, matchID)
	return ids, nil
}

// SubmitAction records an action and returns its id.
func (c *Controller) SubmitAction(ctx context.Context, matchID, userID int64, in ActionInput) (int64, error) {
	om, err := c.ensureOpen(ctx, matchID)
	if err != nil {
		return 0, err
	}
	if err := c.requireEditor(ctx, matchID, userID); err != nil {
		return 0, err
	}

	st, err := c.engine.State(matchID)
	if err != nil {
		return 0, err
	}
	if in.Period == 0 {
		in.Period = st.Period
	}
	if in.Timestamp == nil {
		in.Timestamp = &st.Elapsed
	}
	if err := validateAction(in, st.TotalPeriods); err != nil {
		return 0, err
	}
	if in.PlayerID != nil && !in.IsOpponent {
		ok, err := c.rosterContains(ctx, matchID, om, *in.PlayerID)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errclass.ErrNotFound.WithMessagef("player %d is not on this team", *in.PlayerID)
		}
	}

	id, err := c.store.CreateAction(ctx, models.Action{
		MatchID:    matchID,
		PlayerID:   in.PlayerID,
		IsOpponent: in.IsOpponent,
		UserID:     userID,
		Timestamp:  *in.Timestamp,
		X:          in.X,
		Y:          in.Y,
		Period:     in.Period,
		Action:     in.Action,
		Result:     in.Result,
	})
	if err != nil {
		return 0, err
	}

	c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeActionChanged, events.ActionChangedPayload{
		MatchID:  matchID,
		ActionID: id,
	})
	return id, nil
}

func validateAction(in ActionInput, totalPeriods int) error {
	if !in.Action.Valid() {
		return errclass.ErrValidation.WithMessagef("unknown action type %q", in.Action)
	}
	if *in.Timestamp < 0 {
		return errclass.ErrValidation.WithMessage("timestamp must not be negative")
	}
	if in.Period < 1 || in.Period > totalPeriods {
		return errclass.ErrValidation.WithMessagef("period must be between 1 and %d", totalPeriods)
	}
	if !inField(in.X) || !inField(in.Y) {
		return errclass.ErrValidation.WithMessage("coordinates must be between 0 and 100")
	}
	return nil
}

func inField(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 100)
}
