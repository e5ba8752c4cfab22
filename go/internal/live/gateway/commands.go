package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/clock"
	"github.com/mcdev12/courtside/go/internal/live/ownership"
	"github.com/mcdev12/courtside/go/internal/live/session"
)

// Controller is the command surface the gateway drives. *session.Controller implements it.
type Controller interface {
	Lock(ctx context.Context, matchID, userID int64) (session.LockResult, error)
	Unlock(ctx context.Context, matchID, userID int64) (*int64, error)
	UnlockAll(ctx context.Context, userID int64) int
	Disconnect(ctx context.Context, matchID, userID int64)
	RequestJoin(ctx context.Context, matchID, userID int64, displayName string) (ownership.JoinOutcome, error)
	ListJoinRequests(ctx context.Context, matchID, ownerID int64) ([]ownership.JoinRequest, error)
	DecideJoin(ctx context.Context, matchID, ownerID, requesterID int64, accept bool) error
	Collaborators(ctx context.Context, matchID int64) ([]session.Collaborator, error)
	StartClock(ctx context.Context, matchID, userID int64) (clock.State, error)
	PauseClock(ctx context.Context, matchID, userID int64) (clock.State, error)
	ResetClock(ctx context.Context, matchID, userID int64) (clock.State, error)
	ApplySettings(ctx context.Context, matchID, ownerID int64, settings clock.Settings) (clock.State, error)
	SetActivePlayer(ctx context.Context, matchID, userID, playerID int64, active bool) ([]int64, error)
	SubmitAction(ctx context.Context, matchID, userID int64, in session.ActionInput) (int64, error)
	Finalize(ctx context.Context, matchID, ownerID int64) error
	State(ctx context.Context, matchID int64) (*session.Snapshot, error)
	DisplayedPlaytime(ctx context.Context, matchID, playerID int64) (int, error)
}

// CommandType names a client command.
type CommandType string

const (
	CommandLock            CommandType = "lock"
	CommandUnlock          CommandType = "unlock"
	CommandUnlockAll       CommandType = "unlockAll"
	CommandRequestJoin     CommandType = "requestJoin"
	CommandListRequests    CommandType = "listRequests"
	CommandDecideJoin      CommandType = "decideJoin"
	CommandCollaborators   CommandType = "collaborators"
	CommandStartClock      CommandType = "startClock"
	CommandPauseClock      CommandType = "pauseClock"
	CommandResetClock      CommandType = "resetClock"
	CommandApplySettings   CommandType = "applySettings"
	CommandSetActivePlayer CommandType = "setActivePlayer"
	CommandSubmitAction    CommandType = "submitAction"
	CommandFinalize        CommandType = "finalize"
	CommandState           CommandType = "state"
	CommandPlaytime        CommandType = "playtime"
)

// Command is a client frame. UserID is only read by the HTTP command route;
// websocket frames act as the user the connection was opened for.
type Command struct {
	Type      CommandType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	UserID    int64           `json:"user_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ReplyType classifies a reply frame.
type ReplyType string

const (
	ReplyResult ReplyType = "result"
	ReplyError  ReplyType = "error"
	ReplyInfo   ReplyType = "info"
)

// Reply answers exactly one Command.
type Reply struct {
	Type      ReplyType   `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Command   CommandType `json:"command,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      any         `json:"data,omitempty"`
}

type requestJoinData struct {
	DisplayName string `json:"display_name"`
}

type decideJoinData struct {
	RequesterID int64 `json:"requester_id"`
	Accept      bool  `json:"accept"`
}

type activePlayerData struct {
	PlayerID int64 `json:"player_id"`
	Active   bool  `json:"active"`
}

type playtimeData struct {
	PlayerID int64 `json:"player_id"`
}

// Dispatcher executes commands against a Controller on behalf of a user.
type Dispatcher struct {
	ctrl Controller
}

func NewDispatcher(ctrl Controller) *Dispatcher {
	return &Dispatcher{ctrl: ctrl}
}

// Dispatch runs cmd for userID on matchID and always produces a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, matchID, userID int64, cmd Command) Reply {
	data, err := d.run(ctx, matchID, userID, cmd)
	if err != nil {
		// A request that was already withdrawn is not the owner's mistake.
		if cmd.Type == CommandDecideJoin && errors.Is(err, errclass.ErrNotFound) {
			return Reply{Type: ReplyInfo, RequestID: cmd.RequestID, Command: cmd.Type, Message: "Join request no longer pending"}
		}
		return errorReply(cmd, err, matchID, userID)
	}
	return Reply{Type: ReplyResult, RequestID: cmd.RequestID, Command: cmd.Type, Data: data}
}

func (d *Dispatcher) run(ctx context.Context, matchID, userID int64, cmd Command) (any, error) {
	switch cmd.Type {
	case CommandLock:
		return d.ctrl.Lock(ctx, matchID, userID)

	case CommandUnlock:
		newOwner, err := d.ctrl.Unlock(ctx, matchID, userID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"new_owner": newOwner}, nil

	case CommandUnlockAll:
		return map[string]int{"released": d.ctrl.UnlockAll(ctx, userID)}, nil

	case CommandRequestJoin:
		var in requestJoinData
		if len(cmd.Data) > 0 {
			if err := decode(cmd.Data, &in); err != nil {
				return nil, err
			}
		}
		outcome, err := d.ctrl.RequestJoin(ctx, matchID, userID, in.DisplayName)
		if err != nil {
			return nil, err
		}
		return map[string]string{"status": outcome.String()}, nil

	case CommandListRequests:
		reqs, err := d.ctrl.ListJoinRequests(ctx, matchID, userID)
		if err != nil {
			return nil, err
		}
		if reqs == nil {
			reqs = []ownership.JoinRequest{}
		}
		return reqs, nil

	case CommandDecideJoin:
		var in decideJoinData
		if err := decode(cmd.Data, &in); err != nil {
			return nil, err
		}
		if err := d.ctrl.DecideJoin(ctx, matchID, userID, in.RequesterID, in.Accept); err != nil {
			return nil, err
		}
		return map[string]any{"requester_id": in.RequesterID, "accepted": in.Accept}, nil

	case CommandCollaborators:
		return d.ctrl.Collaborators(ctx, matchID)

	case CommandStartClock:
		return d.ctrl.StartClock(ctx, matchID, userID)
	case CommandPauseClock:
		return d.ctrl.PauseClock(ctx, matchID, userID)
	case CommandResetClock:
		return d.ctrl.ResetClock(ctx, matchID, userID)

	case CommandApplySettings:
		var in clock.Settings
		if err := decode(cmd.Data, &in); err != nil {
			return nil, err
		}
		return d.ctrl.ApplySettings(ctx, matchID, userID, in)

	case CommandSetActivePlayer:
		var in activePlayerData
		if err := decode(cmd.Data, &in); err != nil {
			return nil, err
		}
		ids, err := d.ctrl.SetActivePlayer(ctx, matchID, userID, in.PlayerID, in.Active)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []int64{}
		}
		return map[string][]int64{"active_players": ids}, nil

	case CommandSubmitAction:
		var in session.ActionInput
		if err := decode(cmd.Data, &in); err != nil {
			return nil, err
		}
		id, err := d.ctrl.SubmitAction(ctx, matchID, userID, in)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"action_id": id}, nil

	case CommandFinalize:
		if err := d.ctrl.Finalize(ctx, matchID, userID); err != nil {
			return nil, err
		}
		return map[string]bool{"finalized": true}, nil

	case CommandState:
		return d.ctrl.State(ctx, matchID)

	case CommandPlaytime:
		var in playtimeData
		if err := decode(cmd.Data, &in); err != nil {
			return nil, err
		}
		secs, err := d.ctrl.DisplayedPlaytime(ctx, matchID, in.PlayerID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"player_id": in.PlayerID, "seconds": int64(secs)}, nil
	}
	return nil, errclass.ErrValidation.WithMessagef("unknown command %q", cmd.Type)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errclass.ErrValidation.WithMessage("command data is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errclass.ErrValidation.WithMessagef("invalid command data: %v", err)
	}
	return nil
}

func errorReply(cmd Command, err error, matchID, userID int64) Reply {
	le := errclass.Classify(err)
	if le == nil {
		log.Error().
			Err(err).
			Str("command", string(cmd.Type)).
			Int64("match_id", matchID).
			Int64("user_id", userID).
			Msg("command failed")
		return Reply{Type: ReplyError, RequestID: cmd.RequestID, Command: cmd.Type, Code: "E_INTERNAL", Message: "internal error"}
	}
	return Reply{Type: ReplyError, RequestID: cmd.RequestID, Command: cmd.Type, Code: le.Code, Message: le.Message}
}
