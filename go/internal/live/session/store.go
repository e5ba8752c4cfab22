package session

import (
	"context"

	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/models"
)

// Store defines what the controller needs from persistence
type Store interface {
	GetMatch(ctx context.Context, matchID int64) (*models.Match, error)
	UpdateMatch(ctx context.Context, matchID int64, upd models.MatchUpdate) error
	GetPlaytime(ctx context.Context, matchID int64) ([]models.PlayerPlaytime, error)
	SetPlaytime(ctx context.Context, matchID, playerID int64, seconds int) error
	ListPlayersForTeam(ctx context.Context, teamID int64) ([]models.Player, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	CreateAction(ctx context.Context, action models.Action) (int64, error)
}

// Publisher mirrors push notifications to an external event stream
type Publisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}
