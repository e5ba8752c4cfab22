package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/mcdev12/courtside/go/internal/live/clock"
	"github.com/mcdev12/courtside/go/internal/live/events"
	"github.com/mcdev12/courtside/go/internal/live/fanout"
	"github.com/mcdev12/courtside/go/internal/live/ownership"
	"github.com/mcdev12/courtside/go/internal/live/playtime"
	"github.com/mcdev12/courtside/go/internal/models"
	"github.com/rs/zerolog/log"
)

const unknownUserName = "another user"

// Config holds controller tunables.
type Config struct {
	Defaults           clock.Settings
	Limits             clock.Limits
	TickInterval       time.Duration
	CheckpointInterval time.Duration
}

// DefaultConfig returns a two halves of 25 minutes setup with 30 second checkpoints.
func DefaultConfig() Config {
	return Config{
		Defaults:           clock.Settings{PeriodMinutes: 25, TotalPeriods: 2},
		Limits:             clock.DefaultLimits(),
		TickInterval:       time.Second,
		CheckpointInterval: 30 * time.Second,
	}
}

type openMatch struct {
	teamID int64
	roster map[int64]struct{}
}

// Controller orchestrates ownership, clock and playtime for live matches
// against inbound commands and the persistence store.
type Controller struct {
	store     Store
	hub       *fanout.Hub
	publisher Publisher
	clock     clockwork.Clock
	config    Config

	registry *ownership.Registry
	engine   *clock.Engine
	ledger   *playtime.Ledger
	ticker   *clock.Ticker

	mu      sync.Mutex
	open    map[int64]*openMatch
	baseCtx context.Context
}

// NewController wires a controller. publisher may be nil.
func NewController(store Store, hub *fanout.Hub, publisher Publisher, clk clockwork.Clock, cfg Config) *Controller {
	ledger := playtime.NewLedger()
	c := &Controller{
		store:     store,
		hub:       hub,
		publisher: publisher,
		clock:     clk,
		config:    cfg,
		registry:  ownership.NewRegistry(clk),
		engine:    clock.NewEngine(clk, ledger),
		ledger:    ledger,
		open:      make(map[int64]*openMatch),
		baseCtx:   context.Background(),
	}
	c.ticker = clock.NewTicker(clk, cfg.TickInterval, c.onTick)
	return c
}

// Run drives periodic checkpoints until ctx ends, then stops every clock
// ticker and writes a final checkpoint.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()

	checkpointer := playtime.NewCheckpointer(c.clock, c.config.CheckpointInterval, func(ctx context.Context) {
		if err := c.CheckpointAll(ctx); err != nil {
			log.Warn().Err(err).Msg("periodic checkpoint incomplete")
		}
	})
	checkpointer.Start(ctx)

	c.ticker.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.CheckpointAll(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final checkpoint incomplete")
	}
	log.Info().Msg("session controller stopped")
}

// ensureOpen loads matchID into the in-memory registries on first access.
func (c *Controller) ensureOpen(ctx context.Context, matchID int64) (*openMatch, error) {
	c.mu.Lock()
	om, ok := c.open[matchID]
	c.mu.Unlock()
	if ok {
		return om, nil
	}

	match, err := c.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match %d: %w", matchID, err)
	}
	baseline, err := c.store.GetPlaytime(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load playtime for match %d: %w", matchID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if om, ok := c.open[matchID]; ok {
		return om, nil
	}

	c.registry.Track(matchID, match.IsFinalized)
	c.engine.Open(matchID, c.settingsFor(match), clock.Restore{
		Elapsed:   match.TimeRegisteredSeconds,
		Period:    match.CurrentPeriod,
		Finalized: match.IsFinalized,
	})
	c.ledger.Load(matchID, baseline)

	om = &openMatch{teamID: match.TeamID}
	c.open[matchID] = om

	log.Info().
		Int64("match_id", matchID).
		Bool("finalized", match.IsFinalized).
		Int("baseline_players", len(baseline)).
		Msg("live session opened")
	return om, nil
}

func (c *Controller) settingsFor(match *models.Match) clock.Settings {
	s := clock.Settings{PeriodMinutes: match.PeriodMinutes, TotalPeriods: match.TotalPeriods}
	if c.config.Limits.Validate(s) != nil {
		return c.config.Defaults
	}
	return s
}

// rosterContains reports whether playerID plays for the match's team.
func (c *Controller) rosterContains(ctx context.Context, matchID int64, om *openMatch, playerID int64) (bool, error) {
	c.mu.Lock()
	roster := om.roster
	c.mu.Unlock()

	if roster == nil {
		players, err := c.store.ListPlayersForTeam(ctx, om.teamID)
		if err != nil {
			return false, fmt.Errorf("list players for match %d: %w", matchID, err)
		}
		roster = make(map[int64]struct{}, len(players))
		for _, p := range players {
			roster[p.ID] = struct{}{}
		}
		c.mu.Lock()
		om.roster = roster
		c.mu.Unlock()
	}
	_, ok := roster[playerID]
	return ok, nil
}

func (c *Controller) userName(ctx context.Context, userID int64) string {
	user, err := c.store.GetUser(ctx, userID)
	if err != nil || user == nil || user.Username == "" {
		if err != nil && !errors.Is(err, errclass.ErrNotFound) {
			log.Warn().Err(err).Int64("user_id", userID).Msg("failed to resolve user name")
		}
		return unknownUserName
	}
	return user.Username
}

// requireEditor gates commands behind owner or collaborator access on a live match.
func (c *Controller) requireEditor(ctx context.Context, matchID, userID int64) error {
	if c.registry.IsFinalized(matchID) {
		return errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	if c.registry.IsCollaborator(matchID, userID) {
		return nil
	}
	if owner, _, ok := c.registry.Owner(matchID); ok {
		return errclass.ErrConflict.WithMessagef("Match is locked by %s", c.userName(ctx, owner))
	}
	return errclass.ErrConflict.WithMessage("lock the match before editing")
}

func (c *Controller) requireOwner(ctx context.Context, matchID, userID int64) error {
	if c.registry.IsFinalized(matchID) {
		return errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	if c.registry.IsOwner(matchID, userID) {
		return nil
	}
	if owner, _, ok := c.registry.Owner(matchID); ok {
		return errclass.ErrConflict.WithMessagef("only the owner (%s) can do this", c.userName(ctx, owner))
	}
	return errclass.ErrConflict.WithMessage("only the owner can do this")
}

// emit pushes a notification to topic and mirrors it to the publisher.
func (c *Controller) emit(ctx context.Context, topic fanout.Topic, matchID int64, eventType events.EventType, payload any) {
	env, err := events.New(matchID, eventType, payload, c.clock.Now())
	if err != nil {
		log.Error().Err(err).Int64("match_id", matchID).Msg("failed to build event")
		return
	}
	c.hub.Notify(topic, env)

	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, env); err != nil {
		log.Warn().
			Err(err).
			Int64("match_id", matchID).
			Str("event_type", string(eventType)).
			Msg("failed to relay event")
	}
}

func (c *Controller) clockPayload(matchID int64, st clock.State) events.ClockStatePayload {
	p := events.ClockStatePayload{
		Running:       st.Running,
		Elapsed:       st.Elapsed,
		Remaining:     st.Remaining,
		Period:        st.Period,
		PeriodMinutes: st.PeriodMinutes,
		TotalPeriods:  st.TotalPeriods,
		Finalized:     st.Finalized,
	}
	if owner, _, ok := c.registry.Owner(matchID); ok {
		p.OwnerID = &owner
	}
	return p
}

// notifyClock pushes the clock state as it is now, not as a caller last saw it.
func (c *Controller) notifyClock(ctx context.Context, matchID int64) {
	st, err := c.engine.State(matchID)
	if err != nil {
		return
	}
	c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeClockState, c.clockPayload(matchID, st))
}

func (c *Controller) notifyActivePlayers(ctx context.Context, matchID int64) {
	ids := c.engine.ActivePlayers(matchID)
	if ids == nil {
		ids = []int64{}
	}
	c.emit(ctx, fanout.MatchTopic(matchID), matchID, events.EventTypeActivePlayers, events.ActivePlayersPayload{PlayerIDs: ids})
}

func (c *Controller) tickContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}
