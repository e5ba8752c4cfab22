package clock

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/courtside/go/internal/errclass"
	"github.com/rs/zerolog/log"
)

const (
	AdvisoryHalfEnded  = "Half ended. Ready for next half."
	AdvisoryMatchEnded = "Match time ended."
)

// Settings bound the period structure of a match.
type Settings struct {
	PeriodMinutes int `json:"period_minutes" yaml:"period_minutes"`
	TotalPeriods  int `json:"total_periods" yaml:"total_periods"`
}

// PeriodSeconds is the length of one period.
func (s Settings) PeriodSeconds() int {
	return s.PeriodMinutes * 60
}

// Limits caps accepted settings.
type Limits struct {
	MaxPeriodMinutes int `yaml:"max_period_minutes"`
	MaxTotalPeriods  int `yaml:"max_total_periods"`
}

// DefaultLimits returns the bounds applied when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxPeriodMinutes: 90, MaxTotalPeriods: 8}
}

// Validate checks s against l.
func (l Limits) Validate(s Settings) error {
	if s.PeriodMinutes < 1 || s.PeriodMinutes > l.MaxPeriodMinutes {
		return errclass.ErrValidation.WithMessagef("period minutes must be between 1 and %d", l.MaxPeriodMinutes)
	}
	if s.TotalPeriods < 1 || s.TotalPeriods > l.MaxTotalPeriods {
		return errclass.ErrValidation.WithMessagef("total periods must be between 1 and %d", l.MaxTotalPeriods)
	}
	return nil
}

// Restore seeds a clock from persisted match fields.
type Restore struct {
	Elapsed   int
	Period    int
	Finalized bool
}

// State is a snapshot of a match clock.
type State struct {
	Running       bool `json:"running"`
	Elapsed       int  `json:"elapsed"`
	Remaining     int  `json:"remaining"`
	Period        int  `json:"period"`
	PeriodMinutes int  `json:"period_minutes"`
	TotalPeriods  int  `json:"total_periods"`
	Finalized     bool `json:"finalized"`
}

// TickResult reports what a tick or advance did.
type TickResult struct {
	Seconds  int
	Advisory string
	State    State
}

// Stopped reports whether the tick brought the clock to a halt.
func (r TickResult) Stopped() bool {
	return r.Seconds > 0 && !r.State.Running
}

// Accruer is credited with active player seconds on every tick.
type Accruer interface {
	Credit(matchID int64, playerIDs []int64, seconds int)
}

type matchClock struct {
	settings  Settings
	elapsed   int
	remaining int
	period    int
	running   bool
	finalized bool
	lastTick  time.Time
	active    map[int64]struct{}
}

func (c *matchClock) state() State {
	return State{
		Running:       c.running,
		Elapsed:       c.elapsed,
		Remaining:     c.remaining,
		Period:        c.period,
		PeriodMinutes: c.settings.PeriodMinutes,
		TotalPeriods:  c.settings.TotalPeriods,
		Finalized:     c.finalized,
	}
}

func (c *matchClock) activeIDs() []int64 {
	ids := make([]int64, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Engine owns the clock state and active player set of every open match.
type Engine struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	accruer Accruer
	clocks  map[int64]*matchClock
}

// NewEngine creates an engine crediting accruer on every tick.
func NewEngine(clock clockwork.Clock, accruer Accruer) *Engine {
	return &Engine{
		clock:   clock,
		accruer: accruer,
		clocks:  make(map[int64]*matchClock),
	}
}

// Open creates the clock for matchID if it does not exist yet and returns its state.
func (e *Engine) Open(matchID int64, settings Settings, restore Restore) State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.clocks[matchID]; ok {
		return c.state()
	}

	periodLen := settings.PeriodSeconds()
	period := min(max(restore.Period, 1), settings.TotalPeriods)
	remaining := periodLen
	switch {
	case restore.Elapsed >= periodLen*settings.TotalPeriods:
		remaining = 0
	case restore.Elapsed > 0 && periodLen > 0:
		remaining = periodLen - restore.Elapsed%periodLen
	}

	c := &matchClock{
		settings:  settings,
		elapsed:   max(restore.Elapsed, 0),
		remaining: remaining,
		period:    period,
		finalized: restore.Finalized,
		active:    make(map[int64]struct{}),
	}
	e.clocks[matchID] = c

	log.Debug().
		Int64("match_id", matchID).
		Int("elapsed", c.elapsed).
		Int("period", c.period).
		Int("remaining", c.remaining).
		Msg("match clock opened")
	return c.state()
}

// Close drops the clock for matchID.
func (e *Engine) Close(matchID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.clocks, matchID)
}

func (e *Engine) get(matchID int64) (*matchClock, error) {
	c, ok := e.clocks[matchID]
	if !ok {
		return nil, errclass.ErrNotFound.WithMessagef("no open clock for match %d", matchID)
	}
	return c, nil
}

func (e *Engine) mutable(matchID int64) (*matchClock, error) {
	c, err := e.get(matchID)
	if err != nil {
		return nil, err
	}
	if c.finalized {
		return nil, errclass.ErrInvalidState.WithMessagef("match %d is finalized", matchID)
	}
	return c, nil
}

// State returns the current clock snapshot.
func (e *Engine) State(matchID int64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.get(matchID)
	if err != nil {
		return State{}, err
	}
	return c.state(), nil
}

// Start moves the clock to Running.
func (e *Engine) Start(matchID int64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return State{}, err
	}
	if c.remaining <= 0 {
		return c.state(), errclass.ErrInvalidState.WithMessage("no time remaining in this period")
	}
	if !c.running {
		c.running = true
		c.lastTick = e.clock.Now()
	}
	return c.state(), nil
}

// Pause moves the clock to Stopped.
func (e *Engine) Pause(matchID int64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return State{}, err
	}
	c.running = false
	return c.state(), nil
}

// Reset stops the clock and rewinds it to the start of the first period.
func (e *Engine) Reset(matchID int64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return State{}, err
	}
	c.running = false
	c.period = 1
	c.elapsed = 0
	c.remaining = c.settings.PeriodSeconds()
	return c.state(), nil
}

// ApplySettings replaces the period structure. Only allowed while stopped.
func (e *Engine) ApplySettings(matchID int64, settings Settings) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return State{}, err
	}
	if c.running {
		return c.state(), errclass.ErrInvalidState.WithMessage("pause the clock before changing settings")
	}
	c.settings = settings
	c.period = 1
	c.elapsed = 0
	c.remaining = settings.PeriodSeconds()
	return c.state(), nil
}

// Tick applies exactly one clock second.
func (e *Engine) Tick(matchID int64) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return TickResult{}, err
	}
	res := TickResult{}
	if c.running {
		res.Advisory = e.stepLocked(matchID, c)
		res.Seconds = 1
		c.lastTick = c.lastTick.Add(time.Second)
	}
	res.State = c.state()
	return res, nil
}

// Advance applies every whole second elapsed since the last tick.
func (e *Engine) Advance(matchID int64) (TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return TickResult{}, err
	}

	res := TickResult{}
	if c.running {
		whole := int(e.clock.Since(c.lastTick) / time.Second)
		for i := 0; i < whole && c.running; i++ {
			if advisory := e.stepLocked(matchID, c); advisory != "" {
				res.Advisory = advisory
			}
			res.Seconds++
		}
		c.lastTick = c.lastTick.Add(time.Duration(whole) * time.Second)
	}
	res.State = c.state()
	return res, nil
}

func (e *Engine) stepLocked(matchID int64, c *matchClock) string {
	c.remaining--
	c.elapsed++
	if len(c.active) > 0 && e.accruer != nil {
		e.accruer.Credit(matchID, c.activeIDs(), 1)
	}
	if c.remaining > 0 {
		return ""
	}

	c.running = false
	if c.period < c.settings.TotalPeriods {
		c.period++
		c.remaining = c.settings.PeriodSeconds()
		log.Info().Int64("match_id", matchID).Int("period", c.period).Msg("period ended")
		return AdvisoryHalfEnded
	}
	log.Info().Int64("match_id", matchID).Msg("match time ended")
	return AdvisoryMatchEnded
}

// SetActive adds or removes a player from the set accruing playtime.
func (e *Engine) SetActive(matchID, playerID int64, active bool) ([]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.mutable(matchID)
	if err != nil {
		return nil, err
	}
	if active {
		c.active[playerID] = struct{}{}
	} else {
		delete(c.active, playerID)
	}
	return c.activeIDs(), nil
}

// ActivePlayers returns the players currently accruing time, ascending.
func (e *Engine) ActivePlayers(matchID int64) []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.clocks[matchID]
	if !ok {
		return nil
	}
	return c.activeIDs()
}

// Finalize stops the clock for good and clears the active set.
func (e *Engine) Finalize(matchID int64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.get(matchID)
	if err != nil {
		return State{}, err
	}
	c.running = false
	c.finalized = true
	c.active = make(map[int64]struct{})
	return c.state(), nil
}
