package models

import "time"

// MatchType defines the kind of fixture a match belongs to.
type MatchType string

const (
	MatchTypeNormal     MatchType = "NORMAL"
	MatchTypeFriendly   MatchType = "FRIENDLY"
	MatchTypeTournament MatchType = "TOURNAMENT"
)

// Match represents a persisted match row.
type Match struct {
	ID                    int64      `json:"id"`
	Date                  time.Time  `json:"date"`
	TeamID                int64      `json:"team_id"`
	OpponentName          string     `json:"opponent_name"`
	Location              string     `json:"location"`
	MatchType             MatchType  `json:"match_type"`
	TimeRegisteredSeconds int        `json:"time_registered_s"`
	CurrentPeriod         int        `json:"current_period"`
	PeriodMinutes         int        `json:"period_minutes"`
	TotalPeriods          int        `json:"total_periods"`
	IsFinalized           bool       `json:"is_finalized"`
	LockedByUserID        *int64     `json:"locked_by_user_id,omitempty"`
	LockedAt              *time.Time `json:"locked_at,omitempty"`
}

// LockUpdate sets both lock columns. A nil UserID clears the lock.
type LockUpdate struct {
	UserID *int64
	At     *time.Time
}

// MatchUpdate is a partial update of a match row. Nil fields are left untouched.
type MatchUpdate struct {
	Lock                  *LockUpdate
	IsFinalized           *bool
	CurrentPeriod         *int
	PeriodMinutes         *int
	TotalPeriods          *int
	TimeRegisteredSeconds *int
}

// IsEmpty reports whether the update would write nothing.
func (u MatchUpdate) IsEmpty() bool {
	return u.Lock == nil && u.IsFinalized == nil && u.CurrentPeriod == nil &&
		u.PeriodMinutes == nil && u.TotalPeriods == nil && u.TimeRegisteredSeconds == nil
}

// PlayerPlaytime is a persisted playtime row for one player in one match.
type PlayerPlaytime struct {
	PlayerID   int64 `json:"player_id"`
	TimePlayed int   `json:"time_played"`
}
