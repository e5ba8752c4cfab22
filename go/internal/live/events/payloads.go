package events

// Event payload types pushed to clients observing a live match

// ClockStatePayload is the payload for a ClockState event
type ClockStatePayload struct {
	Running       bool   `json:"running"`
	Elapsed       int    `json:"elapsed"`
	Remaining     int    `json:"remaining"`
	Period        int    `json:"period"`
	PeriodMinutes int    `json:"period_minutes"`
	TotalPeriods  int    `json:"total_periods"`
	Finalized     bool   `json:"finalized"`
	OwnerID       *int64 `json:"owner_id"`
}

// ClockAdvisoryPayload is the payload for a ClockAdvisory event
type ClockAdvisoryPayload struct {
	Message string `json:"message"`
}

// ActivePlayersPayload is the payload for an ActivePlayers event
type ActivePlayersPayload struct {
	PlayerIDs []int64 `json:"player_ids"`
}

// ActionChangedPayload is the payload for an ActionChanged event
type ActionChangedPayload struct {
	MatchID  int64 `json:"match_id"`
	ActionID int64 `json:"action_id,omitempty"`
}

// JoinRequestedPayload is the payload for a JoinRequested event
type JoinRequestedPayload struct {
	RequesterID   int64  `json:"requester_id"`
	RequesterName string `json:"requester_name"`
}

// JoinDecidedPayload is the payload for a JoinDecided event
type JoinDecidedPayload struct {
	MatchID   int64  `json:"match_id"`
	Approved  bool   `json:"approved"`
	OwnerName string `json:"owner_name"`
}
