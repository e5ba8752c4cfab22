package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the base structure for every push notification
type Envelope struct {
	ID        string          `json:"id"`
	MatchID   int64           `json:"match_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType represents the type of live match event
type EventType string

const (
	EventTypeClockState    EventType = "clockState"
	EventTypeClockAdvisory EventType = "clockAdvisory"
	EventTypeActivePlayers EventType = "activePlayers"
	EventTypeActionChanged EventType = "actionChanged"
	EventTypeJoinRequested EventType = "joinRequested"
	EventTypeJoinDecided   EventType = "joinDecided"
)

// New wraps payload in an Envelope stamped with at.
func New(matchID int64, eventType EventType, payload any, at time.Time) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		MatchID:   matchID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// ParsePayload parses event data into the appropriate payload struct
func ParsePayload(env *Envelope) (any, error) {
	var target any
	switch env.Type {
	case EventTypeClockState:
		target = &ClockStatePayload{}
	case EventTypeClockAdvisory:
		target = &ClockAdvisoryPayload{}
	case EventTypeActivePlayers:
		target = &ActivePlayersPayload{}
	case EventTypeActionChanged:
		target = &ActionChangedPayload{}
	case EventTypeJoinRequested:
		target = &JoinRequestedPayload{}
	case EventTypeJoinDecided:
		target = &JoinDecidedPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", env.Type, err)
	}
	return target, nil
}
