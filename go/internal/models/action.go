package models

// ActionType enumerates the recordable korfball actions.
type ActionType string

const (
	ActionTypeShot      ActionType = "SHOT"
	ActionTypeKorteKans ActionType = "KORTE_KANS"
	ActionTypeVrijworp  ActionType = "VRIJWORP"
	ActionTypeStrafworp ActionType = "STRAFWORP"
	ActionTypeInloper   ActionType = "INLOPER"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeShot, ActionTypeKorteKans, ActionTypeVrijworp, ActionTypeStrafworp, ActionTypeInloper:
		return true
	}
	return false
}

// Action is a single recorded event during a match.
type Action struct {
	ID         int64      `json:"id"`
	MatchID    int64      `json:"match_id"`
	PlayerID   *int64     `json:"player_id,omitempty"`
	IsOpponent bool       `json:"is_opponent"`
	UserID     int64      `json:"user_id"`
	Timestamp  int        `json:"timestamp"` // match clock second
	X          *float64   `json:"x,omitempty"`
	Y          *float64   `json:"y,omitempty"`
	Period     int        `json:"period"`
	Action     ActionType `json:"action"`
	Result     bool       `json:"result"`
}
