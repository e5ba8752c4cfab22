package models

// Player represents a rostered player of a team.
type Player struct {
	ID        int64  `json:"id"`
	TeamID    int64  `json:"team_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Number    *int   `json:"number,omitempty"`
}

// FullName returns the player's display name.
func (p Player) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
