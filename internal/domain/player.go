package domain

import "time"

// GamePlayer is a persisted in-game entity keyed by its unique name.
// It exists independently of any user account; the poller creates one the
// first time a name shows up in the list response.
type GamePlayer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Home is all-or-nothing on the coordinates; the dimension is optional
	// on top of that.
	HomeX         *float64 `json:"home_x,omitempty"`
	HomeY         *float64 `json:"home_y,omitempty"`
	HomeZ         *float64 `json:"home_z,omitempty"`
	HomeDimension *string  `json:"home_dimension,omitempty"`

	LastSeen          *time.Time `json:"last_seen,omitempty"`
	LastSeenX         *float64   `json:"last_seen_x,omitempty"`
	LastSeenY         *float64   `json:"last_seen_y,omitempty"`
	LastSeenZ         *float64   `json:"last_seen_z,omitempty"`
	LastSeenDimension *string    `json:"last_seen_dimension,omitempty"`
}

// HasHome reports whether all three home coordinates are set.
func (p *GamePlayer) HasHome() bool {
	return p.HomeX != nil && p.HomeY != nil && p.HomeZ != nil
}

// SetHome sets all home coordinates at once.
func (p *GamePlayer) SetHome(x, y, z float64, dimension string) {
	p.HomeX, p.HomeY, p.HomeZ = &x, &y, &z
	if dimension != "" {
		p.HomeDimension = &dimension
	}
}

// User is a dashboard account. New registrations start unapproved and
// cannot log in until an admin flips is_approved. GameName is the in-game
// name the user claims; the poller links the account to the matching
// GamePlayer when that name is first observed.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsAdmin      bool       `json:"is_admin"`
	IsApproved   bool       `json:"is_approved"`
	GameName     string     `json:"game_name,omitempty"`
	GamePlayerID *int64     `json:"game_player_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}
