package model

import (
	"time"

	"github.com/iliyamo/ridesplit/internal/geo"
)

const (
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
)

// User mirrors the users table.
//
// LocationKnown is false until the first accepted location report, so a
// user who never reported is not mistaken for one standing at (0, 0).
type User struct {
	ID               string    `json:"user_id"`
	PasswordHash     string    `json:"-"`
	Name             string    `json:"name"`
	University       string    `json:"university"`
	Balance          int       `json:"balance"`
	Latitude         float64   `json:"current_latitude"`
	Longitude        float64   `json:"current_longitude"`
	LocationKnown    bool      `json:"location_known"`
	IsLocationActive bool      `json:"is_location_active"`
	Role             string    `json:"role"`
	CreatedAt        time.Time `json:"created_at"`
}

// Location returns the last reported position and whether there is one.
func (u User) Location() (geo.Point, bool) {
	return geo.Point{Lat: u.Latitude, Lon: u.Longitude}, u.LocationKnown
}

// RefreshToken models a row of refresh_tokens. Only the SHA-256 hash of
// the raw token is stored.
type RefreshToken struct {
	ID        uint64
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
