package wire

import (
	"time"

	"github.com/tmarcondes/pulse/internal/state"
)

// RawMember is a member payload as servers actually send it: the user
// id may arrive as "user_id", "id", or nested under "user". Normalize
// resolves it exactly once, at this boundary; downstream code never
// re-guesses field names.
type RawMember struct {
	UserID int64 `json:"user_id"`
	ID     int64 `json:"id"`
	User   *struct {
		ID int64 `json:"id"`
	} `json:"user"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Avatar     string `json:"avatar"`
	LastActive int64  `json:"lastActive"`
}

// Normalize produces the single canonical Member shape.
func (r *RawMember) Normalize() state.Member {
	id := r.UserID
	if id == 0 {
		id = r.ID
	}
	if id == 0 && r.User != nil {
		id = r.User.ID
	}
	m := state.Member{
		UserID:   id,
		Name:     r.Name,
		Username: r.Username,
		Avatar:   r.Avatar,
	}
	if r.LastActive > 0 {
		m.LastActive = time.UnixMilli(r.LastActive)
	}
	return m
}
