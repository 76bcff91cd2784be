package state

import (
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
)

// ApplyPresence records a user's last-seen time from a presence push.
// Presence is push-only: a user with no entry is unknown, not offline.
func (s *Store) ApplyPresence(userID int64, lastSeen time.Time) {
	s.mu.Lock()
	s.presence[userID] = lastSeen
	s.mu.Unlock()

	s.publish(bus.StatePresenceChanged, userID)
}

// Presence returns a user's last-seen time. ok is false when nothing is
// known about the user.
func (s *Store) Presence(userID int64) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.presence[userID]
	return t, ok
}
