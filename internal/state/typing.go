package state

import (
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
)

// typingEntry is either live (user is typing) or a tombstone left by an
// explicit stop-typing event, swept TypingTTL after it was set unless a
// newer typing event supersedes it. Absence of an entry means "not
// typing".
type typingEntry struct {
	stopped bool
	at      time.Time
}

// ApplyTyping records that a user started typing in a chat.
func (s *Store) ApplyTyping(chatID, userID int64) {
	s.mu.Lock()
	s.sweepTypingLocked()
	byUser, ok := s.typing[chatID]
	if !ok {
		byUser = make(map[int64]typingEntry)
		s.typing[chatID] = byUser
	}
	byUser[userID] = typingEntry{at: s.now()}
	s.mu.Unlock()

	s.publish(bus.StateTypingChanged, chatID)
}

// ApplyTypingEnd tombstones a typing indicator. The tombstone is
// garbage-collected TypingTTL later if not superseded.
func (s *Store) ApplyTypingEnd(chatID, userID int64) {
	s.mu.Lock()
	s.sweepTypingLocked()
	if byUser, ok := s.typing[chatID]; ok {
		if _, exists := byUser[userID]; exists {
			byUser[userID] = typingEntry{stopped: true, at: s.now()}
		}
	}
	s.mu.Unlock()

	s.publish(bus.StateTypingChanged, chatID)
}

// TypingUsers returns the users currently typing in a chat.
func (s *Store) TypingUsers(chatID int64) []int64 {
	s.mu.Lock()
	s.sweepTypingLocked()
	var users []int64
	for userID, e := range s.typing[chatID] {
		if !e.stopped {
			users = append(users, userID)
		}
	}
	s.mu.Unlock()
	return users
}

// sweepTypingLocked drops tombstones older than TypingTTL. It runs
// lazily on every typing read or mutation. Caller holds the write lock.
func (s *Store) sweepTypingLocked() {
	cutoff := s.now().Add(-TypingTTL)
	for chatID, byUser := range s.typing {
		for userID, e := range byUser {
			if e.stopped && e.at.Before(cutoff) {
				delete(byUser, userID)
			}
		}
		if len(byUser) == 0 {
			delete(s.typing, chatID)
		}
	}
}
