// Package state is the canonical client-side model: chat list, per-chat
// message lists, unread counters, typing indicators, presence, and the
// avatar cache. Every mutation, whether a push, a poll response, or an
// optimistic local edit, funnels through the entry points here, so the UI has one
// source of truth and concurrent sources can never corrupt each other.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
	"go.uber.org/zap"
)

// Store is the single mutable resource of the sync core.
type Store struct {
	mu     sync.RWMutex
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	apiBase string
	selfID  int64

	activeChat int64
	chats      []*Chat // recency of last message, descending
	chatIndex  map[int64]*Chat
	threads    map[int64]*thread
	unread     map[int64]int
	typing     map[int64]map[int64]typingEntry
	presence   map[int64]time.Time
	avatars    map[int64]string
}

// New creates an empty store. apiBase is used to derive avatar and
// attachment URLs for incoming payloads.
func New(b *bus.Bus, logger *zap.Logger, apiBase string) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		bus:       b,
		logger:    logger,
		now:       time.Now,
		apiBase:   apiBase,
		chatIndex: make(map[int64]*Chat),
		threads:   make(map[int64]*thread),
		unread:    make(map[int64]int),
		typing:    make(map[int64]map[int64]typingEntry),
		presence:  make(map[int64]time.Time),
		avatars:   make(map[int64]string),
	}
}

// SetSelf records the local user id, used to keep the user's own
// messages out of unread totals.
func (s *Store) SetSelf(userID int64) {
	s.mu.Lock()
	s.selfID = userID
	s.mu.Unlock()
}

// Self returns the local user id.
func (s *Store) Self() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID
}

// SetActiveChat marks a chat as the one the user is viewing and zeroes
// its unread counter. Switching chats does not cancel in-flight fetches
// for the previous chat; their results still merge correctly because
// the merge is id-based.
func (s *Store) SetActiveChat(chatID int64) {
	s.mu.Lock()
	s.activeChat = chatID
	changed := s.unread[chatID] != 0
	s.unread[chatID] = 0
	s.mu.Unlock()

	if changed {
		s.publish(bus.StateUnreadChanged, bus.UnreadChange{ChatID: chatID})
	}
}

// ActiveChat returns the currently viewed chat id, zero when none.
func (s *Store) ActiveChat() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeChat
}

// Unread returns the unread counter for a chat.
func (s *Store) Unread(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[chatID]
}

// Cursor returns the pagination cursor for a chat.
func (s *Store) Cursor(chatID int64) Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if th, ok := s.threads[chatID]; ok {
		return th.cursor
	}
	return Cursor{}
}

// InvalidateAvatars clears the avatar cache. Called on logout.
func (s *Store) InvalidateAvatars() {
	s.mu.Lock()
	s.avatars = make(map[int64]string)
	s.mu.Unlock()
}

// CacheAvatar records a resolved avatar URL for a user.
func (s *Store) CacheAvatar(userID int64, url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	s.avatars[userID] = url
	s.mu.Unlock()
}

// resolveAvatar returns the best-known avatar URL for a user: the cache
// wins, then a URL derived from userId+photo, then empty. Caller holds
// the write lock.
func (s *Store) resolveAvatar(userID int64, photo string) string {
	if url, ok := s.avatars[userID]; ok && url != "" {
		return url
	}
	if photo == "" {
		return ""
	}
	url := fmt.Sprintf("%s/avatars/%d/%s", s.apiBase, userID, photo)
	s.avatars[userID] = url
	return url
}

func (s *Store) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: s.now(), Payload: payload})
}
