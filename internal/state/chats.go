package state

import (
	"sort"

	"github.com/tmarcondes/pulse/internal/bus"
)

// Chats returns the chat list ordered by recency of last message,
// newest first. The returned slice is a copy.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, *c)
	}
	return out
}

// Chat returns a copy of the chat with the given id.
func (s *Store) Chat(chatID int64) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chatIndex[chatID]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// ReplaceChats replaces the chat list wholesale from a full "chats"
// response. Locally resolved avatars take precedence over the payload's
// unresolved ones; threads and unread counters of surviving chats are
// kept, while per-chat state of chats absent from the response is
// dropped so a server-side delete cannot leave stale state behind.
func (s *Store) ReplaceChats(chats []*Chat) {
	s.mu.Lock()
	next := make([]*Chat, 0, len(chats))
	nextIndex := make(map[int64]*Chat, len(chats))
	for _, c := range chats {
		if prev, ok := s.chatIndex[c.ID]; ok {
			if c.Avatar == "" && prev.Avatar != "" {
				c.Avatar = prev.Avatar
			}
			if c.LastMessage == nil {
				c.LastMessage = prev.LastMessage
			}
		}
		for i := range c.Members {
			if c.Members[i].Avatar != "" {
				s.avatars[c.Members[i].UserID] = c.Members[i].Avatar
			}
		}
		next = append(next, c)
		nextIndex[c.ID] = c
	}
	s.chats = next
	s.chatIndex = nextIndex
	for chatID := range s.threads {
		if _, ok := nextIndex[chatID]; !ok {
			delete(s.threads, chatID)
		}
	}
	for chatID := range s.unread {
		if _, ok := nextIndex[chatID]; !ok {
			delete(s.unread, chatID)
		}
	}
	for chatID := range s.typing {
		if _, ok := nextIndex[chatID]; !ok {
			delete(s.typing, chatID)
		}
	}
	s.sortChatsLocked()
	s.mu.Unlock()

	s.publish(bus.StateChatsChanged, len(chats))
}

// UpsertChat creates or updates a single chat (the chat_update push
// path, and first-reference creation).
func (s *Store) UpsertChat(c *Chat) {
	s.mu.Lock()
	if prev, ok := s.chatIndex[c.ID]; ok {
		if c.Avatar == "" && prev.Avatar != "" {
			c.Avatar = prev.Avatar
		}
		if c.LastMessage == nil {
			c.LastMessage = prev.LastMessage
		}
		*prev = *c
	} else {
		cc := *c
		s.chats = append(s.chats, &cc)
		s.chatIndex[c.ID] = &cc
	}
	s.sortChatsLocked()
	s.mu.Unlock()

	s.publish(bus.StateChatsChanged, 1)
}

// DeleteChat removes a chat and all its local state. Chats are never
// destroyed any other way.
func (s *Store) DeleteChat(chatID int64) {
	s.mu.Lock()
	delete(s.chatIndex, chatID)
	delete(s.threads, chatID)
	delete(s.unread, chatID)
	delete(s.typing, chatID)
	for i, c := range s.chats {
		if c.ID == chatID {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			break
		}
	}
	if s.activeChat == chatID {
		s.activeChat = 0
	}
	s.mu.Unlock()

	s.publish(bus.StateChatsChanged, 1)
}

// ensureChatLocked returns the chat for id, creating a skeleton on
// first incoming reference. Caller holds the write lock.
func (s *Store) ensureChatLocked(chatID int64) *Chat {
	if c, ok := s.chatIndex[chatID]; ok {
		return c
	}
	c := &Chat{ID: chatID}
	s.chats = append(s.chats, c)
	s.chatIndex[chatID] = c
	return c
}

// sortChatsLocked recomputes chat list order: recency of last message
// descending, chats without messages last. Caller holds the write lock.
func (s *Store) sortChatsLocked() {
	sort.SliceStable(s.chats, func(i, j int) bool {
		a, b := s.chats[i].LastMessage, s.chats[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
}
