package state

import (
	"fmt"
	"sort"

	"github.com/tmarcondes/pulse/internal/bus"
	"go.uber.org/zap"
)

// MessagesFor returns a copy of a chat's message list, always sorted
// ascending by server id with optimistic entries at their insertion
// positions.
func (s *Store) MessagesFor(chatID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	th, ok := s.threads[chatID]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(th.msgs))
	for _, m := range th.msgs {
		out = append(out, *m)
	}
	return out
}

// HasModeratorMessages reports the flag carried on a chat's message list.
func (s *Store) HasModeratorMessages(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if th, ok := s.threads[chatID]; ok {
		return th.hasModerator
	}
	return false
}

// MergeMessages merges an incoming batch into a chat's message list:
// entries whose id already exists are dropped, the rest appended, and
// the whole list re-sorted ascending by id. Applying the same batch
// twice yields the same result as applying it once, so stale fetches
// that resolve after a chat switch stay harmless.
func (s *Store) MergeMessages(chatID int64, batch []*Message, hasModerator bool) {
	s.mu.Lock()
	s.ensureChatLocked(chatID)
	th := s.ensureThreadLocked(chatID)

	seen := make(map[int64]bool, len(th.msgs))
	for _, m := range th.msgs {
		if m.ID != 0 {
			seen[m.ID] = true
		}
	}
	added := 0
	for _, m := range batch {
		if m.ID != 0 && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		mm := *m
		mm.ChatID = chatID
		mm.SenderAvatar = s.resolveAvatar(mm.SenderID, "")
		mm.AttachmentURL = s.attachmentURL(&mm)
		th.msgs = append(th.msgs, &mm)
		added++
	}
	th.hasModerator = hasModerator
	th.cursor.Fetched = true
	sortMessages(th.msgs)
	s.refreshCursorLocked(th)
	s.refreshLastMessageLocked(chatID, th)
	s.sortChatsLocked()
	s.mu.Unlock()

	if added > 0 {
		s.publish(bus.StateMessageUpserted, bus.MessageRef{ChatID: chatID})
	}
}

// UpdateCursor records whether strictly older pages remain for a chat.
func (s *Store) UpdateCursor(chatID int64, hasMore bool) {
	s.mu.Lock()
	th := s.ensureThreadLocked(chatID)
	th.cursor.HasMore = hasMore
	th.cursor.Fetched = true
	s.mu.Unlock()
}

// ApplyNewMessage ingests a server-pushed message: sender avatar is
// resolved (cache, then derived from userId+photo, else empty), the
// type-specific attachment URL derived, the message merged, the chat
// moved to the head of the list, and the unread counter incremented,
// unless the chat is active or the sender is the local user, in which
// case the message is marked read immediately instead.
func (s *Store) ApplyNewMessage(msg *Message, senderPhoto string) {
	s.mu.Lock()
	s.ensureChatLocked(msg.ChatID)
	th := s.ensureThreadLocked(msg.ChatID)

	if msg.ID != 0 && th.containsID(msg.ID) {
		s.mu.Unlock()
		return
	}

	mm := *msg
	mm.SenderAvatar = s.resolveAvatar(mm.SenderID, senderPhoto)
	mm.AttachmentURL = s.attachmentURL(&mm)

	fromSelf := s.selfID != 0 && mm.SenderID == s.selfID
	active := s.activeChat == mm.ChatID

	unreadChanged := false
	if active || fromSelf {
		if s.selfID != 0 && !mm.ReadByContains(s.selfID) {
			mm.ReadBy = append(mm.ReadBy, s.selfID)
		}
	} else {
		s.unread[mm.ChatID]++
		unreadChanged = true
	}

	th.msgs = append(th.msgs, &mm)
	sortMessages(th.msgs)
	s.refreshCursorLocked(th)

	chat := s.chatIndex[mm.ChatID]
	chat.LastMessage = &mm
	s.moveToFrontLocked(mm.ChatID)
	count := s.unread[mm.ChatID]
	s.mu.Unlock()

	s.publish(bus.StateMessageUpserted, bus.MessageRef{ChatID: mm.ChatID, MessageID: mm.ID})
	if unreadChanged {
		s.publish(bus.StateUnreadChanged, bus.UnreadChange{ChatID: mm.ChatID, Count: count})
	}
}

// AppendLocalEcho inserts an optimistic message for a just-sent command
// so the UI reflects the user's intent with zero perceived latency. The
// chat moves to the head of the list before any server acknowledgement.
// The echo never counts toward unread totals, and it is never rolled
// back if no acknowledgement arrives.
func (s *Store) AppendLocalEcho(chatID int64, tempID, content string, replyToID int64) Message {
	s.mu.Lock()
	s.ensureChatLocked(chatID)
	th := s.ensureThreadLocked(chatID)

	mm := &Message{
		TempID:    tempID,
		IsTemp:    true,
		ChatID:    chatID,
		SenderID:  s.selfID,
		Content:   content,
		Type:      TypeText,
		CreatedAt: s.now(),
		ReplyToID: replyToID,
	}
	th.msgs = append(th.msgs, mm)
	sortMessages(th.msgs)

	chat := s.chatIndex[chatID]
	chat.LastMessage = mm
	s.moveToFrontLocked(chatID)
	s.mu.Unlock()

	s.publish(bus.StateMessageUpserted, bus.MessageRef{ChatID: chatID, TempID: tempID})
	return *mm
}

// ConfirmSent correlates a message_sent acknowledgement: the temp entry
// becomes the confirmed message, keeping the locally-set reply reference
// the acknowledgement omits, and the list is re-sorted so acks arriving
// out of enqueue order still present ascending by id. If the real id
// already arrived through a push, the temp entry is dropped instead.
func (s *Store) ConfirmSent(tempID string, messageID int64) {
	s.mu.Lock()
	var ref *bus.MessageRef
	for chatID, th := range s.threads {
		idx := -1
		for i, m := range th.msgs {
			if m.IsTemp && m.TempID == tempID {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		if th.containsID(messageID) {
			th.msgs = append(th.msgs[:idx], th.msgs[idx+1:]...)
		} else {
			m := th.msgs[idx]
			m.ID = messageID
			m.IsTemp = false
			m.TempID = ""
			sortMessages(th.msgs)
		}
		s.refreshCursorLocked(th)
		s.refreshLastMessageLocked(chatID, th)
		ref = &bus.MessageRef{ChatID: chatID, MessageID: messageID, TempID: tempID}
		break
	}
	s.mu.Unlock()

	if ref != nil {
		s.publish(bus.StateMessageUpserted, *ref)
	} else {
		s.logger.Warn("message_sent for unknown temp id", zap.String("temp_id", tempID))
	}
}

// ApplyRead records a read receipt: the acknowledging user joins the
// message's readBy set (re-adding is a no-op). When the local user read
// a message in the active chat, that chat's unread counter is zeroed.
func (s *Store) ApplyRead(chatID, messageID, userID int64) {
	s.mu.Lock()
	th, ok := s.threads[chatID]
	changed := false
	if ok {
		for _, m := range th.msgs {
			if m.ID == messageID && !m.ReadByContains(userID) {
				m.ReadBy = append(m.ReadBy, userID)
				changed = true
				break
			}
		}
	}
	unreadChanged := false
	if userID == s.selfID && chatID == s.activeChat && s.unread[chatID] != 0 {
		s.unread[chatID] = 0
		unreadChanged = true
	}
	s.mu.Unlock()

	if changed {
		s.publish(bus.StateMessageUpserted, bus.MessageRef{ChatID: chatID, MessageID: messageID})
	}
	if unreadChanged {
		s.publish(bus.StateUnreadChanged, bus.UnreadChange{ChatID: chatID})
	}
}

// DeleteMessage removes a message from its chat. If it was the chat's
// last message, the new last message is the remaining one with the
// greatest timestamp, not the greatest id.
func (s *Store) DeleteMessage(chatID, messageID int64) {
	s.mu.Lock()
	th, ok := s.threads[chatID]
	if !ok {
		s.mu.Unlock()
		return
	}
	removed := false
	for i, m := range th.msgs {
		if m.ID == messageID {
			th.msgs = append(th.msgs[:i], th.msgs[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		chat := s.chatIndex[chatID]
		if chat != nil && chat.LastMessage != nil && chat.LastMessage.ID == messageID {
			chat.LastMessage = latestByTimestamp(th.msgs)
			s.sortChatsLocked()
		}
		s.refreshCursorLocked(th)
	}
	s.mu.Unlock()

	if removed {
		s.publish(bus.StateMessageDeleted, bus.MessageRef{ChatID: chatID, MessageID: messageID})
	}
}

// MarkAllRead zeroes a chat's unread counter (explicit read-all).
func (s *Store) MarkAllRead(chatID int64) {
	s.mu.Lock()
	changed := s.unread[chatID] != 0
	s.unread[chatID] = 0
	s.mu.Unlock()
	if changed {
		s.publish(bus.StateUnreadChanged, bus.UnreadChange{ChatID: chatID})
	}
}

func (s *Store) ensureThreadLocked(chatID int64) *thread {
	th, ok := s.threads[chatID]
	if !ok {
		th = &thread{}
		s.threads[chatID] = th
	}
	return th
}

func (th *thread) containsID(id int64) bool {
	for _, m := range th.msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}

// sortMessages orders ascending by server id. Optimistic entries have
// no id yet; they sort after every confirmed message in arrival order,
// which matches their insertion position as the newest entries.
func sortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		switch {
		case a.IsTemp && b.IsTemp:
			return false
		case a.IsTemp:
			return false
		case b.IsTemp:
			return true
		default:
			return a.ID < b.ID
		}
	})
}

// refreshCursorLocked recomputes the oldest fetched id for pagination.
func (s *Store) refreshCursorLocked(th *thread) {
	oldest := int64(0)
	for _, m := range th.msgs {
		if m.ID == 0 {
			continue
		}
		if oldest == 0 || m.ID < oldest {
			oldest = m.ID
		}
	}
	th.cursor.OldestFetchedID = oldest
}

// refreshLastMessageLocked points the chat at its newest message when a
// merge brought in something newer than the current last message.
func (s *Store) refreshLastMessageLocked(chatID int64, th *thread) {
	chat, ok := s.chatIndex[chatID]
	if !ok || len(th.msgs) == 0 {
		return
	}
	newest := th.msgs[len(th.msgs)-1]
	if chat.LastMessage == nil || newest.ID > chat.LastMessage.ID || newest.IsTemp {
		chat.LastMessage = newest
	}
}

// moveToFrontLocked places a chat at index 0. Sends and receives must
// always surface their chat at the head of the list.
func (s *Store) moveToFrontLocked(chatID int64) {
	for i, c := range s.chats {
		if c.ID == chatID {
			if i > 0 {
				copy(s.chats[1:i+1], s.chats[:i])
				s.chats[0] = c
			}
			return
		}
	}
}

func latestByTimestamp(msgs []*Message) *Message {
	var best *Message
	for _, m := range msgs {
		if best == nil || m.CreatedAt.After(best.CreatedAt) {
			best = m
		}
	}
	return best
}

// attachmentURL derives the media URL for non-text messages. Caller
// holds the lock (reads apiBase only).
func (s *Store) attachmentURL(m *Message) string {
	if m.AttachmentURL != "" || m.Content == "" {
		return m.AttachmentURL
	}
	var dir string
	switch m.Type {
	case TypePhoto:
		dir = "photos"
	case TypeVideo:
		dir = "videos"
	case TypeAudio:
		dir = "audio"
	case TypeFile:
		dir = "docs"
	case TypeSticker:
		dir = "stickers"
	default:
		return ""
	}
	return fmt.Sprintf("%s/files/%s/%s", s.apiBase, dir, m.Content)
}
