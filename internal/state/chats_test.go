package state

import (
	"testing"
	"time"
)

func TestChatOrderingMonotonic(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	base := time.Now()

	events := []struct {
		chatID int64
		id     int64
	}{
		{1, 101}, {2, 102}, {1, 103}, {3, 104}, {2, 105},
	}
	for i, ev := range events {
		s.ApplyNewMessage(msg(ev.id, ev.chatID, 9, "m", base.Add(time.Duration(i)*time.Second)), "")
		chats := s.Chats()
		if chats[0].ID != ev.chatID {
			t.Fatalf("after message %d: chat %d at index 0, want %d", ev.id, chats[0].ID, ev.chatID)
		}
	}
}

func TestSendMovesChatToFront(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	base := time.Now()
	s.ApplyNewMessage(msg(101, 1, 9, "a", base), "")
	s.ApplyNewMessage(msg(102, 2, 9, "b", base.Add(time.Second)), "")

	s.AppendLocalEcho(1, "t1", "hi", 0)

	chats := s.Chats()
	if chats[0].ID != 1 {
		t.Errorf("chat %d at index 0 after optimistic send, want 1", chats[0].ID)
	}
}

func TestReplaceChatsPreservesResolvedAvatar(t *testing.T) {
	s := testStore()
	s.ReplaceChats([]*Chat{{ID: 1, Title: "alpha", Avatar: "https://cdn.example.net/a.png"}})

	// Full refresh comes back without the resolved avatar.
	s.ReplaceChats([]*Chat{{ID: 1, Title: "alpha renamed"}, {ID: 2, Title: "beta"}})

	chat, ok := s.Chat(1)
	if !ok {
		t.Fatal("chat 1 missing after replace")
	}
	if chat.Avatar != "https://cdn.example.net/a.png" {
		t.Errorf("avatar = %q, locally resolved avatar must take precedence", chat.Avatar)
	}
	if chat.Title != "alpha renamed" {
		t.Errorf("title = %q, payload fields must still apply", chat.Title)
	}
	if len(s.Chats()) != 2 {
		t.Errorf("got %d chats, want 2 (wholesale replace)", len(s.Chats()))
	}
}

func TestReplaceChatsIsWholesale(t *testing.T) {
	s := testStore()
	s.ReplaceChats([]*Chat{{ID: 1}, {ID: 2}})
	s.ReplaceChats([]*Chat{{ID: 2}})

	if len(s.Chats()) != 1 {
		t.Fatalf("got %d chats, want 1", len(s.Chats()))
	}
	if _, ok := s.Chat(1); ok {
		t.Error("chat 1 survived a wholesale replace that omitted it")
	}
}

func TestReplaceChatsDropsStateOfOmittedChats(t *testing.T) {
	s := testStore()
	now := time.Now()
	s.ApplyNewMessage(msg(101, 1, 9, "keep", now), "")
	s.ApplyNewMessage(msg(102, 2, 9, "drop", now), "")
	s.ApplyTyping(2, 9)

	s.ReplaceChats([]*Chat{{ID: 1, Title: "alpha"}})

	if got := s.MessagesFor(1); len(got) != 1 {
		t.Errorf("surviving chat lost its thread: %v", ids(got))
	}
	if s.MessagesFor(2) != nil {
		t.Error("thread of omitted chat survived the replace")
	}
	if s.Unread(2) != 0 {
		t.Error("unread counter of omitted chat survived the replace")
	}
	if users := s.TypingUsers(2); len(users) != 0 {
		t.Errorf("typing state of omitted chat survived: %v", users)
	}
}

func TestChatCreatedOnFirstIncomingReference(t *testing.T) {
	s := testStore()
	s.ApplyNewMessage(msg(101, 42, 9, "hello", time.Now()), "")

	if _, ok := s.Chat(42); !ok {
		t.Error("chat not created on first incoming reference")
	}
}

func TestUpsertChatKeepsSingleEntryPerID(t *testing.T) {
	s := testStore()
	s.UpsertChat(&Chat{ID: 1, Title: "first"})
	s.UpsertChat(&Chat{ID: 1, Title: "second"})

	chats := s.Chats()
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want exactly one per id", len(chats))
	}
	if chats[0].Title != "second" {
		t.Errorf("title = %q, want second", chats[0].Title)
	}
}

func TestDeleteChat(t *testing.T) {
	s := testStore()
	s.ApplyNewMessage(msg(101, 1, 9, "a", time.Now()), "")
	s.SetActiveChat(1)

	s.DeleteChat(1)

	if _, ok := s.Chat(1); ok {
		t.Error("chat still present after delete")
	}
	if s.ActiveChat() != 0 {
		t.Error("deleted chat still active")
	}
	if s.MessagesFor(1) != nil {
		t.Error("thread survived chat deletion")
	}
}
