package state

import (
	"testing"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
	"go.uber.org/zap"
)

func testStore() *Store {
	return New(bus.New(), zap.NewNop(), "https://api.example.net")
}

func msg(id, chatID, senderID int64, body string, at time.Time) *Message {
	return &Message{ID: id, ChatID: chatID, SenderID: senderID, Content: body, Type: TypeText, CreatedAt: at}
}

func ids(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMergeIdempotent(t *testing.T) {
	s := testStore()
	now := time.Now()

	batch := []*Message{
		msg(102, 1, 7, "two", now),
		msg(101, 1, 7, "one", now.Add(-time.Minute)),
	}
	s.MergeMessages(1, batch, true)
	once := s.MessagesFor(1)

	s.MergeMessages(1, batch, true)
	twice := s.MessagesFor(1)

	if len(once) != 2 || len(twice) != 2 {
		t.Fatalf("got %d then %d messages, want 2 and 2", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Errorf("order changed after re-applying batch: %v vs %v", ids(once), ids(twice))
		}
	}
	if !s.HasModeratorMessages(1) {
		t.Error("hasModeratorMessages flag not preserved")
	}
}

func TestMergeSortsAscendingByID(t *testing.T) {
	s := testStore()
	now := time.Now()

	// Arrival order deliberately scrambled.
	s.MergeMessages(1, []*Message{msg(105, 1, 7, "e", now)}, false)
	s.MergeMessages(1, []*Message{msg(101, 1, 7, "a", now), msg(103, 1, 7, "c", now)}, false)
	s.MergeMessages(1, []*Message{msg(104, 1, 7, "d", now), msg(102, 1, 7, "b", now)}, false)

	got := ids(s.MessagesFor(1))
	want := []int64{101, 102, 103, 104, 105}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("message order = %v, want %v", got, want)
		}
	}
}

func TestMergeUpdatesCursor(t *testing.T) {
	s := testStore()
	now := time.Now()
	s.MergeMessages(1, []*Message{msg(120, 1, 7, "x", now), msg(110, 1, 7, "y", now)}, false)
	s.UpdateCursor(1, true)

	cur := s.Cursor(1)
	if cur.OldestFetchedID != 110 {
		t.Errorf("OldestFetchedID = %d, want 110", cur.OldestFetchedID)
	}
	if !cur.HasMore {
		t.Error("HasMore = false, want true")
	}
	if !cur.Fetched {
		t.Error("Fetched = false after a page merge, want true")
	}
}

func TestPushDoesNotMarkHistoryFetched(t *testing.T) {
	s := testStore()
	s.ApplyNewMessage(msg(500, 7, 9, "ping", time.Now()), "")

	if cur := s.Cursor(7); cur.Fetched {
		t.Error("Fetched = true for a push-only thread, want false")
	}
}

func TestTempRealReconciliation(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	now := time.Now()
	s.MergeMessages(1, []*Message{msg(101, 1, 9, "one", now), msg(102, 1, 9, "two", now)}, false)

	s.AppendLocalEcho(1, "t1", "hi", 0)

	msgs := s.MessagesFor(1)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	tempCount := 0
	tempIdx := -1
	for i, m := range msgs {
		if m.IsTemp {
			tempCount++
			tempIdx = i
		}
	}
	if tempCount != 1 {
		t.Fatalf("got %d temp entries, want exactly 1", tempCount)
	}

	s.ConfirmSent("t1", 103)

	msgs = s.MessagesFor(1)
	if len(msgs) != 3 {
		t.Fatalf("after confirm: got %d messages, want 3", len(msgs))
	}
	for _, m := range msgs {
		if m.IsTemp || m.TempID == "t1" {
			t.Errorf("temp entry survived confirmation: %+v", m)
		}
	}
	if msgs[tempIdx].ID != 103 {
		t.Errorf("confirmed message at index %d has id %d, want 103 (same relative position)", tempIdx, msgs[tempIdx].ID)
	}
}

func TestConfirmSentOutOfOrderAcksResort(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	now := time.Now()
	s.MergeMessages(1, []*Message{msg(101, 1, 9, "one", now), msg(102, 1, 9, "two", now)}, false)

	s.AppendLocalEcho(1, "t1", "first", 0)
	s.AppendLocalEcho(1, "t2", "second", 0)

	// Acks arrive in the reverse of enqueue order.
	s.ConfirmSent("t2", 104)
	s.ConfirmSent("t1", 103)

	got := ids(s.MessagesFor(1))
	want := []int64{101, 102, 103, 104}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want ascending %v", got, want)
		}
	}
}

func TestConfirmSentPreservesReplyTo(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	s.MergeMessages(1, []*Message{msg(101, 1, 9, "one", time.Now())}, false)

	s.AppendLocalEcho(1, "t1", "reply", 101)
	s.ConfirmSent("t1", 102)

	msgs := s.MessagesFor(1)
	if msgs[len(msgs)-1].ReplyToID != 101 {
		t.Errorf("ReplyToID = %d, want 101 preserved through confirmation", msgs[len(msgs)-1].ReplyToID)
	}
}

func TestConfirmSentDropsTempWhenPushWonRace(t *testing.T) {
	s := testStore()
	s.SetSelf(7)

	s.AppendLocalEcho(1, "t1", "hi", 0)
	// Push for the confirmed message arrives before the ack.
	s.ApplyNewMessage(msg(103, 1, 7, "hi", time.Now()), "")
	s.ConfirmSent("t1", 103)

	msgs := s.MessagesFor(1)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (no duplicate after race)", len(msgs))
	}
	if msgs[0].ID != 103 || msgs[0].IsTemp {
		t.Errorf("survivor = %+v, want confirmed id 103", msgs[0])
	}
}

func TestTempMessagePersistsWithoutAck(t *testing.T) {
	s := testStore()
	s.SetSelf(7)

	s.AppendLocalEcho(1, "t1", "hi", 0)

	// No acknowledgement ever arrives; the echo stays visible and the
	// unread counter stays untouched.
	if got := len(s.MessagesFor(1)); got != 1 {
		t.Fatalf("got %d messages, want 1", got)
	}
	if got := s.Unread(1); got != 0 {
		t.Errorf("unread = %d, want 0 for local echo", got)
	}
}

func TestUnreadAccounting(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	s.SetActiveChat(2)
	now := time.Now()

	// N inbound from other users into an inactive chat.
	s.ApplyNewMessage(msg(101, 1, 9, "a", now), "")
	s.ApplyNewMessage(msg(102, 1, 9, "b", now), "")
	s.ApplyNewMessage(msg(103, 1, 10, "c", now), "")
	if got := s.Unread(1); got != 3 {
		t.Errorf("unread = %d, want 3", got)
	}

	// From the local user: never increments, marked read immediately.
	s.ApplyNewMessage(msg(104, 1, 7, "mine", now), "")
	if got := s.Unread(1); got != 3 {
		t.Errorf("unread after own message = %d, want 3", got)
	}
	msgs := s.MessagesFor(1)
	last := msgs[len(msgs)-1]
	if !last.ReadByContains(7) {
		t.Error("own message not marked read immediately")
	}

	// Activating the chat resets to zero.
	s.SetActiveChat(1)
	if got := s.Unread(1); got != 0 {
		t.Errorf("unread after activate = %d, want 0", got)
	}

	// Inbound into the active chat never increments.
	s.ApplyNewMessage(msg(105, 1, 9, "d", now), "")
	if got := s.Unread(1); got != 0 {
		t.Errorf("unread for active chat = %d, want 0", got)
	}
}

func TestApplyReadIdempotent(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	s.MergeMessages(1, []*Message{msg(101, 1, 7, "a", time.Now())}, false)

	s.ApplyRead(1, 101, 9)
	s.ApplyRead(1, 101, 9)

	msgs := s.MessagesFor(1)
	count := 0
	for _, id := range msgs[0].ReadBy {
		if id == 9 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("user 9 appears %d times in readBy, want 1", count)
	}
}

func TestApplyReadByLocalUserZeroesActiveChatUnread(t *testing.T) {
	s := testStore()
	s.SetSelf(7)
	s.ApplyNewMessage(msg(101, 1, 9, "a", time.Now()), "")
	if s.Unread(1) != 1 {
		t.Fatal("setup: expected 1 unread")
	}
	s.SetActiveChat(1) // resets; receive another while viewing chat 2
	s.SetActiveChat(2)
	s.ApplyNewMessage(msg(102, 1, 9, "b", time.Now()), "")
	s.SetActiveChat(1)

	s.ApplyNewMessage(msg(103, 2, 9, "c", time.Now()), "")
	s.SetActiveChat(2)
	s.ApplyNewMessage(msg(104, 2, 9, "d", time.Now()), "")
	s.ApplyRead(2, 104, 7)
	if got := s.Unread(2); got != 0 {
		t.Errorf("unread = %d, want 0 after local read in active chat", got)
	}
}

func TestDeleteMessageRecomputesLastByTimestamp(t *testing.T) {
	s := testStore()
	base := time.Now()

	// Higher id but OLDER timestamp: deletion must pick by timestamp.
	s.MergeMessages(1, []*Message{
		msg(101, 1, 9, "old", base.Add(-2*time.Minute)),
		msg(102, 1, 9, "newest by time", base),
		msg(103, 1, 9, "newer id, older time", base.Add(-time.Minute)),
	}, false)

	s.DeleteMessage(1, 103) // delete the current lastMessage (highest id)

	chat, ok := s.Chat(1)
	if !ok || chat.LastMessage == nil {
		t.Fatal("chat or lastMessage missing")
	}
	if chat.LastMessage.ID != 102 {
		t.Errorf("lastMessage = %d, want 102 (greatest timestamp)", chat.LastMessage.ID)
	}
	if got := len(s.MessagesFor(1)); got != 2 {
		t.Errorf("got %d messages, want 2", got)
	}
}

func TestMergeAfterChatSwitchStillApplies(t *testing.T) {
	s := testStore()
	s.SetActiveChat(1)
	s.SetActiveChat(2) // switch away; a stale fetch for chat 1 now resolves

	s.MergeMessages(1, []*Message{msg(101, 1, 9, "late", time.Now())}, false)

	if got := len(s.MessagesFor(1)); got != 1 {
		t.Errorf("stale fetch result dropped: got %d messages, want 1", got)
	}
}
