package state

import "time"

// Message content types.
const (
	TypeText    = "text"
	TypePhoto   = "photo"
	TypeVideo   = "video"
	TypeAudio   = "audio"
	TypeFile    = "file"
	TypeSticker = "sticker"
)

// DefaultPageSize is the message page size requested from the server.
const DefaultPageSize = 50

// TypingTTL is how long a stop-typing tombstone survives before it is
// garbage-collected, unless superseded by a new typing event.
const TypingTTL = 5 * time.Second

// Member is the canonical member shape. Raw payloads are normalized to
// this at the ingestion boundary; nothing downstream re-guesses field
// names.
type Member struct {
	UserID     int64
	Name       string
	Username   string
	Avatar     string
	LastActive time.Time
}

// Message is a chat message. A message with IsTemp set is an optimistic
// local placeholder awaiting server confirmation; it carries a
// client-generated TempID and no server ID yet.
type Message struct {
	ID            int64
	TempID        string
	IsTemp        bool
	ChatID        int64
	SenderID      int64
	Content       string
	Type          string
	AttachmentURL string
	SenderAvatar  string
	CreatedAt     time.Time
	ReplyToID     int64
	ReadBy        []int64
}

// ReadByContains reports whether userID already acknowledged the message.
func (m *Message) ReadByContains(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Chat is a conversation. Exactly one Chat exists per server-assigned id.
type Chat struct {
	ID            int64
	IsGroup       bool
	Title         string
	Members       []Member
	LastMessage   *Message
	Avatar        string
	Encrypted     bool
	EncryptionKey string
}

// Cursor is the per-chat pagination state, updated after every page
// fetch and used to request strictly older pages. Fetched stays false
// until the first page merge, so a thread seeded only by pushes is
// distinguishable from one whose history was actually requested.
type Cursor struct {
	HasMore         bool
	OldestFetchedID int64
	Fetched         bool
}

// thread holds a chat's message list and the flags carried on it.
type thread struct {
	msgs         []*Message
	cursor       Cursor
	hasModerator bool
}
