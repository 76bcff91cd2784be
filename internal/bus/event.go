package bus

import "time"

// Topic kinds. Subscribers filter by prefix, e.g. "conn." receives every
// connection lifecycle event.
const (
	// Connection lifecycle.
	ConnConnecting    = "conn.connecting"
	ConnAuthenticated = "conn.authenticated"
	ConnConnected     = "conn.connected"
	ConnDisconnected  = "conn.disconnected"
	ConnDegraded      = "conn.degraded"
	ConnError         = "conn.error"

	// State store mutations.
	StateChatsChanged    = "state.chats_changed"
	StateMessageUpserted = "state.message_upserted"
	StateMessageDeleted  = "state.message_deleted"
	StateUnreadChanged   = "state.unread_changed"
	StateTypingChanged   = "state.typing_changed"
	StatePresenceChanged = "state.presence_changed"

	// Session.
	SessionAuthExpired = "session.auth_expired"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a message within a chat. Payload for message
// upsert/delete events.
type MessageRef struct {
	ChatID    int64
	MessageID int64
	TempID    string
}

// UnreadChange is the payload for unread counter events.
type UnreadChange struct {
	ChatID int64
	Count  int
}

// ConnStatus is the payload for connection lifecycle events.
type ConnStatus struct {
	State   string
	Attempt int
	Reason  string
}
