// Package wire defines the transport frame shapes exchanged with the
// messaging server and decodes inbound frames into typed values. Field
// names follow the server contract verbatim, including its mix of
// camelCase and snake_case keys.
package wire

import "encoding/json"

// Client→server frame types.
const (
	TypeAuth        = "auth"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSendMessage = "send_message"
	TypeTypingStart = "typing_start"
	TypeTypingEnd   = "typing_end"
	TypeReadReceipt = "read_receipt"
	TypeGetChats    = "get_chats"
	TypeGetMessages = "get_messages"
)

// DeviceTag is embedded by every outbound frame so the connection
// manager can stamp the originating device id before transmission.
type DeviceTag struct {
	DeviceID string `json:"device_id,omitempty"`
}

// TagDevice sets the device id on the frame.
func (t *DeviceTag) TagDevice(id string) { t.DeviceID = id }

// Outbound is any client→server frame.
type Outbound interface {
	TagDevice(id string)
}

// Encode marshals an outbound frame.
func Encode(f Outbound) ([]byte, error) {
	return json.Marshal(f)
}

// Auth is the authentication handshake sent immediately on transport open.
type Auth struct {
	Type       string `json:"type"`
	SessionKey string `json:"session_key"`
	DeviceTag
}

// NewAuth builds an auth frame.
func NewAuth(sessionKey string) *Auth {
	return &Auth{Type: TypeAuth, SessionKey: sessionKey}
}

// Ping is a client heartbeat probe; Pong answers a server ping with the
// same ping id.
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	PingID    string `json:"ping_id"`
	DeviceTag
}

// NewPing builds a heartbeat ping.
func NewPing(pingID string, ts int64) *Ping {
	return &Ping{Type: TypePing, Timestamp: ts, PingID: pingID}
}

// NewPong builds a pong reply carrying the server's ping id.
func NewPong(pingID string, ts int64) *Ping {
	return &Ping{Type: TypePong, Timestamp: ts, PingID: pingID}
}

// SendMessage submits a new message, correlated to its optimistic local
// echo by tempId.
type SendMessage struct {
	Type      string `json:"type"`
	ChatID    int64  `json:"chatId"`
	Text      string `json:"text"`
	ReplyToID int64  `json:"replyToId,omitempty"`
	TempID    string `json:"tempId"`
	DeviceTag
}

// NewSendMessage builds a send_message frame.
func NewSendMessage(chatID int64, text string, replyToID int64, tempID string) *SendMessage {
	return &SendMessage{Type: TypeSendMessage, ChatID: chatID, Text: text, ReplyToID: replyToID, TempID: tempID}
}

// Typing signals typing start or end in a chat.
type Typing struct {
	Type   string `json:"type"`
	ChatID int64  `json:"chatId"`
	DeviceTag
}

// NewTyping builds a typing_start or typing_end frame.
func NewTyping(chatID int64, start bool) *Typing {
	t := TypeTypingEnd
	if start {
		t = TypeTypingStart
	}
	return &Typing{Type: t, ChatID: chatID}
}

// ReadReceipt acknowledges a message as read.
type ReadReceipt struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	ChatID    int64  `json:"chatId"`
	DeviceTag
}

// NewReadReceipt builds a read_receipt frame.
func NewReadReceipt(chatID, messageID int64) *ReadReceipt {
	return &ReadReceipt{Type: TypeReadReceipt, MessageID: messageID, ChatID: chatID}
}

// GetChats requests the full chat list.
type GetChats struct {
	Type string `json:"type"`
	DeviceTag
}

// NewGetChats builds a get_chats frame.
func NewGetChats() *GetChats {
	return &GetChats{Type: TypeGetChats}
}

// GetMessages requests a page of messages, strictly older than BeforeID
// when set.
type GetMessages struct {
	Type         string `json:"type"`
	ChatID       int64  `json:"chat_id"`
	Limit        int    `json:"limit"`
	BeforeID     int64  `json:"before_id,omitempty"`
	ForceRefresh bool   `json:"force_refresh,omitempty"`
	DeviceTag
}

// NewGetMessages builds a get_messages frame.
func NewGetMessages(chatID int64, limit int, beforeID int64, forceRefresh bool) *GetMessages {
	return &GetMessages{Type: TypeGetMessages, ChatID: chatID, Limit: limit, BeforeID: beforeID, ForceRefresh: forceRefresh}
}
