package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmarcondes/pulse/internal/state"
)

// Server→client frame types.
const (
	TypeConnected          = "connected"
	TypeAuthRequired       = "auth_required"
	TypeError              = "error"
	TypeNewMessage         = "new_message"
	TypeMessageRead        = "message_read"
	TypeTypingIndicator    = "typing_indicator"
	TypeTypingIndicatorEnd = "typing_indicator_end"
	TypeUserStatus         = "user_status"
	TypeChatUpdate         = "chat_update"
	TypeChats              = "chats"
	TypeMessages           = "messages"
	TypeMessageSent        = "message_sent"
	TypeMessageDeleted     = "message_deleted"
)

// UnknownTypeError marks a frame whose type the client does not
// recognize. Such frames are logged and dropped; they never abort the
// stream.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown frame type %q", e.Type)
}

// Connected confirms a successful authentication handshake.
type Connected struct {
	UserID int64 `json:"userId"`
}

// AuthRequired asks the client to re-send its auth frame.
type AuthRequired struct{}

// Heartbeat is a server ping or pong.
type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	PingID    string `json:"ping_id"`
}

// ServerError reports a server-side failure, optionally directing the
// client to reconnect.
type ServerError struct {
	Message   string `json:"message"`
	Code      int    `json:"code"`
	Reconnect bool   `json:"reconnect"`
}

// NewMessage pushes a freshly created message.
type NewMessage struct {
	ChatID  int64   `json:"chatId"`
	Message Message `json:"message"`
}

// MessageRead pushes a read receipt.
type MessageRead struct {
	MessageID int64 `json:"messageId"`
	ChatID    int64 `json:"chatId"`
	UserID    int64 `json:"userId"`
}

// TypingIndicator pushes a typing start (End=false) or stop (End=true).
type TypingIndicator struct {
	ChatID int64 `json:"chatId"`
	UserID int64 `json:"userId"`
	End    bool  `json:"-"`
}

// UserStatus pushes a presence change.
type UserStatus struct {
	UserID   int64  `json:"user_id"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

// SeenAt resolves the pushed presence to a last-seen time. An "online"
// status with no explicit timestamp means seen now.
func (u *UserStatus) SeenAt(now time.Time) time.Time {
	if u.LastSeen > 0 {
		return time.UnixMilli(u.LastSeen)
	}
	if u.Status == "online" {
		return now
	}
	return time.Time{}
}

// ChatUpdate pushes a single changed chat.
type ChatUpdate struct {
	Chat Chat `json:"chat"`
}

// ChatList answers get_chats.
type ChatList struct {
	Chats []Chat `json:"chats"`
}

// MessageBatch answers get_messages.
type MessageBatch struct {
	ChatID               int64     `json:"chat_id"`
	Messages             []Message `json:"messages"`
	HasModeratorMessages bool      `json:"has_moderator_messages"`
}

// MessageSent acknowledges a send_message, correlating the optimistic
// tempId with the server-assigned id.
type MessageSent struct {
	TempID    string `json:"tempId"`
	MessageID int64  `json:"messageId"`
}

// MessageDeleted pushes a message removal.
type MessageDeleted struct {
	MessageID int64 `json:"messageId"`
	ChatID    int64 `json:"chatId"`
}

// Decode parses one inbound frame into its typed value. Malformed JSON
// and unknown types return errors that the dispatcher logs and drops;
// neither affects decoding of subsequent frames.
func Decode(data []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	switch env.Type {
	case TypeConnected:
		return decodeAs[Connected](data)
	case TypeAuthRequired:
		return decodeAs[AuthRequired](data)
	case TypePing, TypePong:
		return decodeAs[Heartbeat](data)
	case TypeError:
		return decodeAs[ServerError](data)
	case TypeNewMessage:
		return decodeAs[NewMessage](data)
	case TypeMessageRead:
		return decodeAs[MessageRead](data)
	case TypeTypingIndicator:
		return decodeAs[TypingIndicator](data)
	case TypeTypingIndicatorEnd:
		v, err := decodeAs[TypingIndicator](data)
		if err != nil {
			return nil, err
		}
		v.End = true
		return v, nil
	case TypeUserStatus:
		return decodeAs[UserStatus](data)
	case TypeChatUpdate:
		return decodeAs[ChatUpdate](data)
	case TypeChats:
		return decodeAs[ChatList](data)
	case TypeMessages:
		return decodeAs[MessageBatch](data)
	case TypeMessageSent:
		return decodeAs[MessageSent](data)
	case TypeMessageDeleted:
		return decodeAs[MessageDeleted](data)
	default:
		return nil, &UnknownTypeError{Type: env.Type}
	}
}

func decodeAs[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("malformed %T frame: %w", v, err)
	}
	return &v, nil
}

// Message is the server's message payload shape.
type Message struct {
	ID          int64   `json:"id"`
	ChatID      int64   `json:"chatId"`
	SenderID    int64   `json:"senderId"`
	SenderPhoto string  `json:"senderPhoto"`
	Content     string  `json:"content"`
	Type        string  `json:"type"`
	CreatedAt   int64   `json:"createdAt"`
	ReplyToID   int64   `json:"replyToId"`
	ReadBy      []int64 `json:"readBy"`
}

// ToState converts a wire message to the canonical model.
func (m *Message) ToState() *state.Message {
	msgType := m.Type
	if msgType == "" {
		msgType = state.TypeText
	}
	return &state.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      msgType,
		CreatedAt: time.UnixMilli(m.CreatedAt),
		ReplyToID: m.ReplyToID,
		ReadBy:    m.ReadBy,
	}
}

// Chat is the server's chat payload shape.
type Chat struct {
	ID            int64       `json:"id"`
	IsGroup       bool        `json:"isGroup"`
	Title         string      `json:"title"`
	Members       []RawMember `json:"members"`
	LastMessage   *Message    `json:"lastMessage"`
	Avatar        string      `json:"avatar"`
	Encrypted     bool        `json:"encrypted"`
	EncryptionKey string      `json:"encryptionKey"`
}

// ToState converts a wire chat to the canonical model, normalizing
// every member at this boundary.
func (c *Chat) ToState() *state.Chat {
	sc := &state.Chat{
		ID:            c.ID,
		IsGroup:       c.IsGroup,
		Title:         c.Title,
		Avatar:        c.Avatar,
		Encrypted:     c.Encrypted,
		EncryptionKey: c.EncryptionKey,
	}
	for i := range c.Members {
		sc.Members = append(sc.Members, c.Members[i].Normalize())
	}
	if c.LastMessage != nil {
		sc.LastMessage = c.LastMessage.ToState()
	}
	return sc
}
