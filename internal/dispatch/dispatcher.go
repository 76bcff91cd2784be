// Package dispatch routes decoded inbound frames to the connection
// manager's control surface and the canonical state store. One frame in,
// one routing decision out; a bad frame is logged and dropped without
// affecting the stream.
package dispatch

import (
	"fmt"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/crypt"
	"github.com/tmarcondes/pulse/internal/state"
	"github.com/tmarcondes/pulse/internal/wire"
	"go.uber.org/zap"
)

// Transport is the control surface the dispatcher drives on the
// connection manager.
type Transport interface {
	SendPong(pingID string, ts int64)
	NotePong(pingID string)
	ConfirmAuthenticated()
	Reauthenticate()
	ForceReconnect()
}

// Dispatcher decodes raw frames and applies them.
type Dispatcher struct {
	transport Transport
	store     *state.Store
	bus       *bus.Bus
	logger    *zap.Logger
}

// New creates a dispatcher.
func New(t Transport, s *state.Store, b *bus.Bus, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{transport: t, store: s, bus: b, logger: logger}
}

// HandleFrame decodes and routes one inbound frame. Called from the
// connection read loop, so everything here must return promptly.
func (d *Dispatcher) HandleFrame(data []byte) {
	v, err := wire.Decode(data)
	if err != nil {
		d.logger.Warn("dropping inbound frame", zap.Error(err))
		return
	}

	switch f := v.(type) {
	case *wire.Heartbeat:
		// Server pings are answered before anything else touches state.
		if f.Type == wire.TypePing {
			d.transport.SendPong(f.PingID, f.Timestamp)
		} else {
			d.transport.NotePong(f.PingID)
		}

	case *wire.Connected:
		d.store.SetSelf(f.UserID)
		d.transport.ConfirmAuthenticated()

	case *wire.AuthRequired:
		d.transport.Reauthenticate()

	case *wire.ServerError:
		d.logger.Warn("server error",
			zap.String("message", f.Message),
			zap.Int("code", f.Code),
			zap.Bool("reconnect", f.Reconnect))
		d.bus.Publish(bus.Event{Kind: bus.ConnError, Timestamp: time.Now(),
			Payload: bus.ConnStatus{Reason: f.Message}})
		if f.Reconnect {
			d.transport.ForceReconnect()
		}

	case *wire.NewMessage:
		msg := f.Message.ToState()
		if msg.ChatID == 0 {
			msg.ChatID = f.ChatID
		}
		d.decrypt(msg)
		d.store.ApplyNewMessage(msg, f.Message.SenderPhoto)

	case *wire.MessageSent:
		d.store.ConfirmSent(f.TempID, f.MessageID)

	case *wire.MessageRead:
		d.store.ApplyRead(f.ChatID, f.MessageID, f.UserID)

	case *wire.MessageDeleted:
		d.store.DeleteMessage(f.ChatID, f.MessageID)

	case *wire.TypingIndicator:
		if f.End {
			d.store.ApplyTypingEnd(f.ChatID, f.UserID)
		} else {
			d.store.ApplyTyping(f.ChatID, f.UserID)
		}

	case *wire.UserStatus:
		d.store.ApplyPresence(f.UserID, f.SeenAt(time.Now()))

	case *wire.ChatUpdate:
		d.store.UpsertChat(f.Chat.ToState())

	case *wire.ChatList:
		chats := make([]*state.Chat, 0, len(f.Chats))
		for i := range f.Chats {
			chats = append(chats, f.Chats[i].ToState())
		}
		d.store.ReplaceChats(chats)

	case *wire.MessageBatch:
		batch := make([]*state.Message, 0, len(f.Messages))
		for i := range f.Messages {
			msg := f.Messages[i].ToState()
			if msg.ChatID == 0 {
				msg.ChatID = f.ChatID
			}
			d.decrypt(msg)
			batch = append(batch, msg)
		}
		d.store.MergeMessages(f.ChatID, batch, f.HasModeratorMessages)
		d.store.UpdateCursor(f.ChatID, len(f.Messages) >= state.DefaultPageSize)

	default:
		d.logger.Warn("no route for decoded frame", zap.String("frame", fmt.Sprintf("%T", v)))
	}
}

// decrypt restores plaintext for messages in encrypted chats. Content
// that fails to decode stays as received rather than being lost.
func (d *Dispatcher) decrypt(msg *state.Message) {
	chat, ok := d.store.Chat(msg.ChatID)
	if !ok || !chat.Encrypted || chat.EncryptionKey == "" {
		return
	}
	plain, err := crypt.Strip(chat.EncryptionKey, msg.Content)
	if err != nil {
		d.logger.Warn("message decryption failed",
			zap.Int64("chat_id", msg.ChatID), zap.Int64("message_id", msg.ID), zap.Error(err))
		return
	}
	msg.Content = plain
}
