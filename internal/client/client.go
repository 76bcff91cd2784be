// Package client is the surface the UI programs against. It composes
// the connection manager, the canonical store, the REST client, and the
// fallback poller behind one facade: reads come from the store, actions
// go out over the realtime transport when one exists and over REST for
// the operations that only exist there. It renders nothing.
package client

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/conn"
	"github.com/tmarcondes/pulse/internal/crypt"
	"github.com/tmarcondes/pulse/internal/rest"
	"github.com/tmarcondes/pulse/internal/state"
	"github.com/tmarcondes/pulse/internal/wire"
	"go.uber.org/zap"
)

// Transport is the realtime side of the facade, implemented by
// conn.Manager.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Enqueue(f wire.Outbound)
	State() conn.State
}

// RestAPI is the HTTP side, implemented by rest.Client.
type RestAPI interface {
	SearchUsers(ctx context.Context, query string) ([]rest.User, error)
	DirectChat(ctx context.Context, userID int64) (*state.Chat, error)
	CreateGroupChat(ctx context.Context, title string, memberIDs []int64) (*state.Chat, error)
	UploadAttachment(ctx context.Context, chatID int64, filename string, r io.Reader) (*state.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	DeleteChat(ctx context.Context, chatID int64) error
}

// Visibility is the poller's foreground hint, implemented by
// poll.Poller.
type Visibility interface {
	SetVisible(visible bool)
}

// Client is the UI facade.
type Client struct {
	store     *state.Store
	transport Transport
	api       RestAPI
	poller    Visibility
	bus       *bus.Bus
	logger    *zap.Logger

	newTempID func() string
}

// New composes a facade over the sync core.
func New(s *state.Store, t Transport, api RestAPI, p Visibility, b *bus.Bus, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:     s,
		transport: t,
		api:       api,
		poller:    p,
		bus:       b,
		logger:    logger,
		newTempID: uuid.NewString,
	}
}

// Connect opens the realtime transport.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Subscribe exposes the event bus for UI observation.
func (c *Client) Subscribe(namespace string, bufSize int) (<-chan bus.Event, func()) {
	return c.bus.Subscribe(namespace, bufSize)
}

// Chats returns the chat list, most recent activity first.
func (c *Client) Chats() []state.Chat { return c.store.Chats() }

// MessagesFor returns a chat's messages in presentation order.
func (c *Client) MessagesFor(chatID int64) []state.Message { return c.store.MessagesFor(chatID) }

// ActiveChat returns the chat currently in the foreground.
func (c *Client) ActiveChat() int64 { return c.store.ActiveChat() }

// Unread returns a chat's unread count.
func (c *Client) Unread(chatID int64) int { return c.store.Unread(chatID) }

// TypingUsers returns who is currently typing in a chat.
func (c *Client) TypingUsers(chatID int64) []int64 { return c.store.TypingUsers(chatID) }

// Presence returns a user's last-seen time, if known.
func (c *Client) Presence(userID int64) (time.Time, bool) { return c.store.Presence(userID) }

// ConnectionState reports the realtime transport state.
func (c *Client) ConnectionState() conn.State { return c.transport.State() }

// SendMessage appends an optimistic local echo and enqueues the send.
// Content for encrypted chats is enciphered on the wire but echoed as
// typed. Returns the echo so the UI can track it by temp id.
func (c *Client) SendMessage(chatID int64, content string, replyToID int64) state.Message {
	tempID := c.newTempID()
	outbound := content
	if chat, ok := c.store.Chat(chatID); ok && chat.Encrypted && chat.EncryptionKey != "" {
		outbound = crypt.Apply(chat.EncryptionKey, content)
	}
	echo := c.store.AppendLocalEcho(chatID, tempID, content, replyToID)
	c.transport.Enqueue(wire.NewSendMessage(chatID, outbound, replyToID, tempID))
	return echo
}

// MarkRead records the local user's read receipt and reports it to the
// server.
func (c *Client) MarkRead(chatID, messageID int64) {
	c.store.ApplyRead(chatID, messageID, c.store.Self())
	c.transport.Enqueue(wire.NewReadReceipt(chatID, messageID))
}

// SetActiveChat foregrounds a chat, zeroing its unread counter, and
// requests its first page if history was never fetched. Pushed messages
// alone do not count as a fetch, so a chat first seen through a push
// still loads its backlog on activation.
func (c *Client) SetActiveChat(chatID int64) {
	c.store.SetActiveChat(chatID)
	if chatID != 0 && !c.store.Cursor(chatID).Fetched {
		c.transport.Enqueue(wire.NewGetMessages(chatID, state.DefaultPageSize, 0, false))
	}
}

// LoadOlderMessages requests the page preceding the oldest fetched
// message. Returns false when the chat's history is exhausted.
func (c *Client) LoadOlderMessages(chatID int64) bool {
	cursor := c.store.Cursor(chatID)
	if !cursor.HasMore {
		return false
	}
	c.transport.Enqueue(wire.NewGetMessages(chatID, state.DefaultPageSize, cursor.OldestFetchedID, false))
	return true
}

// RefreshChats requests the full chat list.
func (c *Client) RefreshChats() {
	c.transport.Enqueue(wire.NewGetChats())
}

// SetTyping signals typing start or stop in a chat.
func (c *Client) SetTyping(chatID int64, typing bool) {
	c.transport.Enqueue(wire.NewTyping(chatID, typing))
}

// SearchUsers finds users by name.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]rest.User, error) {
	return c.api.SearchUsers(ctx, query)
}

// StartDirectChat opens (or creates) the one-on-one chat with a user
// and folds it into the store.
func (c *Client) StartDirectChat(ctx context.Context, userID int64) (*state.Chat, error) {
	chat, err := c.api.DirectChat(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.store.UpsertChat(chat)
	return chat, nil
}

// CreateGroupChat creates a group chat and folds it into the store.
func (c *Client) CreateGroupChat(ctx context.Context, title string, memberIDs []int64) (*state.Chat, error) {
	chat, err := c.api.CreateGroupChat(ctx, title, memberIDs)
	if err != nil {
		return nil, err
	}
	c.store.UpsertChat(chat)
	return chat, nil
}

// UploadAttachment posts a file to a chat. The resulting message is
// applied locally; the server push for it deduplicates by id.
func (c *Client) UploadAttachment(ctx context.Context, chatID int64, filename string, r io.Reader) (*state.Message, error) {
	msg, err := c.api.UploadAttachment(ctx, chatID, filename, r)
	if err != nil {
		return nil, err
	}
	c.store.ApplyNewMessage(msg, "")
	return msg, nil
}

// DeleteMessage removes a message server-side first, then locally.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := c.api.DeleteMessage(ctx, chatID, messageID); err != nil {
		return err
	}
	c.store.DeleteMessage(chatID, messageID)
	return nil
}

// DeleteChat removes a chat server-side first, then locally.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	if err := c.api.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	c.store.DeleteChat(chatID)
	return nil
}

// SetVisible reports foreground visibility to the fallback poller.
func (c *Client) SetVisible(visible bool) {
	c.poller.SetVisible(visible)
}

// Logout disconnects the transport and drops cached avatar
// resolutions so the next session re-derives them.
func (c *Client) Logout() {
	c.transport.Disconnect()
	c.store.InvalidateAvatars()
	c.logger.Info("logged out")
}
