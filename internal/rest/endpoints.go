package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/tmarcondes/pulse/internal/state"
	"github.com/tmarcondes/pulse/internal/wire"
)

// User is the server's user payload shape.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Photo    string `json:"photo"`
}

// CurrentUser fetches the authenticated user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Chats fetches the full chat list.
func (c *Client) Chats(ctx context.Context) ([]*state.Chat, error) {
	var resp struct {
		Chats []wire.Chat `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, err
	}
	chats := make([]*state.Chat, 0, len(resp.Chats))
	for i := range resp.Chats {
		chats = append(chats, resp.Chats[i].ToState())
	}
	return chats, nil
}

// ChatDetail fetches a single chat with its full member list.
func (c *Client) ChatDetail(ctx context.Context, chatID int64) (*state.Chat, error) {
	var resp struct {
		Chat wire.Chat `json:"chat"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/chats/%d", chatID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chat.ToState(), nil
}

// Messages fetches a page of a chat's history, strictly older than
// beforeID when set. The second return reports whether the chat carries
// moderator messages.
func (c *Client) Messages(ctx context.Context, chatID int64, limit int, beforeID int64) ([]*state.Message, bool, error) {
	if limit <= 0 {
		limit = state.DefaultPageSize
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if beforeID > 0 {
		q.Set("before_id", fmt.Sprint(beforeID))
	}
	var resp struct {
		Messages             []wire.Message `json:"messages"`
		HasModeratorMessages bool           `json:"has_moderator_messages"`
	}
	path := fmt.Sprintf("/api/chats/%d/messages?%s", chatID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, false, err
	}
	msgs := make([]*state.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		m := resp.Messages[i].ToState()
		if m.ChatID == 0 {
			m.ChatID = chatID
		}
		msgs = append(msgs, m)
	}
	return msgs, resp.HasModeratorMessages, nil
}

// SendMessage submits a message over REST. Used when the realtime
// transport is degraded.
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string, replyToID int64) (*state.Message, error) {
	body := map[string]any{"content": content}
	if replyToID > 0 {
		body["replyToId"] = replyToID
	}
	var resp struct {
		Message wire.Message `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/messages", chatID), body, &resp); err != nil {
		return nil, err
	}
	return resp.Message.ToState(), nil
}

// MarkRead acknowledges a message as read.
func (c *Client) MarkRead(ctx context.Context, chatID, messageID int64) error {
	body := map[string]any{"messageId": messageID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/chats/%d/read", chatID), body, nil)
}

// SearchUsers finds users matching a query string.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]User, error) {
	var resp struct {
		Users []User `json:"users"`
	}
	path := "/api/users/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// DirectChat returns the one-on-one chat with the given user, creating
// it when none exists.
func (c *Client) DirectChat(ctx context.Context, userID int64) (*state.Chat, error) {
	body := map[string]any{"userId": userID}
	var resp struct {
		Chat wire.Chat `json:"chat"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chats/direct", body, &resp); err != nil {
		return nil, err
	}
	return resp.Chat.ToState(), nil
}

// CreateGroupChat creates a group chat with the given members.
func (c *Client) CreateGroupChat(ctx context.Context, title string, memberIDs []int64) (*state.Chat, error) {
	body := map[string]any{"title": title, "memberIds": memberIDs}
	var resp struct {
		Chat wire.Chat `json:"chat"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chats/group", body, &resp); err != nil {
		return nil, err
	}
	return resp.Chat.ToState(), nil
}

// UploadAttachment posts a file to a chat as a multipart upload and
// returns the resulting attachment message.
func (c *Client) UploadAttachment(ctx context.Context, chatID int64, filename string, r io.Reader) (*state.Message, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("buffering upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var resp struct {
		Message wire.Message `json:"message"`
	}
	path := fmt.Sprintf("/api/chats/%d/attachments", chatID)
	if err := c.doRaw(ctx, http.MethodPost, path, buf, w.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return resp.Message.ToState(), nil
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chats/%d/messages/%d", chatID, messageID), nil, nil)
}

// DeleteChat removes a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/chats/%d", chatID), nil, nil)
}
