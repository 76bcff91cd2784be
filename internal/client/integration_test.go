package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/tmarcondes/pulse/internal/bus"
	"github.com/tmarcondes/pulse/internal/conn"
	"github.com/tmarcondes/pulse/internal/dispatch"
	"github.com/tmarcondes/pulse/internal/state"
)

// scriptedSocket is an in-memory transport: the test plays the server
// by feeding frames into in and reading client frames from out.
type scriptedSocket struct {
	in   chan []byte
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newScriptedSocket() *scriptedSocket {
	return &scriptedSocket{
		in:   make(chan []byte, 16),
		out:  make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (s *scriptedSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.in:
		return data, nil
	case <-s.done:
		return nil, errors.New("socket closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *scriptedSocket) Write(ctx context.Context, data []byte) error {
	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return errors.New("socket closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *scriptedSocket) Close(code websocket.StatusCode, reason string) error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func nextFrame(t *testing.T, s *scriptedSocket) map[string]any {
	t.Helper()
	select {
	case data := <-s.out:
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("malformed client frame: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from client")
		return nil
	}
}

// TestOfflineSendFlow walks the whole send path: a message composed
// with no connection is echoed immediately, buffered, flushed once the
// transport authenticates, and reconciled in place when the server
// acknowledges it.
func TestOfflineSendFlow(t *testing.T) {
	b := bus.New()
	s := state.New(b, nil, "https://api.test")
	s.SetSelf(1)

	sock := newScriptedSocket()
	manager := conn.NewManager(conn.Options{
		URL:          "ws://example.test/socket",
		SessionToken: "tok-123",
		DeviceID:     "dev-abc",
		Dialer: func(ctx context.Context, url string) (conn.Socket, error) {
			return sock, nil
		},
	}, b, nil)
	d := dispatch.New(manager, s, b, nil)
	manager.SetHandler(d)

	c := New(s, manager, &fakeAPI{}, &fakeVisibility{}, b, nil)

	// History already known from an earlier session.
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.MergeMessages(5, []*state.Message{
		{ID: 101, ChatID: 5, SenderID: 9, Content: "one", CreatedAt: at},
		{ID: 102, ChatID: 5, SenderID: 9, Content: "two", CreatedAt: at.Add(time.Minute)},
	}, false)

	echo := c.SendMessage(5, "three", 0)
	if !echo.IsTemp {
		t.Fatal("expected optimistic echo")
	}
	msgs := s.MessagesFor(5)
	if len(msgs) != 3 || !msgs[2].IsTemp {
		t.Fatalf("echo not appended after history: %#v", msgs)
	}

	// Enqueueing while idle triggers a connection attempt; the client
	// authenticates and the queue flushes.
	auth := nextFrame(t, sock)
	if auth["type"] != "auth" {
		t.Fatalf("expected auth frame, got %v", auth["type"])
	}
	sock.in <- []byte(`{"type":"connected","userId":1}`)

	sent := nextFrame(t, sock)
	if sent["type"] != "send_message" || sent["tempId"] != echo.TempID {
		t.Fatalf("queued send not flushed: %v", sent)
	}

	// Server acknowledges with the real id.
	ack := fmt.Sprintf(`{"type":"message_sent","tempId":%q,"messageId":103}`, echo.TempID)
	sock.in <- []byte(ack)

	deadline := time.After(2 * time.Second)
	for {
		msgs = s.MessagesFor(5)
		if len(msgs) == 3 && !msgs[2].IsTemp && msgs[2].ID == 103 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("acknowledgement never reconciled: %#v", msgs)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID}; got[0] != 101 || got[1] != 102 || got[2] != 103 {
		t.Fatalf("unexpected order: %v", got)
	}
	if msgs[2].Content != "three" {
		t.Fatalf("confirmed message lost its content: %q", msgs[2].Content)
	}
	if chats := s.Chats(); chats[0].ID != 5 {
		t.Fatalf("chat not at head: %v", chats[0].ID)
	}
	if manager.State() != conn.StateConnected {
		t.Fatalf("expected connected, got %s", manager.State())
	}
}
