package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestChatsDecodesAndNormalizes(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"chats":[
			{"id":1,"title":"general","members":[{"user_id":9,"username":"ana"}]},
			{"id":2,"isGroup":true,"title":"team","lastMessage":{"id":50,"chatId":2,"senderId":9,"content":"hi","createdAt":1700000000000}}
		]}`))
	}))

	chats, err := c.Chats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if len(chats[0].Members) != 1 || chats[0].Members[0].UserID != 9 {
		t.Fatalf("member not normalized: %#v", chats[0].Members)
	}
	if chats[1].LastMessage == nil || chats[1].LastMessage.ID != 50 {
		t.Fatalf("last message not decoded: %#v", chats[1].LastMessage)
	}
}

func TestMessagesPagination(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("before_id"); got != "100" {
			t.Errorf("expected before_id=100, got %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("expected limit=25, got %q", got)
		}
		w.Write([]byte(`{"success":true,"messages":[{"id":98,"senderId":9,"content":"older","createdAt":1700000000000}],"has_moderator_messages":true}`))
	}))

	msgs, hasModerator, err := c.Messages(context.Background(), 5, 25, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != 98 {
		t.Fatalf("unexpected messages: %#v", msgs)
	}
	if msgs[0].ChatID != 5 {
		t.Fatalf("chat id not backfilled: %d", msgs[0].ChatID)
	}
	if !hasModerator {
		t.Fatal("moderator flag lost")
	}
}

func TestSendMessageBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Error(err)
		}
		if body["content"] != "hello" || body["replyToId"] != float64(42) {
			t.Errorf("unexpected body: %v", body)
		}
		w.Write([]byte(`{"success":true,"message":{"id":200,"chatId":5,"senderId":1,"content":"hello","createdAt":1700000000000}}`))
	}))

	msg, err := c.SendMessage(context.Background(), 5, "hello", 42)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != 200 {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestDirectChatGetOrCreate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chats/direct" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"chat":{"id":7,"title":"ana"}}`))
	}))

	chat, err := c.DirectChat(context.Background(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != 7 {
		t.Fatalf("unexpected chat: %#v", chat)
	}
}

func TestUploadAttachmentMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			w.Write([]byte(`{"success":false,"error":"no file"}`))
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "photo.jpg" || string(data) != "jpegbytes" {
			t.Errorf("unexpected upload: %s %q", header.Filename, data)
		}
		w.Write([]byte(`{"success":true,"message":{"id":300,"chatId":5,"senderId":1,"content":"photo.jpg","type":"image","createdAt":1700000000000}}`))
	}))

	msg, err := c.UploadAttachment(context.Background(), 5, "photo.jpg", strings.NewReader("jpegbytes"))
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != 300 || msg.Type != "image" {
		t.Fatalf("unexpected message: %#v", msg)
	}
}

func TestDeleteEndpoints(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"success":true}`))
	}))

	if err := c.DeleteMessage(context.Background(), 5, 101); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteChat(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if paths[0] != "/api/chats/5/messages/101" || paths[1] != "/api/chats/5" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}
