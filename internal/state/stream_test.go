package state

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

func newTestReconciler() (*Reconciler, *ChatStore) {
	chats := NewChatStore()
	return NewReconciler(slog.New(slog.NewTextHandler(io.Discard, nil)), chats), chats
}

func TestReconciler_StreamWithChatIDCorrection(t *testing.T) {
	r, chats := newTestReconciler()

	// Optimistic send into the placeholder conversation, then the stream
	// confirms it under the server-assigned chat id.
	chats.AddLocal(wire.Message{ChatID: 0, Sender: "u1", Body: "Hello", CreatedAt: at(0)})

	r.ApplyFragment(wire.Message{ID: 5, ChatID: 0, Sender: "u1", Body: "Hel", CreatedAt: at(1)})
	r.ApplyFragment(wire.Message{ID: 5, ChatID: 42, Body: "lo"})
	r.CompleteStream()

	if _, ok := chats.Chat(0); ok {
		t.Error("placeholder conversation 0 still present")
	}
	chat, ok := chats.Chat(42)
	if !ok {
		t.Fatal("conversation 42 missing")
	}
	if len(chat.Messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(chat.Messages))
	}
	msg := chat.Messages[0]
	if msg.ID != 5 || msg.ChatID != 42 || msg.Sender != "u1" || msg.Body != "Hello" {
		t.Errorf("reconciled message = %+v", msg)
	}
}

func TestReconciler_InFlightAccumulates(t *testing.T) {
	r, _ := newTestReconciler()

	r.ApplyFragment(wire.Message{ID: 9, ChatID: 3, Sender: "gpt", Body: "In the "})
	r.ApplyFragment(wire.Message{ID: 9, ChatID: 3, Body: "beginning"})

	cur, ok := r.InFlight()
	if !ok {
		t.Fatal("no in-flight message")
	}
	if cur.Body != "In the beginning" {
		t.Errorf("body = %q, want %q", cur.Body, "In the beginning")
	}

	r.CompleteStream()
	if _, ok := r.InFlight(); ok {
		t.Error("accumulator survived completion")
	}
}

func TestReconciler_CompleteWithoutFragments(t *testing.T) {
	r, chats := newTestReconciler()

	r.CompleteStream()
	if len(chats.Chats()) != 0 {
		t.Error("completion with no fragments created state")
	}
}

func TestReconciler_NewStreamFlushesStalePrevious(t *testing.T) {
	r, chats := newTestReconciler()

	r.ApplyFragment(wire.Message{ID: 1, ChatID: 3, Sender: "gpt", Body: "first", CreatedAt: at(1)})
	// New id with no completion in between: the stale accumulator is kept,
	// not lost.
	r.ApplyFragment(wire.Message{ID: 2, ChatID: 3, Sender: "gpt", Body: "second", CreatedAt: at(2)})
	r.CompleteStream()

	chat, _ := chats.Chat(3)
	if len(chat.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(chat.Messages))
	}
}

func TestReconciler_ClearDropsInFlight(t *testing.T) {
	r, _ := newTestReconciler()

	r.ApplyFragment(wire.Message{ID: 1, ChatID: 3, Body: "partial", CreatedAt: time.Now()})
	r.Clear()
	if _, ok := r.InFlight(); ok {
		t.Error("accumulator survived Clear")
	}
}
