package state

import (
	"log/slog"
	"sync"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

// Reconciler folds streamed message fragments into the chat store. One
// logical send is in flight at a time: fragments accumulate into a single
// message between stream start and stream completion, and chat-id corrections
// reported mid-stream are applied retroactively to the whole conversation.
type Reconciler struct {
	log   *slog.Logger
	chats *ChatStore

	mu  sync.Mutex
	cur *wire.Message // in-flight accumulator, nil when idle
}

// NewReconciler wires a reconciler to its chat store.
func NewReconciler(log *slog.Logger, chats *ChatStore) *Reconciler {
	return &Reconciler{log: log, chats: chats}
}

// ApplyFragment accumulates one fragment. The first fragment for a new id
// starts the stream; later fragments append their body delta. When the server
// assigns the real chat id mid-stream, every message filed under the
// placeholder id moves with it.
func (r *Reconciler) ApplyFragment(frag wire.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil || (frag.ID != 0 && r.cur.ID != 0 && frag.ID != r.cur.ID) {
		if r.cur != nil {
			// The previous stream never completed; keep what arrived.
			r.log.Warn("new stream started before previous completed",
				slog.Uint64("message_id", r.cur.ID))
			r.chats.Upsert(*r.cur, false)
		}
		cp := frag
		r.cur = &cp
		return
	}

	if frag.ChatID != 0 && frag.ChatID != r.cur.ChatID {
		r.chats.Rename(r.cur.ChatID, frag.ChatID)
		r.cur.ChatID = frag.ChatID
	}
	if frag.ID != 0 {
		r.cur.ID = frag.ID
	}
	if frag.Sender != "" {
		r.cur.Sender = frag.Sender
	}
	if !frag.CreatedAt.IsZero() {
		r.cur.CreatedAt = frag.CreatedAt
	}
	r.cur.Body += frag.Body
}

// CompleteStream finalizes the in-flight message into its conversation and
// discards the accumulator. A completion with nothing in flight is ignored.
func (r *Reconciler) CompleteStream() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil {
		r.log.Debug("stream completion with no fragments in flight")
		return
	}
	r.chats.Upsert(*r.cur, false)
	r.cur = nil
}

// InFlight returns a copy of the accumulating message, if any. The UI renders
// it as the partially streamed reply.
func (r *Reconciler) InFlight() (wire.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur == nil {
		return wire.Message{}, false
	}
	return *r.cur, true
}

// Clear drops any in-flight accumulator.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = nil
}
