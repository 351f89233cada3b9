// Package state holds the client-side stores that reconcile streamed
// fragments, history fetches, and optimistic sends into durable per-chat
// message logs.
package state

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

// ChatStore keeps the active conversation set. Invariants: at most one chat
// per id, messages within a chat unique by server id and ordered by ascending
// created_at.
type ChatStore struct {
	mu    sync.RWMutex
	chats map[uint64]*wire.Chat
}

// NewChatStore creates an empty store.
func NewChatStore() *ChatStore {
	return &ChatStore{chats: make(map[uint64]*wire.Chat)}
}

// SetSummaries replaces the chat set from a summary fetch. Message logs of
// chats still present are kept; chats the server no longer reports are
// dropped.
func (s *ChatStore) SetSummaries(summaries []wire.ChatSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[uint64]*wire.Chat, len(summaries))
	for _, sum := range summaries {
		if prev, ok := s.chats[sum.ID]; ok {
			prev.Name = sum.Name
			next[sum.ID] = prev
			continue
		}
		next[sum.ID] = &wire.Chat{ID: sum.ID, Name: sum.Name}
	}
	s.chats = next
}

// Upsert merges one message into its chat, creating the chat if this is the
// first activity for its id. Dedup is by server id: an existing id gets its
// body appended (fragment delta) or replaced wholesale; a confirmed id
// collapses a matching optimistic entry instead of duplicating it; anything
// else is inserted in timestamp order.
func (s *ChatStore) Upsert(msg wire.Message, appendBody bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(msg, appendBody)
}

// SetMessages merges a history fetch into a chat. Out-of-order arrival is
// fine: the union is deduplicated by id and re-sorted on creation time.
func (s *ChatStore) SetMessages(chatID uint64, msgs []wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		msg.ChatID = chatID
		s.upsertLocked(msg, false)
	}
}

// AddLocal records an optimistic message before the server confirms it. The
// returned local id identifies the provisional entry until a confirmed
// message collapses it.
func (s *ChatStore) AddLocal(msg wire.Message) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = 0
	msg.LocalID = uuid.New()
	chat := s.chatLocked(msg.ChatID)
	chat.Messages = insertByTime(chat.Messages, msg)
	return msg.LocalID
}

// Rename re-files a chat under the server-assigned id, rewriting the chat id
// of every message in it. One atomic step: after it returns no chat with the
// old id remains. If a chat already exists under the new id the two message
// logs are merged.
func (s *ChatStore) Rename(oldID, newID uint64) {
	if oldID == newID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.chats[oldID]
	if !ok {
		return
	}
	delete(s.chats, oldID)

	dst, exists := s.chats[newID]
	if !exists {
		old.ID = newID
		for i := range old.Messages {
			old.Messages[i].ChatID = newID
		}
		s.chats[newID] = old
		return
	}
	for _, msg := range old.Messages {
		msg.ChatID = newID
		s.mergeMessage(dst, msg, false)
	}
}

// Remove deletes one chat.
func (s *ChatStore) Remove(chatID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
}

// Clear empties the store. Used on logout and after delete-all.
func (s *ChatStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[uint64]*wire.Chat)
}

// Chat returns a snapshot of one conversation.
func (s *ChatStore) Chat(chatID uint64) (wire.Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return wire.Chat{}, false
	}
	return snapshot(chat), true
}

// Chats returns a snapshot of all conversations, ordered by id.
func (s *ChatStore) Chats() []wire.Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]wire.Chat, 0, len(s.chats))
	for _, chat := range s.chats {
		out = append(out, snapshot(chat))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *ChatStore) upsertLocked(msg wire.Message, appendBody bool) {
	chat := s.chatLocked(msg.ChatID)
	s.mergeMessage(chat, msg, appendBody)
}

// chatLocked returns the chat for id, creating it on first activity.
func (s *ChatStore) chatLocked(chatID uint64) *wire.Chat {
	chat, ok := s.chats[chatID]
	if !ok {
		chat = &wire.Chat{ID: chatID}
		s.chats[chatID] = chat
	}
	return chat
}

func (s *ChatStore) mergeMessage(chat *wire.Chat, msg wire.Message, appendBody bool) {
	if msg.ID != 0 {
		for i := range chat.Messages {
			if chat.Messages[i].ID == msg.ID {
				if appendBody {
					chat.Messages[i].Body += msg.Body
					return
				}
				msg.ChatID = chat.ID
				chat.Messages[i] = msg
				sortByTime(chat.Messages)
				return
			}
		}
		// A confirmed message replaces the optimistic entry it confirms.
		for i := range chat.Messages {
			cur := chat.Messages[i]
			if !cur.Confirmed() && cur.Sender == msg.Sender && cur.Body == msg.Body {
				msg.ChatID = chat.ID
				chat.Messages[i] = msg
				sortByTime(chat.Messages)
				return
			}
		}
	}
	msg.ChatID = chat.ID
	chat.Messages = insertByTime(chat.Messages, msg)
}

func insertByTime(msgs []wire.Message, msg wire.Message) []wire.Message {
	msgs = append(msgs, msg)
	sortByTime(msgs)
	return msgs
}

func sortByTime(msgs []wire.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

func snapshot(chat *wire.Chat) wire.Chat {
	out := *chat
	out.Messages = make([]wire.Message, len(chat.Messages))
	copy(out.Messages, chat.Messages)
	return out
}
