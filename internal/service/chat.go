package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// recentMessagesLimit is the page size for history fetches.
const recentMessagesLimit = 15

// ChatService covers conversation listing, history fetches, and deletion.
type ChatService struct {
	base
	onSummaries func([]wire.ChatSummary)
	onMessages  func(chatID uint64, msgs []wire.Message)
}

// NewChatService registers the chat response handlers. Summaries and history
// are push style: the callbacks feed the owning store out-of-band.
func NewChatService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc,
	onSummaries func([]wire.ChatSummary),
	onMessages func(chatID uint64, msgs []wire.Message),
) *ChatService {
	s := &ChatService{
		base:        base{log: log, mgr: mgr, token: token},
		onSummaries: onSummaries,
		onMessages:  onMessages,
	}
	mgr.Subscribe(wire.RespAction(wire.ActionGetChatSummaries), s.handleSummaries)
	mgr.Subscribe(wire.RespAction(wire.ActionGetRecentMessages), s.handleMessages)
	return s
}

// ChatSummaries requests the conversation list for a user.
func (s *ChatService) ChatSummaries(ctx context.Context, userID string) error {
	return s.push(ctx, wire.TypeChat, wire.ActionGetChatSummaries, map[string]any{
		"id": userID,
	})
}

// RecentMessages requests the page of messages before lastMessageID. A zero
// cursor fetches the newest page.
func (s *ChatService) RecentMessages(ctx context.Context, chatID, lastMessageID uint64) error {
	return s.push(ctx, wire.TypeChat, wire.ActionGetRecentMessages, map[string]any{
		"chat_id":         chatID,
		"last_message_id": lastMessageID,
		"limit":           recentMessagesLimit,
	})
}

// DeleteChat removes one conversation. Correlated; the returned flag is the
// server's domain-level answer, not a protocol error.
func (s *ChatService) DeleteChat(ctx context.Context, chatID uint64) (bool, error) {
	frame, err := s.request(ctx, wire.TypeChat, wire.ActionDeleteChatByChatID, map[string]any{
		"chat_id": chatID,
	})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return false, err
	}
	return payload.Success, nil
}

// DeleteAllChats removes every conversation for a user.
func (s *ChatService) DeleteAllChats(ctx context.Context, userID string) (bool, error) {
	frame, err := s.request(ctx, wire.TypeChat, wire.ActionDeleteAllChatsByUID, map[string]any{
		"user_id": userID,
	})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return false, err
	}
	return payload.Success, nil
}

func (s *ChatService) handleSummaries(frame wire.Frame) {
	var payload struct {
		Chats []wire.ChatSummary `json:"chats"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad chat summaries payload", slog.Any("error", err))
		return
	}
	s.onSummaries(payload.Chats)
}

func (s *ChatService) handleMessages(frame wire.Frame) {
	var payload struct {
		ChatID   uint64         `json:"chat_id"`
		Messages []wire.Message `json:"messages"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad recent messages payload", slog.Any("error", err))
		return
	}
	chatID := payload.ChatID
	if chatID == 0 && len(payload.Messages) > 0 {
		chatID = payload.Messages[0].ChatID
	}
	s.onMessages(chatID, payload.Messages)
}
