package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// MessageService starts streamed sends and routes the unsolicited fragment
// and completion pushes to the reconciler.
type MessageService struct {
	base
	onFragment func(wire.Message)
	onComplete func()
}

// NewMessageService registers the stream push handlers.
func NewMessageService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc,
	onFragment func(wire.Message),
	onComplete func(),
) *MessageService {
	s := &MessageService{
		base:       base{log: log, mgr: mgr, token: token},
		onFragment: onFragment,
		onComplete: onComplete,
	}
	mgr.Subscribe(wire.ActionMessageFragment, s.handleFragment)
	mgr.Subscribe(wire.ActionMessageComplete, s.handleComplete)
	return s
}

// Send begins a streamed send. Fire-and-forget: the reply arrives as
// message_fragment pushes terminated by message_complete. chatID may be a
// client-side placeholder; the server reports the real id in the fragments.
func (s *MessageService) Send(ctx context.Context, chatID uint64, sender, body string) error {
	return s.push(ctx, wire.TypeChat, wire.ActionStartMessageStream, map[string]any{
		"chat_id": chatID,
		"sender":  sender,
		"body":    body,
	})
}

func (s *MessageService) handleFragment(frame wire.Frame) {
	var payload struct {
		Message wire.Message `json:"message"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad message fragment payload", slog.Any("error", err))
		return
	}
	s.onFragment(payload.Message)
}

func (s *MessageService) handleComplete(wire.Frame) {
	s.onComplete()
}
