package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// LessonService covers lesson generation and retrieval.
type LessonService struct {
	base
	onGenerated func([]wire.Lesson)
	onFetched   func([]wire.Lesson)
}

// NewLessonService registers the lesson push handlers.
func NewLessonService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc,
	onGenerated func([]wire.Lesson),
	onFetched func([]wire.Lesson),
) *LessonService {
	s := &LessonService{
		base:        base{log: log, mgr: mgr, token: token},
		onGenerated: onGenerated,
		onFetched:   onFetched,
	}
	mgr.Subscribe(wire.RespAction(wire.ActionGetAllLessonsByTopic), s.handleFetched)
	return s
}

// GenerateLessons asks the backend to generate the lessons for a plan.
// Correlated: generation is slow, the caller bounds the wait with ctx.
func (s *LessonService) GenerateLessons(ctx context.Context, topicPlanID uint64) ([]wire.Lesson, error) {
	frame, err := s.request(ctx, wire.TypeLesson, wire.ActionGenerateLessons, map[string]any{
		"topic_plan_id": topicPlanID,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Lessons []wire.Lesson `json:"lessons"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return nil, err
	}
	if s.onGenerated != nil {
		s.onGenerated(payload.Lessons)
	}
	return payload.Lessons, nil
}

// LessonByID fetches one lesson.
func (s *LessonService) LessonByID(ctx context.Context, topicPlanID, lessonID uint64) (wire.Lesson, error) {
	frame, err := s.request(ctx, wire.TypeLesson, wire.ActionGetLessonByID, map[string]any{
		"topic_plan_id": topicPlanID,
		"lesson_id":     lessonID,
	})
	if err != nil {
		return wire.Lesson{}, err
	}
	var payload struct {
		Lesson *wire.Lesson `json:"lesson"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return wire.Lesson{}, err
	}
	if payload.Lesson == nil {
		return wire.Lesson{}, ErrEmptyPayload
	}
	return *payload.Lesson, nil
}

// LessonsByTopic requests every lesson of a plan; the result feeds the lesson
// store via the push handler.
func (s *LessonService) LessonsByTopic(ctx context.Context, topicPlanID uint64) error {
	return s.push(ctx, wire.TypeLesson, wire.ActionGetAllLessonsByTopic, map[string]any{
		"topic_plan_id": topicPlanID,
	})
}

func (s *LessonService) handleFetched(frame wire.Frame) {
	var payload struct {
		Lessons []wire.Lesson `json:"lessons"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad lessons payload", slog.Any("error", err))
		return
	}
	s.onFetched(payload.Lessons)
}
