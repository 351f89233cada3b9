package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// TopicPlanService covers study-plan generation and retrieval.
type TopicPlanService struct {
	base
	onGenerated func(wire.TopicPlan)
	onFetched   func([]wire.TopicPlan)
	onOverview  func(string)
}

// NewTopicPlanService registers the topic-plan push handlers.
func NewTopicPlanService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc,
	onGenerated func(wire.TopicPlan),
	onFetched func([]wire.TopicPlan),
	onOverview func(string),
) *TopicPlanService {
	s := &TopicPlanService{
		base:        base{log: log, mgr: mgr, token: token},
		onGenerated: onGenerated,
		onFetched:   onFetched,
		onOverview:  onOverview,
	}
	mgr.Subscribe(wire.RespAction(wire.ActionGenerateTopicPlan), s.handleGenerated)
	mgr.Subscribe(wire.RespAction(wire.ActionGetAllTopicPlansUID), s.handleFetched)
	mgr.Subscribe(wire.RespAction(wire.ActionGenerateTopicPlanOvw), s.handleOverview)
	return s
}

// Generate fills out a plan with the requested number of lessons.
func (s *TopicPlanService) Generate(ctx context.Context, topicPlanID uint64, numLessons int) error {
	return s.push(ctx, wire.TypeLesson, wire.ActionGenerateTopicPlan, map[string]any{
		"topic_plan_id":     topicPlanID,
		"number_of_lessons": numLessons,
	})
}

// GenerateOverview asks for a plan outline from a free-form prompt.
func (s *TopicPlanService) GenerateOverview(ctx context.Context, userID, prompt string) error {
	return s.push(ctx, wire.TypeLesson, wire.ActionGenerateTopicPlanOvw, map[string]any{
		"user_id": userID,
		"prompt":  prompt,
	})
}

// AllByUser requests every plan belonging to a user.
func (s *TopicPlanService) AllByUser(ctx context.Context, userID string) error {
	return s.push(ctx, wire.TypeLesson, wire.ActionGetAllTopicPlansUID, map[string]any{
		"user_id": userID,
	})
}

// PlanByID fetches one plan. Correlated.
func (s *TopicPlanService) PlanByID(ctx context.Context, topicPlanID uint64) (wire.TopicPlan, error) {
	frame, err := s.request(ctx, wire.TypeLesson, wire.ActionGetTopicPlanByID, map[string]any{
		"topic_plan_id": topicPlanID,
	})
	if err != nil {
		return wire.TopicPlan{}, err
	}
	var payload struct {
		TopicPlan *wire.TopicPlan `json:"topic_plan"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return wire.TopicPlan{}, err
	}
	if payload.TopicPlan == nil {
		return wire.TopicPlan{}, ErrEmptyPayload
	}
	return *payload.TopicPlan, nil
}

func (s *TopicPlanService) handleGenerated(frame wire.Frame) {
	var payload struct {
		TopicPlan wire.TopicPlan `json:"topic_plan"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad topic plan payload", slog.Any("error", err))
		return
	}
	s.onGenerated(payload.TopicPlan)
}

func (s *TopicPlanService) handleFetched(frame wire.Frame) {
	var payload struct {
		TopicPlans []wire.TopicPlan `json:"topic_plans"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad topic plans payload", slog.Any("error", err))
		return
	}
	s.onFetched(payload.TopicPlans)
}

func (s *TopicPlanService) handleOverview(frame wire.Frame) {
	var payload struct {
		Response string `json:"response"`
	}
	if err := unwrap(frame, &payload); err != nil {
		s.log.Warn("bad overview payload", slog.Any("error", err))
		return
	}
	s.onOverview(payload.Response)
}
