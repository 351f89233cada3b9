package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// QuestionCounts sets how many questions of each kind a generated test holds.
type QuestionCounts struct {
	MultipleChoice int
	FillInTheBlank int
	ShortAnswer    int
	MatchOptions   int
}

// AssessmentService generates tests for lessons.
type AssessmentService struct {
	base
	onGenerated func(wire.Assessment)
}

// NewAssessmentService creates the service. The callback, if set, also sees
// the result of every correlated Generate call.
func NewAssessmentService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc, onGenerated func(wire.Assessment)) *AssessmentService {
	return &AssessmentService{
		base:        base{log: log, mgr: mgr, token: token},
		onGenerated: onGenerated,
	}
}

// Generate asks the backend to generate a test for a lesson. Correlated:
// generation is slow, the caller bounds the wait with ctx.
func (s *AssessmentService) Generate(ctx context.Context, lessonID uint64, counts QuestionCounts) (wire.Assessment, error) {
	frame, err := s.request(ctx, wire.TypeTest, wire.ActionGenerateTest, map[string]any{
		"lesson_id":             lessonID,
		"num_multiple_choice":   counts.MultipleChoice,
		"num_fill_in_the_blank": counts.FillInTheBlank,
		"num_short_answer":      counts.ShortAnswer,
		"num_match_options":     counts.MatchOptions,
	})
	if err != nil {
		return wire.Assessment{}, err
	}
	var payload struct {
		Test *wire.Assessment `json:"test"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return wire.Assessment{}, err
	}
	if payload.Test == nil {
		return wire.Assessment{}, ErrEmptyPayload
	}
	if s.onGenerated != nil {
		s.onGenerated(*payload.Test)
	}
	return *payload.Test, nil
}
