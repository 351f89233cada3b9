package state

import (
	"testing"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

func TestLessonStore_SetAllMerges(t *testing.T) {
	s := NewLessonStore()
	s.SetAll([]wire.Lesson{
		{ID: 1, TopicPlanID: 4, Title: "Creation"},
		{ID: 2, TopicPlanID: 4, Title: "The Fall"},
	})
	// A later batch updates existing lessons without dropping the rest.
	s.SetAll([]wire.Lesson{{ID: 2, TopicPlanID: 4, Title: "The Fall", Completed: true}})

	lessons := s.ByTopicPlan(4)
	if len(lessons) != 2 {
		t.Fatalf("got %d lessons, want 2", len(lessons))
	}
	if lessons[0].ID != 1 || lessons[1].ID != 2 {
		t.Errorf("lessons out of order: %d, %d", lessons[0].ID, lessons[1].ID)
	}
	if !lessons[1].Completed {
		t.Error("second batch did not update lesson 2")
	}
	if got := s.ByTopicPlan(9); len(got) != 0 {
		t.Errorf("plan 9 has %d lessons, want 0", len(got))
	}
}

func TestTopicPlanStore_SetAllReplaces(t *testing.T) {
	s := NewTopicPlanStore()
	s.SetAll([]wire.TopicPlan{{ID: 1, Title: "Genesis"}, {ID: 2, Title: "Exodus"}})
	s.SetAll([]wire.TopicPlan{{ID: 3, Title: "Psalms"}})

	plans := s.Plans()
	if len(plans) != 1 || plans[0].ID != 3 {
		t.Errorf("plans = %+v, want only plan 3", plans)
	}
	if _, ok := s.Plan(1); ok {
		t.Error("plan 1 survived a full replace")
	}
}

func TestUserStore_Clear(t *testing.T) {
	s := NewUserStore()
	s.SetUserID("42")
	s.SetUser(wire.User{ID: 42, Username: "dani"})

	s.Clear()
	if s.UserID() != "" {
		t.Errorf("UserID() = %q after clear", s.UserID())
	}
	if _, ok := s.User(); ok {
		t.Error("User() still present after clear")
	}
}
