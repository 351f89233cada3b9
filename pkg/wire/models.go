package wire

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat message. ID is the server-assigned identifier and is
// zero until the server confirms the message. LocalID identifies an
// optimistic entry created on this client before confirmation; it never goes
// over the wire.
type Message struct {
	ID        uint64    `json:"id"`
	ChatID    uint64    `json:"chat_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	LocalID uuid.UUID `json:"-"`
}

// Confirmed reports whether the server has assigned the message an id.
func (m Message) Confirmed() bool {
	return m.ID != 0
}

// Chat is one conversation. The id may start as a client-side placeholder and
// be rewritten once the server assigns the real one.
type Chat struct {
	ID       uint64    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// ChatSummary is the list-view projection of a chat.
type ChatSummary struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// User is the account profile returned by get_user_info.
type User struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Lesson belongs to a topic plan.
type Lesson struct {
	ID          uint64       `json:"id"`
	TopicPlanID uint64       `json:"topic_plan_id"`
	Title       string       `json:"title"`
	Objective   string       `json:"objective"`
	Information string       `json:"information"`
	Tests       []Assessment `json:"tests,omitempty"`
	Completed   bool         `json:"completed"`
}

// TopicPlan is a study plan outline with its lessons.
type TopicPlan struct {
	ID        uint64   `json:"id"`
	Title     string   `json:"title"`
	Objective string   `json:"objective"`
	Standard  string   `json:"standard"`
	Lessons   []Lesson `json:"lessons,omitempty"`
	Completed bool     `json:"completed"`
}

// Question kinds produced by generate_test.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionFillInTheBlank = "fill_in_the_blank"
	QuestionShortAnswer    = "short_answer"
	QuestionMatchOptions   = "match_options"
)

// Question is one generated test question.
type Question struct {
	QuestionText string   `json:"question_text"`
	Type         string   `json:"type"`
	Options      []string `json:"option,omitempty"`
	Answer       string   `json:"answer"`
	AnswerIndex  int      `json:"answer_index"`
	Matches      []string `json:"matches,omitempty"`
}

// Assessment is a generated test for a lesson.
type Assessment struct {
	ID            uint64     `json:"id"`
	LessonID      uint64     `json:"lesson_id"`
	Title         string     `json:"title"`
	QuestionCount int        `json:"question_count"`
	Questions     []Question `json:"questions"`
	Passed        bool       `json:"passed"`
}
