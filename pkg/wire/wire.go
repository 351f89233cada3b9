// Package wire defines the text-frame envelope exchanged with the BibleDive
// gateway and the JSON codec for it.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Command namespaces. The gateway routes an inbound command to a backend
// service by this value.
const (
	TypeChat   = "chat"
	TypeUser   = "user"
	TypeLesson = "lesson"
	TypeTest   = "test"
)

// Outbound action names.
const (
	ActionStartMessageStream   = "start_message_stream"
	ActionGetChatSummaries     = "get_chat_summaries"
	ActionGetRecentMessages    = "get_recent_messages"
	ActionDeleteChatByChatID   = "delete_chat_by_chat_id"
	ActionDeleteAllChatsByUID  = "delete_all_chats_by_user_id"
	ActionGetUserInfo          = "get_user_info"
	ActionUpdateUserPass       = "update_user_pass"
	ActionVerifyUserPass       = "verify_user_pass"
	ActionDeleteUser           = "delete_user"
	ActionGenerateTopicPlan    = "generate_topic_plan"
	ActionGenerateTopicPlanOvw = "generate_topic_plan_overview"
	ActionGetAllTopicPlansUID  = "get_all_topic_plans_by_uid"
	ActionGetTopicPlanByID     = "get_topic_plan_by_id"
	ActionGenerateLessons      = "generate_lessons"
	ActionGetLessonByID        = "get_lesson_by_id"
	ActionGetAllLessonsByTopic = "get_all_lessons_by_topic_id"
	ActionGenerateTest         = "generate_test"
)

// Unsolicited inbound actions pushed during a message stream.
const (
	ActionMessageFragment = "message_fragment"
	ActionMessageComplete = "message_complete"
)

// RespAction returns the inbound action name paired with an outbound one.
func RespAction(action string) string {
	return action + "_resp"
}

// Command is an outbound frame. Immutable once built; the serialized form is
// what gets queued while the connection is down.
type Command struct {
	Type   string          `json:"Type"`
	Action string          `json:"Action"`
	JWT    string          `json:"JWT"`
	Ref    string          `json:"Ref,omitempty"`
	Data   json.RawMessage `json:"Data"`
}

// Frame is an inbound frame. Data is left raw so each consumer can unwrap its
// own payload path.
type Frame struct {
	Action string          `json:"action"`
	Ref    string          `json:"ref,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// ErrEmptyAction reports a decoded frame carrying no action name.
var ErrEmptyAction = errors.New("frame has no action")

// NewCommand builds a command, marshaling the payload. The payload must be
// JSON-encodable.
func NewCommand(typ, action, token string, data any) (Command, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Command{}, fmt.Errorf("failed to encode command data: %w", err)
	}
	return Command{Type: typ, Action: action, JWT: token, Data: raw}, nil
}

// Encode encodes the command into bytes for transmission.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return data, nil
}

// DecodeFrame decodes an inbound text frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Action == "" {
		return Frame{}, ErrEmptyAction
	}
	return f, nil
}
