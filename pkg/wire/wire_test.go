package wire_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

func TestCommandEncodeFieldNames(t *testing.T) {
	cmd, err := wire.NewCommand(wire.TypeChat, wire.ActionGetChatSummaries, "jwt-1", map[string]any{"id": "42"})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	data, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// The gateway matches on exact capitalized field names.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to decode encoded command: %v", err)
	}
	for _, key := range []string{"Type", "Action", "JWT", "Data"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("encoded command missing field %q", key)
		}
	}
	if _, ok := raw["Ref"]; ok {
		t.Error("empty Ref was encoded, want omitted")
	}
}

func TestDecodeFrame(t *testing.T) {
	frame, err := wire.DecodeFrame([]byte(`{"action":"get_user_info_resp","data":{"id":7}}`))
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if frame.Action != wire.RespAction(wire.ActionGetUserInfo) {
		t.Errorf("Action = %q", frame.Action)
	}
	if string(frame.Data) != `{"id":7}` {
		t.Errorf("Data = %s", frame.Data)
	}
}

func TestDecodeFrameMissingAction(t *testing.T) {
	if _, err := wire.DecodeFrame([]byte(`{"data":{}}`)); !errors.Is(err, wire.ErrEmptyAction) {
		t.Errorf("DecodeFrame() error = %v, want ErrEmptyAction", err)
	}
}

func TestDecodeFrameNotJSON(t *testing.T) {
	if _, err := wire.DecodeFrame([]byte("pong")); err == nil {
		t.Error("DecodeFrame() accepted a non-JSON frame")
	}
}
