// internal/command/command_test.go
package command

import (
	"errors"
	"testing"

	"github.com/cairnhq/cairn/internal/queue"
)

func TestParseQueueCommand(t *testing.T) {
	cmd, err := Parse("queue", map[string]any{"task": "fix the build"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Type != TypeQueue {
		t.Errorf("type = %s, want queue", cmd.Type)
	}
	if cmd.Task != "fix the build" {
		t.Errorf("task = %q", cmd.Task)
	}
	if cmd.Priority != queue.PriorityNormal {
		t.Errorf("priority = %v, want normal", cmd.Priority)
	}
}

func TestParseSpawnAliasDefaultsHigh(t *testing.T) {
	cmd, err := Parse("spawn", map[string]any{"task": "t"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Type != TypeQueue {
		t.Errorf("spawn should normalize to queue, got %s", cmd.Type)
	}
	if cmd.Priority != queue.PriorityHigh {
		t.Errorf("spawn priority = %v, want high", cmd.Priority)
	}
}

func TestParseSpawnExplicitPriorityWins(t *testing.T) {
	cmd, err := Parse("spawn", map[string]any{"task": "t", "priority": float64(1)})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Priority != queue.PriorityLow {
		t.Errorf("explicit priority should win, got %v", cmd.Priority)
	}
}

func TestParseTagNormalization(t *testing.T) {
	cmd, err := Parse("List-Agents", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cmd.Type != TypeListAgents {
		t.Errorf("type = %s, want list_agents", cmd.Type)
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	tests := []struct {
		tag     string
		payload map[string]any
	}{
		{"queue", nil},
		{"queue", map[string]any{"task": "   "}},
		{"accept", nil},
		{"reject", map[string]any{}},
		{"status", map[string]any{"task": "not an id"}},
	}

	for _, tt := range tests {
		_, err := Parse(tt.tag, tt.payload)
		if !errors.Is(err, ErrInvalidCommand) {
			t.Errorf("Parse(%q, %v): expected ErrInvalidCommand, got %v", tt.tag, tt.payload, err)
		}
	}
}

func TestParseRejectsUnknownTag(t *testing.T) {
	_, err := Parse("destroy", map[string]any{"agent_id": "agent-1"})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestParseRejectsOutOfRangePriority(t *testing.T) {
	_, err := Parse("queue", map[string]any{"task": "t", "priority": float64(99)})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	commands := []*Command{
		{Type: TypeQueue, Task: "do a thing", Priority: queue.PriorityUrgent},
		{Type: TypeAccept, AgentID: "agent-ab12cd34"},
		{Type: TypeReject, AgentID: "agent-ff00ff00"},
		{Type: TypeStatus, AgentID: "agent-12345678"},
		{Type: TypeListAgents},
	}

	for _, original := range commands {
		payload := original.Payload()
		tag, _ := payload["type"].(string)
		parsed, err := Parse(tag, payload)
		if err != nil {
			t.Fatalf("round trip Parse(%s) error = %v", tag, err)
		}
		if *parsed != *original {
			t.Errorf("round trip mismatch: got %+v, want %+v", parsed, original)
		}
	}
}
