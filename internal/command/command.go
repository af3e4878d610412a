// internal/command/command.go
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cairnhq/cairn/internal/queue"
)

// ErrInvalidCommand marks malformed or incomplete command input.
var ErrInvalidCommand = errors.New("invalid command")

// Type identifies a high-level orchestrator operation.
type Type string

const (
	TypeQueue      Type = "queue"
	TypeAccept     Type = "accept"
	TypeReject     Type = "reject"
	TypeStatus     Type = "status"
	TypeListAgents Type = "list_agents"
)

// Command is the normalized request object shared by every input
// adapter: CLI, signal files, HTTP, and direct calls.
type Command struct {
	Type     Type
	AgentID  string
	Task     string
	Priority queue.TaskPriority // only meaningful for TypeQueue
}

// Parse normalizes a raw type tag plus payload map into a Command.
//
// The tag "spawn" is an alias for queue with a HIGH priority default; an
// explicit priority in the payload always wins. Dashes fold to
// underscores and case is lowered before matching.
func Parse(typeTag string, payload map[string]any) (*Command, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(typeTag), "-", "_"))

	spawnAlias := false
	if normalized == "spawn" {
		normalized = string(TypeQueue)
		spawnAlias = true
	}

	var cmdType Type
	switch Type(normalized) {
	case TypeQueue, TypeAccept, TypeReject, TypeStatus, TypeListAgents:
		cmdType = Type(normalized)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidCommand, typeTag)
	}

	cmd := &Command{Type: cmdType}

	if v, ok := payload["agent_id"].(string); ok {
		cmd.AgentID = v
	}
	if v, ok := payload["task"].(string); ok {
		cmd.Task = v
	}

	switch cmdType {
	case TypeQueue:
		if strings.TrimSpace(cmd.Task) == "" {
			return nil, fmt.Errorf("%w: queue commands require task", ErrInvalidCommand)
		}
		defaultPriority := queue.PriorityNormal
		if spawnAlias {
			defaultPriority = queue.PriorityHigh
		}
		p, err := parsePriority(payload["priority"], defaultPriority)
		if err != nil {
			return nil, err
		}
		cmd.Priority = p
	case TypeAccept, TypeReject, TypeStatus:
		if strings.TrimSpace(cmd.AgentID) == "" {
			return nil, fmt.Errorf("%w: %s commands require agent_id", ErrInvalidCommand, cmdType)
		}
	}

	return cmd, nil
}

// parsePriority accepts the numeric forms JSON decoding produces.
func parsePriority(raw any, fallback queue.TaskPriority) (queue.TaskPriority, error) {
	if raw == nil {
		return fallback, nil
	}

	var p queue.TaskPriority
	switch v := raw.(type) {
	case float64:
		p = queue.TaskPriority(int(v))
	case int:
		p = queue.TaskPriority(v)
	case queue.TaskPriority:
		p = v
	default:
		return 0, fmt.Errorf("%w: priority must be numeric, got %T", ErrInvalidCommand, raw)
	}

	if !p.Valid() {
		return 0, fmt.Errorf("%w: priority %d out of range", ErrInvalidCommand, int(p))
	}
	return p, nil
}

// Payload serializes the command back to its canonical payload form,
// the inverse of Parse for every canonical command.
func (c *Command) Payload() map[string]any {
	payload := map[string]any{"type": string(c.Type)}
	if c.AgentID != "" {
		payload["agent_id"] = c.AgentID
	}
	if c.Task != "" {
		payload["task"] = c.Task
	}
	if c.Type == TypeQueue {
		payload["priority"] = int(c.Priority)
	}
	return payload
}

// Result is the normalized response returned by command dispatch.
type Result struct {
	Type    Type           `json:"type"`
	OK      bool           `json:"ok"`
	AgentID string         `json:"agent_id,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}
