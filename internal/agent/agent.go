// internal/agent/agent.go
package agent

import (
	"time"

	"github.com/cairnhq/cairn/internal/overlay"
	"github.com/cairnhq/cairn/internal/queue"
)

// State is an agent's position in its lifecycle.
type State string

const (
	StateQueued     State = "queued"
	StateSpawning   State = "spawning"
	StateGenerating State = "generating"
	StateExecuting  State = "executing"
	StateSubmitting State = "submitting"
	StateReviewing  State = "reviewing"
	StateAccepted   State = "accepted"
	StateRejected   State = "rejected"
	StateErrored    State = "errored"
)

// Terminal reports whether the lifecycle can progress past s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateRejected || s == StateErrored
}

// Running reports whether s is one of the actively-executing phases.
func (s State) Running() bool {
	switch s {
	case StateSpawning, StateGenerating, StateExecuting, StateSubmitting:
		return true
	}
	return false
}

// Submission is the script's self-reported summary of its work.
type Submission struct {
	Summary      string   `json:"summary"`
	ChangedFiles []string `json:"changed_files"`
}

// Context is the in-memory runtime state for one agent. It is
// reconstructed from the lifecycle record on recovery and destroyed
// when the agent leaves memory.
type Context struct {
	AgentID  string
	Task     string
	Priority queue.TaskPriority
	State    State

	Overlay       *overlay.Overlay
	GeneratedCode string
	Submission    *Submission
	Error         string

	CreatedAt      time.Time
	StateChangedAt time.Time
}

// NewContext creates a queued context for a fresh agent.
func NewContext(agentID, task string, priority queue.TaskPriority, ov *overlay.Overlay) *Context {
	now := time.Now()
	return &Context{
		AgentID:        agentID,
		Task:           task,
		Priority:       priority,
		State:          StateQueued,
		Overlay:        ov,
		CreatedAt:      now,
		StateChangedAt: now,
	}
}

// Transition moves the context to a new state and stamps the change.
func (c *Context) Transition(next State) {
	c.State = next
	c.StateChangedAt = time.Now()
}
