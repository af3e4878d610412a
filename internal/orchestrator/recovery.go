// internal/orchestrator/recovery.go
//
// Startup recovery: the lifecycle store is the only state that survives
// a restart, and this is the only path by which it becomes live again.
package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/cairnhq/cairn/internal/agent"
	"github.com/cairnhq/cairn/internal/overlay"
	"github.com/cairnhq/cairn/internal/queue"
)

// recover rebuilds the in-memory agent map from persisted records.
// Agents recorded as queued are re-enqueued; other non-terminal states
// are left as-is for the operator to decide on. A record whose overlay
// backing disappeared is marked errored rather than crashing startup.
func (o *Orchestrator) recover() error {
	records, err := o.lifecycle.ListActive()
	if err != nil {
		return fmt.Errorf("recovery: list active records: %w", err)
	}

	for _, record := range records {
		if _, err := os.Stat(record.OverlayLocation); os.IsNotExist(err) {
			record.State = agent.StateErrored
			record.Error = "overlay missing after restart"
			record.StateChangedAt = float64(time.Now().UnixNano()) / 1e9
			if err := o.lifecycle.Save(record); err != nil {
				fmt.Printf("[recovery] persist errored %s: %v\n", record.AgentID, err)
			}
			continue
		}

		ov, err := overlay.Open(record.OverlayLocation, o.stable)
		if err != nil {
			record.State = agent.StateErrored
			record.Error = fmt.Sprintf("failed to open agent overlay: %v", err)
			record.StateChangedAt = float64(time.Now().UnixNano()) / 1e9
			if err := o.lifecycle.Save(record); err != nil {
				fmt.Printf("[recovery] persist errored %s: %v\n", record.AgentID, err)
			}
			continue
		}

		ctx := &agent.Context{
			AgentID:        record.AgentID,
			Task:           record.Task,
			Priority:       queue.TaskPriority(record.Priority),
			State:          record.State,
			Overlay:        ov,
			Submission:     record.Submission,
			Error:          record.Error,
			CreatedAt:      time.Unix(0, int64(record.CreatedAt*1e9)),
			StateChangedAt: time.Unix(0, int64(record.StateChangedAt*1e9)),
		}

		o.mu.Lock()
		o.activeAgents[record.AgentID] = ctx
		o.mu.Unlock()

		if ctx.State == agent.StateQueued {
			o.queue.Enqueue(ctx.AgentID, ctx.Priority)
		}
	}

	return nil
}
