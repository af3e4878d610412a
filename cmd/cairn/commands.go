// cmd/cairn/commands.go
//
// Client-side subcommands. They talk to a running `cairn up` through
// the signal directory and read agent state from the lifecycle store.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/lifecycle"
	"github.com/cairnhq/cairn/internal/overlay"
	"github.com/cairnhq/cairn/internal/queue"
	"github.com/cairnhq/cairn/internal/signals"
)

func newSpawnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spawn <task>",
		Short: "Spawn an agent at high priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTaskSignal("spawn", args[0], queue.PriorityHigh)
		},
	}
}

func newQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue <task>",
		Short: "Queue an agent task at normal priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTaskSignal("queue", args[0], queue.PriorityNormal)
		},
	}
}

func newAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <agent_id>",
		Short: "Accept an agent's changes and merge them into stable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeReviewSignal("accept", args[0])
		},
	}
}

func newRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <agent_id>",
		Short: "Reject an agent's changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeReviewSignal("reject", args[0])
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <agent_id>",
		Short: "Show one agent's lifecycle state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args[0])
		},
	}
}

func newListAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-agents",
		Short: "List all known agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListAgents()
		},
	}
}

func writeTaskSignal(kind, task string, priority queue.TaskPriority) error {
	home, err := config.ResolveHome(flagCairnHome, nil)
	if err != nil {
		return err
	}

	payload := map[string]any{"task": task, "priority": int(priority)}
	if _, err := signals.WriteSignal(home, kind, payload, uuid.New().String()[:8]); err != nil {
		return err
	}
	fmt.Printf("queued %s request\n", kind)
	return nil
}

func writeReviewSignal(kind, agentID string) error {
	home, err := config.ResolveHome(flagCairnHome, nil)
	if err != nil {
		return err
	}

	payload := map[string]any{"agent_id": agentID}
	if _, err := signals.WriteSignal(home, kind, payload, agentID); err != nil {
		return err
	}
	fmt.Printf("queued %s for %s\n", kind, agentID)
	return nil
}

// openLifecycleStore opens the bin overlay read-path for CLI queries.
// The store is the authority; the orchestrator snapshot file is only a
// display artifact.
func openLifecycleStore() (*lifecycle.Store, func(), error) {
	projectRoot, err := config.ResolveProjectRoot(flagProjectRoot, nil)
	if err != nil {
		return nil, nil, err
	}

	bin, err := overlay.Open(filepath.Join(projectRoot, ".agentfs", "bin.db"), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open lifecycle store: %w", err)
	}
	return lifecycle.NewStore(bin), func() { bin.Close() }, nil
}

func runStatus(agentID string) error {
	store, closeStore, err := openLifecycleStore()
	if err != nil {
		return err
	}
	defer closeStore()

	record, err := store.Load(agentID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return fmt.Errorf("unknown agent: %s", agentID)
		}
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runListAgents() error {
	store, closeStore, err := openLifecycleStore()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No agents")
		return nil
	}

	for _, record := range records {
		fmt.Printf("%s\t%s\t%s\n", record.AgentID, record.State, record.Task)
	}
	return nil
}
