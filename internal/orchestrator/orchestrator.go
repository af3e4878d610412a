// internal/orchestrator/orchestrator.go
//
// The composition root. Owns the stable overlay, the lifecycle store,
// the priority queue and the worker pool, and exposes the public
// command surface every input adapter dispatches into.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/cairnhq/cairn/internal/agent"
	"github.com/cairnhq/cairn/internal/command"
	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/events"
	"github.com/cairnhq/cairn/internal/executor"
	"github.com/cairnhq/cairn/internal/lifecycle"
	"github.com/cairnhq/cairn/internal/merge"
	"github.com/cairnhq/cairn/internal/notifications"
	"github.com/cairnhq/cairn/internal/overlay"
	"github.com/cairnhq/cairn/internal/queue"
	"github.com/cairnhq/cairn/internal/signals"
	"github.com/cairnhq/cairn/internal/watcher"
	"github.com/cairnhq/cairn/internal/workspace"
)

var (
	// ErrNotFound marks an unknown agent id.
	ErrNotFound = errors.New("unknown agent")
	// ErrInvalidState marks a command disallowed by the agent's state.
	ErrInvalidState = errors.New("invalid agent state")
	// ErrNotInitialized marks use before Initialize.
	ErrNotInitialized = errors.New("orchestrator not initialized")
)

// LLM is the language-model surface the orchestrator depends on:
// templated script generation plus raw prompts for ask_llm.
type LLM interface {
	Generate(task string) (string, error)
	Ask(prompt string) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	ProjectRoot string
	CairnHome   string
	Config      *config.Config

	// LLM is required; Publisher and Notifier default to no-ops.
	LLM       LLM
	Publisher events.Publisher
	Notifier  *notifications.Notifier
}

// Orchestrator manages the full agent lifecycle.
type Orchestrator struct {
	projectRoot string
	cairnHome   string
	agentfsDir  string
	cfg         *config.Config

	mu           sync.Mutex
	activeAgents map[string]*agent.Context

	stable    *overlay.Overlay
	bin       *overlay.Overlay
	lifecycle *lifecycle.Store
	queue     *queue.Queue

	llm          LLM
	exec         *executor.Executor
	signals      *signals.Handler
	watcher      *watcher.Watcher
	materializer *workspace.Materializer
	publisher    events.Publisher
	notifier     *notifications.Notifier

	sem     chan struct{}
	mergeMu sync.Mutex

	stateFile   string
	initialized bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an orchestrator; call Initialize before use.
func New(opts Options) (*Orchestrator, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	projectRoot, err := config.ResolveProjectRoot(opts.ProjectRoot, cfg)
	if err != nil {
		return nil, err
	}
	cairnHome, err := config.ResolveHome(opts.CairnHome, cfg)
	if err != nil {
		return nil, err
	}

	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	o := &Orchestrator{
		projectRoot:  projectRoot,
		cairnHome:    cairnHome,
		agentfsDir:   filepath.Join(projectRoot, ".agentfs"),
		cfg:          cfg,
		activeAgents: make(map[string]*agent.Context),
		queue:        queue.New(),
		llm:          opts.LLM,
		publisher:    publisher,
		notifier:     opts.Notifier,
		sem:          make(chan struct{}, cfg.Orchestrator.MaxConcurrentAgents),
		stateFile:    filepath.Join(cairnHome, "state", "orchestrator.json"),
	}
	o.exec = executor.New(executor.Limits{
		MaxDuration:       durationFromSeconds(cfg.Executor.MaxExecutionTime),
		MaxMemoryBytes:    cfg.Executor.MaxMemoryBytes,
		MaxRecursionDepth: cfg.Executor.MaxRecursionDepth,
	})
	return o, nil
}

// Initialize creates scratch directories, opens the stable overlay and
// the lifecycle backing, constructs the adapters, runs recovery, and
// starts the worker pool.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(o.agentfsDir, 0755); err != nil {
		return fmt.Errorf("create agentfs directory: %w", err)
	}
	for _, dir := range []string{"workspaces", "signals", "state"} {
		if err := os.MkdirAll(filepath.Join(o.cairnHome, dir), 0755); err != nil {
			return fmt.Errorf("create %s directory: %w", dir, err)
		}
	}

	var err error
	o.stable, err = overlay.Open(filepath.Join(o.agentfsDir, "stable.db"), nil)
	if err != nil {
		return fmt.Errorf("open stable overlay: %w", err)
	}
	o.bin, err = overlay.Open(filepath.Join(o.agentfsDir, "bin.db"), nil)
	if err != nil {
		return fmt.Errorf("open bin overlay: %w", err)
	}
	o.lifecycle = lifecycle.NewStore(o.bin)

	o.watcher = watcher.New(o.projectRoot, o.stable)
	o.signals = signals.New(o.cairnHome, o, o.cfg.Orchestrator.EnableSignalPolling)
	o.materializer = workspace.New(o.cairnHome, o.stable)

	if err := o.recover(); err != nil {
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.workerLoop(workerCtx)
	}()

	o.initialized = true
	o.persistState()
	return nil
}

// Signals returns the signal adapter; available after Initialize.
func (o *Orchestrator) Signals() *signals.Handler {
	return o.signals
}

// Watcher returns the host-file watcher; available after Initialize.
func (o *Orchestrator) Watcher() *watcher.Watcher {
	return o.watcher
}

// Stable returns the stable overlay; available after Initialize.
func (o *Orchestrator) Stable() *overlay.Overlay {
	return o.stable
}

// Close stops the worker pool and releases the shared overlays.
// In-flight lifecycles run to completion first.
func (o *Orchestrator) Close() error {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	o.mu.Lock()
	for _, ctx := range o.activeAgents {
		if ctx.Overlay != nil {
			ctx.Overlay.Close()
		}
	}
	o.activeAgents = make(map[string]*agent.Context)
	o.mu.Unlock()

	o.publisher.Close()

	var firstErr error
	if o.bin != nil {
		if err := o.bin.Close(); err != nil {
			firstErr = err
		}
	}
	if o.stable != nil {
		if err := o.stable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SubmitCommand dispatches a normalized command. Queue returns after
// the record is persisted and the agent enqueued; Accept returns after
// the merge completes.
func (o *Orchestrator) SubmitCommand(cmd *command.Command) (*command.Result, error) {
	if !o.initialized {
		return nil, ErrNotInitialized
	}

	switch cmd.Type {
	case command.TypeQueue:
		agentID, err := o.SpawnAgent(cmd.Task, cmd.Priority)
		if err != nil {
			return nil, err
		}
		return &command.Result{Type: cmd.Type, OK: true, AgentID: agentID}, nil

	case command.TypeAccept:
		if err := o.AcceptAgent(cmd.AgentID); err != nil {
			return nil, err
		}
		return &command.Result{Type: cmd.Type, OK: true, AgentID: cmd.AgentID}, nil

	case command.TypeReject:
		if err := o.RejectAgent(cmd.AgentID); err != nil {
			return nil, err
		}
		return &command.Result{Type: cmd.Type, OK: true, AgentID: cmd.AgentID}, nil

	case command.TypeStatus:
		payload, err := o.AgentStatus(cmd.AgentID)
		if err != nil {
			return nil, err
		}
		return &command.Result{Type: cmd.Type, OK: true, AgentID: cmd.AgentID, Payload: payload}, nil

	case command.TypeListAgents:
		agents, err := o.ListAgents()
		if err != nil {
			return nil, err
		}
		return &command.Result{Type: cmd.Type, OK: true, Payload: map[string]any{"agents": agents}}, nil
	}

	return nil, fmt.Errorf("%w: unsupported type %q", command.ErrInvalidCommand, cmd.Type)
}

// SpawnAgent creates an agent record and queues it for execution.
func (o *Orchestrator) SpawnAgent(task string, priority queue.TaskPriority) (string, error) {
	if !o.initialized {
		return "", ErrNotInitialized
	}
	if !priority.Valid() {
		priority = queue.PriorityNormal
	}

	agentID := "agent-" + uuid.New().String()[:8]
	agentDB := filepath.Join(o.agentfsDir, agentID+".db")

	ov, err := overlay.Open(agentDB, o.stable)
	if err != nil {
		return "", fmt.Errorf("open agent overlay: %w", err)
	}

	ctx := agent.NewContext(agentID, task, priority, ov)

	o.mu.Lock()
	o.activeAgents[agentID] = ctx
	o.mu.Unlock()

	if err := o.saveRecord(ctx); err != nil {
		o.mu.Lock()
		delete(o.activeAgents, agentID)
		o.mu.Unlock()
		ov.Close()
		return "", err
	}

	o.queue.Enqueue(agentID, priority)
	o.publishState(ctx)
	o.persistState()
	return agentID, nil
}

// AcceptAgent merges the agent's edits into stable and retires it.
// Only agents in reviewing can be accepted.
func (o *Orchestrator) AcceptAgent(agentID string) error {
	ctx, err := o.takeReviewing(agentID, agent.StateAccepted)
	if err != nil {
		return err
	}

	var changed []string
	if ctx.Submission != nil {
		changed = ctx.Submission.ChangedFiles
	}

	o.mergeMu.Lock()
	n, mergeErr := merge.Merge(ctx.Overlay, o.stable, changed)
	o.mergeMu.Unlock()
	if mergeErr != nil {
		fmt.Printf("[orchestrator] merge %s: %v\n", agentID, mergeErr)
	} else {
		fmt.Printf("[orchestrator] merged %d files from %s into stable\n", n, agentID)
	}

	if err := o.TrashAgent(agentID); err != nil {
		return err
	}
	o.persistState()
	return nil
}

// RejectAgent discards the agent's edits and retires it.
func (o *Orchestrator) RejectAgent(agentID string) error {
	if _, err := o.takeReviewing(agentID, agent.StateRejected); err != nil {
		return err
	}
	if err := o.TrashAgent(agentID); err != nil {
		return err
	}
	o.persistState()
	return nil
}

// takeReviewing transitions a reviewing agent to the given terminal
// state and persists the record before any side effects run. The
// persist happens outside the map mutex; no lock is held across
// storage I/O.
func (o *Orchestrator) takeReviewing(agentID string, next agent.State) (*agent.Context, error) {
	o.mu.Lock()
	ctx, ok := o.activeAgents[agentID]
	if !ok {
		o.mu.Unlock()
		if _, err := o.lifecycle.Load(agentID); err == nil {
			return nil, fmt.Errorf("%w: agent %s has no live context", ErrInvalidState, agentID)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	if ctx.State != agent.StateReviewing {
		state := ctx.State
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: agent %s is %s, expected reviewing", ErrInvalidState, agentID, state)
	}

	ctx.Transition(next)
	o.mu.Unlock()

	if err := o.saveRecord(ctx); err != nil {
		return nil, err
	}
	o.publishState(ctx)
	return ctx, nil
}

// TrashAgent releases an agent's runtime resources: the overlay handle
// is closed, the backing database is renamed into the bin- namespace
// out of the active agent-id names, the final record points at the
// trashed location, and the preview workspace is removed. Recovery
// works from the active records, so an errored agent's trashed backing
// is reopened on restart. Idempotent.
func (o *Orchestrator) TrashAgent(agentID string) error {
	o.mu.Lock()
	ctx, ok := o.activeAgents[agentID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.activeAgents, agentID)
	o.mu.Unlock()

	if ctx.Overlay != nil {
		if err := ctx.Overlay.Close(); err != nil {
			fmt.Printf("[orchestrator] close overlay %s: %v\n", agentID, err)
		}
	}

	agentDB := filepath.Join(o.agentfsDir, agentID+".db")
	binDB := filepath.Join(o.agentfsDir, "bin-"+agentID+".db")
	if _, err := os.Stat(agentDB); err == nil {
		if _, err := os.Stat(binDB); os.IsNotExist(err) {
			if err := os.Rename(agentDB, binDB); err != nil {
				fmt.Printf("[orchestrator] trash %s: %v\n", agentID, err)
			}
		}
	}

	record := o.recordFromContext(ctx)
	record.OverlayLocation = binDB
	if err := o.lifecycle.Save(record); err != nil {
		fmt.Printf("[orchestrator] save trashed record %s: %v\n", agentID, err)
	}

	if o.materializer != nil {
		if err := o.materializer.Cleanup(agentID); err != nil {
			fmt.Printf("[orchestrator] cleanup workspace %s: %v\n", agentID, err)
		}
	}

	o.persistState()
	return nil
}

// AgentStatus reports an agent's state, preferring live context over
// the persisted record.
func (o *Orchestrator) AgentStatus(agentID string) (map[string]any, error) {
	o.mu.Lock()
	if ctx, ok := o.activeAgents[agentID]; ok {
		payload := statusPayload(string(ctx.State), ctx.Task, int(ctx.Priority), ctx.Error, ctx.Submission)
		o.mu.Unlock()
		return payload, nil
	}
	o.mu.Unlock()

	record, err := o.lifecycle.Load(agentID)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, agentID)
		}
		return nil, err
	}
	return statusPayload(string(record.State), record.Task, record.Priority, record.Error, record.Submission), nil
}

// ListAgents returns the union of live and persisted agents,
// de-duplicated by id with the live view winning.
func (o *Orchestrator) ListAgents() (map[string]map[string]any, error) {
	agents := make(map[string]map[string]any)

	o.mu.Lock()
	for id, ctx := range o.activeAgents {
		agents[id] = statusPayload(string(ctx.State), ctx.Task, int(ctx.Priority), ctx.Error, ctx.Submission)
	}
	o.mu.Unlock()

	records, err := o.lifecycle.ListAll()
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if _, ok := agents[record.AgentID]; ok {
			continue
		}
		agents[record.AgentID] = statusPayload(string(record.State), record.Task, record.Priority, record.Error, record.Submission)
	}
	return agents, nil
}

// CleanupCompletedAgents applies the retention policy to terminal
// records, returning the number removed.
func (o *Orchestrator) CleanupCompletedAgents() (int, error) {
	if !o.initialized {
		return 0, ErrNotInitialized
	}
	return o.lifecycle.CleanupOld(durationFromSeconds(float64(o.cfg.Orchestrator.RetentionSeconds)))
}

func statusPayload(state, task string, priority int, errMsg string, submission *agent.Submission) map[string]any {
	payload := map[string]any{
		"state":    state,
		"task":     task,
		"priority": priority,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if submission != nil {
		payload["submission"] = map[string]any{
			"summary":       submission.Summary,
			"changed_files": submission.ChangedFiles,
		}
	}
	return payload
}

// saveRecord persists the context's current shape to the lifecycle
// store; this is the canonical write for every transition. The field
// snapshot is taken under the map mutex, the store write outside it.
func (o *Orchestrator) saveRecord(ctx *agent.Context) error {
	record := o.recordFromContext(ctx)
	record.OverlayLocation = o.overlayLocation(record.AgentID)
	return o.lifecycle.Save(record)
}

// recordFromContext snapshots the context's fields. OverlayLocation is
// left for the caller.
func (o *Orchestrator) recordFromContext(ctx *agent.Context) *lifecycle.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	return &lifecycle.Record{
		AgentID:        ctx.AgentID,
		Task:           ctx.Task,
		Priority:       int(ctx.Priority),
		State:          ctx.State,
		CreatedAt:      float64(ctx.CreatedAt.UnixNano()) / 1e9,
		StateChangedAt: float64(ctx.StateChangedAt.UnixNano()) / 1e9,
		Submission:     ctx.Submission,
		Error:          ctx.Error,
	}
}

// overlayLocation returns the agent's current backing path: the active
// database if it still exists, otherwise the trashed bin- location.
func (o *Orchestrator) overlayLocation(agentID string) string {
	location := filepath.Join(o.agentfsDir, agentID+".db")
	if _, err := os.Stat(location); os.IsNotExist(err) {
		location = filepath.Join(o.agentfsDir, "bin-"+agentID+".db")
	}
	return location
}

func (o *Orchestrator) publishState(ctx *agent.Context) {
	o.mu.Lock()
	event := events.StateEvent{
		AgentID: ctx.AgentID,
		State:   ctx.State,
		Task:    ctx.Task,
		Error:   ctx.Error,
	}
	o.mu.Unlock()
	o.publisher.PublishState(event)
}
