// internal/orchestrator/runner.go
//
// The worker pool and the per-agent lifecycle runner.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cairnhq/cairn/internal/agent"
	"github.com/cairnhq/cairn/internal/extfuncs"
	"github.com/cairnhq/cairn/internal/notifications"
	"github.com/cairnhq/cairn/internal/overlay"
)

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// workerLoop dequeues agents and runs their lifecycles behind the
// concurrency semaphore. One lifecycle failing never blocks another.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		task, err := o.queue.DequeueWait(ctx)
		if err != nil {
			return
		}

		select {
		case o.sem <- struct{}{}:
		case <-ctx.Done():
			// Shutdown while waiting for a permit: put the task back. Its
			// persisted record is still queued, which is what recovery
			// re-enqueues after a restart.
			o.queue.Enqueue(task.AgentID, task.Priority)
			return
		}

		o.wg.Add(1)
		go func(agentID string) {
			defer o.wg.Done()
			defer func() { <-o.sem }()
			// Shutdown stops dispatch only; a started lifecycle is not
			// cancelled and runs to reviewing or errored.
			o.runAgent(context.WithoutCancel(ctx), agentID)
		}(task.AgentID)
	}
}

// runAgent drives one agent from queued to reviewing or errored. Every
// transition persists the lifecycle record before the next step runs.
func (o *Orchestrator) runAgent(ctx context.Context, agentID string) {
	o.mu.Lock()
	actx, ok := o.activeAgents[agentID]
	o.mu.Unlock()
	if !ok {
		return
	}

	transition := func(next agent.State) error {
		o.mu.Lock()
		actx.Transition(next)
		o.mu.Unlock()
		if err := o.saveRecord(actx); err != nil {
			return err
		}
		o.publishState(actx)
		o.persistState()
		return nil
	}

	fail := func(cause error) {
		o.mu.Lock()
		actx.Error = cause.Error()
		actx.Transition(agent.StateErrored)
		o.mu.Unlock()
		if err := o.saveRecord(actx); err != nil {
			fmt.Printf("[worker] persist errored %s: %v\n", agentID, err)
		}
		o.publishState(actx)
		o.notifyErrored(agentID, cause.Error())
		if err := o.TrashAgent(agentID); err != nil {
			fmt.Printf("[worker] trash %s: %v\n", agentID, err)
		}
	}

	if err := transition(agent.StateSpawning); err != nil {
		fail(err)
		return
	}

	// Generating
	if err := transition(agent.StateGenerating); err != nil {
		fail(err)
		return
	}
	code, err := o.llm.Generate(actx.Task)
	if err != nil {
		fail(err)
		return
	}
	o.mu.Lock()
	actx.GeneratedCode = code
	o.mu.Unlock()

	// Static validation happens before the sandbox ever runs.
	if err := o.exec.Validate(code); err != nil {
		fail(err)
		return
	}

	// Executing
	if err := transition(agent.StateExecuting); err != nil {
		fail(err)
		return
	}
	functions := extfuncs.New(agentID, actx.Overlay, o.llm).Map()
	result := o.exec.Execute(ctx, code, functions, agentID)
	if result.Failed() {
		fail(fmt.Errorf("execution failed (%s): %s", result.Kind, result.Error))
		return
	}

	// Submitting
	if err := transition(agent.StateSubmitting); err != nil {
		fail(err)
		return
	}
	submission, err := readSubmission(actx.Overlay)
	if err != nil {
		fail(err)
		return
	}
	o.mu.Lock()
	actx.Submission = submission
	o.mu.Unlock()

	if o.materializer != nil {
		if _, err := o.materializer.Materialize(agentID, actx.Overlay); err != nil {
			fmt.Printf("[worker] materialize %s: %v\n", agentID, err)
		}
	}

	// Reviewing: terminal for the runner, a human decides from here.
	if err := transition(agent.StateReviewing); err != nil {
		fail(err)
		return
	}
	o.notifyReviewReady(actx)
}

// readSubmission loads the script's submission from the overlay KV.
// Both the canonical tagged form and the legacy untagged form are
// accepted; a missing submission is not fatal.
func readSubmission(ov *overlay.Overlay) (*agent.Submission, error) {
	raw, err := ov.KVGet(extfuncs.SubmissionKey)
	if err != nil {
		if errors.Is(err, overlay.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read submission: %w", err)
	}

	var tagged struct {
		AgentID    string            `json:"agent_id"`
		Submission *agent.Submission `json:"submission"`
	}
	if err := json.Unmarshal([]byte(raw), &tagged); err == nil && tagged.Submission != nil {
		return tagged.Submission, nil
	}

	var legacy agent.Submission
	if err := json.Unmarshal([]byte(raw), &legacy); err == nil && (legacy.Summary != "" || len(legacy.ChangedFiles) > 0) {
		return &legacy, nil
	}

	return nil, fmt.Errorf("read submission: unrecognized payload")
}

func (o *Orchestrator) notifyReviewReady(actx *agent.Context) {
	if o.notifier == nil || !notifications.Supported() {
		return
	}
	if err := o.notifier.NotifyReviewReady(actx.AgentID, actx.Task); err != nil {
		fmt.Printf("[worker] notify %s: %v\n", actx.AgentID, err)
	}
}

func (o *Orchestrator) notifyErrored(agentID, message string) {
	if o.notifier == nil || !notifications.Supported() {
		return
	}
	if err := o.notifier.NotifyErrored(agentID, message); err != nil {
		fmt.Printf("[worker] notify %s: %v\n", agentID, err)
	}
}
