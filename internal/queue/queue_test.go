// internal/queue/queue_test.go
package queue

import (
	"context"
	"testing"
	"time"
)

func TestQueuePriorityOrdering(t *testing.T) {
	q := New()

	q.Enqueue("agent-low", PriorityLow)
	q.Enqueue("agent-urgent", PriorityUrgent)
	q.Enqueue("agent-high", PriorityHigh)

	want := []string{"agent-urgent", "agent-high", "agent-low"}
	for _, expected := range want {
		task := q.TryDequeue()
		if task == nil {
			t.Fatal("TryDequeue returned nil with tasks queued")
		}
		if task.AgentID != expected {
			t.Errorf("dequeue order: got %s, want %s", task.AgentID, expected)
		}
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := New()

	q.Enqueue("first", PriorityNormal)
	q.Enqueue("second", PriorityNormal)
	q.Enqueue("third", PriorityNormal)

	for _, expected := range []string{"first", "second", "third"} {
		task := q.TryDequeue()
		if task.AgentID != expected {
			t.Errorf("FIFO order: got %s, want %s", task.AgentID, expected)
		}
	}
}

func TestTryDequeueEmptyReturnsNil(t *testing.T) {
	q := New()
	if task := q.TryDequeue(); task != nil {
		t.Errorf("expected nil from empty queue, got %+v", task)
	}
}

func TestDequeueWaitBlocksUntilEnqueue(t *testing.T) {
	q := New()

	done := make(chan *QueuedTask, 1)
	go func() {
		task, err := q.DequeueWait(context.Background())
		if err != nil {
			t.Errorf("DequeueWait error: %v", err)
		}
		done <- task
	}()

	// Give the waiter time to block.
	select {
	case <-done:
		t.Fatal("DequeueWait returned before enqueue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue("agent-x", PriorityNormal)

	select {
	case task := <-done:
		if task.AgentID != "agent-x" {
			t.Errorf("got %s, want agent-x", task.AgentID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("DequeueWait did not wake after enqueue")
	}
}

func TestDequeueWaitHonorsCancellation(t *testing.T) {
	q := New()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.DequeueWait(ctx)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("DequeueWait did not return after cancel")
	}
}

func TestDequeuedPriorityIsMaximal(t *testing.T) {
	q := New()
	q.Enqueue("a", PriorityLow)
	q.Enqueue("b", PriorityUrgent)
	q.Enqueue("c", PriorityNormal)
	q.Enqueue("d", PriorityHigh)

	prev := PriorityUrgent
	for q.Size() > 0 {
		task := q.TryDequeue()
		if task.Priority > prev {
			t.Errorf("dequeued priority %v after %v", task.Priority, prev)
		}
		prev = task.Priority
	}
}

func TestSize(t *testing.T) {
	q := New()
	if q.Size() != 0 {
		t.Errorf("expected empty queue, got %d", q.Size())
	}
	q.Enqueue("a", PriorityNormal)
	q.Enqueue("b", PriorityNormal)
	if q.Size() != 2 {
		t.Errorf("expected 2, got %d", q.Size())
	}
	q.TryDequeue()
	if q.Size() != 1 {
		t.Errorf("expected 1 after dequeue, got %d", q.Size())
	}
}

func TestPriorityString(t *testing.T) {
	cases := map[TaskPriority]string{
		PriorityLow:     "low",
		PriorityNormal:  "normal",
		PriorityHigh:    "high",
		PriorityUrgent:  "urgent",
		TaskPriority(9): "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", p, got, want)
		}
	}
}
