// internal/queue/queue.go
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// TaskPriority orders queued agent tasks. Higher values dispatch first.
type TaskPriority int

const (
	PriorityLow    TaskPriority = 1
	PriorityNormal TaskPriority = 2
	PriorityHigh   TaskPriority = 3
	PriorityUrgent TaskPriority = 4
)

// Valid reports whether p is one of the defined priority levels.
func (p TaskPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// QueuedTask is one entry in the queue.
type QueuedTask struct {
	AgentID    string
	Priority   TaskPriority
	EnqueuedAt time.Time

	seq uint64 // process-local tie-break for identical timestamps
}

// taskHeap orders by (-priority, enqueuedAt, seq).
type taskHeap []*QueuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*QueuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe blocking priority queue over agent IDs.
// Concurrency gating and completion counting belong to the worker pool,
// not here.
type Queue struct {
	mu      sync.Mutex
	notEmpty *sync.Cond
	tasks   taskHeap
	nextSeq uint64
	now     func() time.Time
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{now: time.Now}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds an agent to the queue and wakes one waiter.
func (q *Queue) Enqueue(agentID string, priority TaskPriority) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task := &QueuedTask{
		AgentID:    agentID,
		Priority:   priority,
		EnqueuedAt: q.now(),
		seq:        q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.tasks, task)
	q.notEmpty.Signal()
}

// TryDequeue returns the highest-priority task, or nil immediately when
// the queue is empty.
func (q *Queue) TryDequeue() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}
	return heap.Pop(&q.tasks).(*QueuedTask)
}

// DequeueWait blocks until a task is available or the context is
// cancelled. Returns ctx.Err() on cancellation.
func (q *Queue) DequeueWait(ctx context.Context) (*QueuedTask, error) {
	// Wake the cond wait when the context ends so the caller can
	// observe cancellation.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.notEmpty.Wait()
	}
	return heap.Pop(&q.tasks).(*QueuedTask), nil
}

// Size returns the number of queued tasks. The value may be stale by the
// time the caller acts on it.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
