package engine

import "time"

// Task is one pending fetch. Tasks live only in memory.
type Task struct {
	Key         string
	DisplayForm string
	EnqueuedAt  time.Time
}

// TaskQueue is a deduplicated FIFO plus the in-flight set. A key is queued,
// in flight, or neither; never both. Owned by the scheduler goroutine.
type TaskQueue struct {
	tasks    []Task
	queued   map[string]struct{}
	inflight map[string]struct{}
}

// NewTaskQueue returns an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		queued:   make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Enqueue appends a task unless the key is already queued or in flight.
func (q *TaskQueue) Enqueue(key, displayForm string, now time.Time) bool {
	if q.IsQueued(key) || q.IsInFlight(key) {
		return false
	}
	q.queued[key] = struct{}{}
	q.tasks = append(q.tasks, Task{Key: key, DisplayForm: displayForm, EnqueuedAt: now})
	return true
}

// DequeueNext pops the oldest task and removes it from the queued set.
func (q *TaskQueue) DequeueNext() (Task, bool) {
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	delete(q.queued, task.Key)
	return task, true
}

// MarkInFlight records a dispatched key.
func (q *TaskQueue) MarkInFlight(key string) {
	q.inflight[key] = struct{}{}
}

// MarkDone releases a key's in-flight slot.
func (q *TaskQueue) MarkDone(key string) {
	delete(q.inflight, key)
}

// Len is the number of queued tasks.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Active is the number of in-flight fetches.
func (q *TaskQueue) Active() int {
	return len(q.inflight)
}

// IsQueued reports whether key waits in the queue.
func (q *TaskQueue) IsQueued(key string) bool {
	_, ok := q.queued[key]
	return ok
}

// IsInFlight reports whether key is being fetched.
func (q *TaskQueue) IsInFlight(key string) bool {
	_, ok := q.inflight[key]
	return ok
}
