package eventqueue

import "sync"

// Registry owns one Queue per task-id, created on first use. C6
// (taskmanager) publishes through it; C7/C8 (dispatcher/SSE) subscribe
// through it.
type Registry struct {
	capacity int
	subBuf   int

	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry constructs a Registry whose queues use the given ring and
// subscriber buffer sizes.
func NewRegistry(capacity, subBuf int) *Registry {
	return &Registry{capacity: capacity, subBuf: subBuf, queues: make(map[string]*Queue)}
}

// Queue returns the Queue for taskID, creating it if necessary.
func (r *Registry) Queue(taskID string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[taskID]
	if !ok {
		q = NewWithCapacity(r.capacity, r.subBuf)
		r.queues[taskID] = q
	}
	return q
}

// Drop releases a task's queue once it is no longer needed (e.g. after
// checkpoint retention expires it). Any live subscribers keep the *Queue
// they already hold; only the registry's reference is removed.
func (r *Registry) Drop(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, taskID)
}
