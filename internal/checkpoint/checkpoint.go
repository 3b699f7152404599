// Package checkpoint implements C4, the checkpoint subsystem: durable
// snapshots of task and worker state keyed by "task:<id>" and "thread:<id>",
// a bidirectional task<->thread map, TTL retention per task-state class, and
// write-coalescing so a burst of mutations produces one write, not many.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// TaskKey returns the checkpoint store key for a task-id.
func TaskKey(taskID string) string { return fmt.Sprintf("task:%s", taskID) }

// ThreadKey returns the checkpoint store key for a thread-id.
func ThreadKey(threadID string) string { return fmt.Sprintf("thread:%s", threadID) }

// Store is the durable checkpoint backend contract. Implementations:
// in-memory (this package, mandatory default), redisstore (Pulse-backed),
// mongostore (document-store-backed).
type Store interface {
	// Put writes or overwrites the checkpoint at key, with the given TTL.
	// A zero TTL means "retain indefinitely."
	Put(ctx context.Context, key string, cp a2atypes.Checkpoint, ttl time.Duration) error
	// Get reads the checkpoint at key. ok is false if absent or expired.
	Get(ctx context.Context, key string) (cp a2atypes.Checkpoint, ok bool, err error)
	// Delete removes the checkpoint at key, if present.
	Delete(ctx context.Context, key string) error
	// List returns the checkpoint keys with the given prefix ("task:" or
	// "thread:"), used by recovery-on-start (§4.6). Backends that expire
	// lazily (the Redis index set, Mongo's TTL monitor) can still list a
	// key whose TTL has passed; Get reports such a key as absent.
	List(ctx context.Context, prefix string) ([]string, error)
}

// RetentionPolicy maps a task's terminal/non-terminal state class to a TTL.
// With the config.Default values, completed tasks are retained longest
// and failed tasks shortest; configurable via config.Config.Retention.
type RetentionPolicy struct {
	Active    time.Duration // non-terminal states
	Completed time.Duration
	Failed    time.Duration // failed, canceled, rejected
}

// DefaultRetentionPolicy matches spec.md §4.6's suggested defaults.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		Active:    7 * 24 * time.Hour,
		Completed: 30 * 24 * time.Hour,
		Failed:    3 * 24 * time.Hour,
	}
}

// TTLFor returns the retention duration for a task currently in state s.
func (p RetentionPolicy) TTLFor(s a2atypes.TaskState) time.Duration {
	switch s {
	case a2atypes.StateCompleted:
		return p.Completed
	case a2atypes.StateFailed, a2atypes.StateCanceled, a2atypes.StateRejected:
		return p.Failed
	default:
		return p.Active
	}
}

// ThreadMap is the bidirectional task<->thread association required by
// §4.6 so a worker's conversational state (keyed by thread-id) can be
// recovered starting from a task-id and vice versa.
type ThreadMap struct {
	mu           sync.RWMutex
	taskToThread map[string]string
	threadToTask map[string][]string
}

// NewThreadMap constructs an empty ThreadMap.
func NewThreadMap() *ThreadMap {
	return &ThreadMap{
		taskToThread: make(map[string]string),
		threadToTask: make(map[string][]string),
	}
}

// Bind associates taskID with threadID. A thread may have many tasks (a
// long-running conversation spanning several requests); a task has exactly
// one thread.
func (m *ThreadMap) Bind(taskID, threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.taskToThread[taskID]; ok && prev != threadID {
		m.removeTaskFromThreadLocked(prev, taskID)
	}
	m.taskToThread[taskID] = threadID
	for _, t := range m.threadToTask[threadID] {
		if t == taskID {
			return
		}
	}
	m.threadToTask[threadID] = append(m.threadToTask[threadID], taskID)
}

// ThreadFor returns the thread-id bound to taskID.
func (m *ThreadMap) ThreadFor(taskID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.taskToThread[taskID]
	return t, ok
}

// TasksFor returns every task-id bound to threadID.
func (m *ThreadMap) TasksFor(threadID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.threadToTask[threadID]))
	copy(out, m.threadToTask[threadID])
	return out
}

func (m *ThreadMap) removeTaskFromThreadLocked(threadID, taskID string) {
	tasks := m.threadToTask[threadID]
	for i, t := range tasks {
		if t == taskID {
			m.threadToTask[threadID] = append(tasks[:i], tasks[i+1:]...)
			break
		}
	}
}
