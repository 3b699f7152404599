// Package taskstore implements C2, the concurrent task store: the
// authoritative in-memory home for Task records, with a single writer per
// task; reads take the task's lock briefly and return a deep copy.
package taskstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// ErrNotFound is returned when a task-id has no corresponding entry.
type ErrNotFound struct {
	TaskID string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("task %q not found", e.TaskID)
}

// entry pairs a task with the mutex that serializes all mutation of it.
// Readers (Get, List) take a read-view via Clone so a concurrent writer
// never races a caller holding onto a returned *a2atypes.Task.
type entry struct {
	mu   sync.Mutex
	task *a2atypes.Task
}

// Store is the concurrent task store. The zero value is not usable; use New.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New constructs an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Create allocates a new task in StateSubmitted and returns its snapshot.
// If contextID is empty, a new context is created implicitly.
func (s *Store) Create(contextID string) *a2atypes.Task {
	now := time.Now().UTC()
	if contextID == "" {
		contextID = uuid.NewString()
	}
	t := &a2atypes.Task{
		TaskID:    uuid.NewString(),
		ContextID: contextID,
		Status:    a2atypes.TaskStatus{State: a2atypes.StateSubmitted, Timestamp: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.entries[t.TaskID] = &entry{task: t}
	s.mu.Unlock()
	return t.Clone()
}

// Get returns a deep-copied snapshot of the task, or ErrNotFound.
func (s *Store) Get(taskID string) (*a2atypes.Task, error) {
	e := s.lookup(taskID)
	if e == nil {
		return nil, &ErrNotFound{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Clone(), nil
}

// GetState implements a2atypes.TaskLookup for the validator.
func (s *Store) GetState(taskID string) (a2atypes.TaskState, bool) {
	e := s.lookup(taskID)
	if e == nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.task.Status.State, true
}

// List returns snapshots of every tracked task. Intended for diagnostics;
// not used on any hot path.
func (s *Store) List() []*a2atypes.Task {
	s.mu.RLock()
	es := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		es = append(es, e)
	}
	s.mu.RUnlock()

	out := make([]*a2atypes.Task, 0, len(es))
	for _, e := range es {
		e.mu.Lock()
		out = append(out, e.task.Clone())
		e.mu.Unlock()
	}
	return out
}

// Mutate applies fn to the task under its per-task lock and persists the
// result, returning the post-mutation snapshot. fn must not retain t beyond
// the call. Mutate is the only way taskmanager (C6) is permitted to change
// a task, enforcing the sole-writer invariant (I1).
func (s *Store) Mutate(taskID string, fn func(t *a2atypes.Task) error) (*a2atypes.Task, error) {
	e := s.lookup(taskID)
	if e == nil {
		return nil, &ErrNotFound{TaskID: taskID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.task); err != nil {
		return nil, err
	}
	e.task.UpdatedAt = time.Now().UTC()
	return e.task.Clone(), nil
}

// Put inserts or replaces a task wholesale. Checkpoint recovery on
// startup does not call it; the store starts empty.
func (s *Store) Put(t *a2atypes.Task) {
	cp := t.Clone()
	s.mu.Lock()
	s.entries[cp.TaskID] = &entry{task: cp}
	s.mu.Unlock()
}

func (s *Store) lookup(taskID string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[taskID]
}
