// Package taskmanager implements C6, the task lifecycle manager: the state
// machine governing legal transitions between task states, and the sole
// writer that turns a worker.Adapter's mutations plus inbound
// cancel/resume requests into taskstore updates (I1: every transition is
// observed exactly once, in order, by every subscriber; I2: terminal
// states never transition again).
package taskmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
	"github.com/a2arun/agentnode/internal/worker"
)

// transitions enumerates the legal TaskState graph (spec.md §4.3). A state
// not present as a key has no legal outgoing transitions (it is terminal).
var transitions = map[a2atypes.TaskState]map[a2atypes.TaskState]bool{
	a2atypes.StateSubmitted: {
		a2atypes.StateWorking:       true,
		a2atypes.StateCanceled:      true,
		a2atypes.StateRejected:      true,
		a2atypes.StateFailed:        true,
	},
	a2atypes.StateWorking: {
		a2atypes.StateInputRequired: true,
		a2atypes.StateAuthRequired:  true,
		a2atypes.StateCompleted:     true,
		a2atypes.StateFailed:        true,
		a2atypes.StateCanceled:      true,
	},
	a2atypes.StateInputRequired: {
		a2atypes.StateWorking:  true,
		a2atypes.StateCanceled: true,
		a2atypes.StateFailed:   true,
	},
	a2atypes.StateAuthRequired: {
		a2atypes.StateWorking:  true,
		a2atypes.StateCanceled: true,
		a2atypes.StateFailed:   true,
	},
}

// ErrIllegalTransition is returned when a requested state change is not in
// the legal transition table, or the task is already terminal (I2).
type ErrIllegalTransition struct {
	From, To a2atypes.TaskState
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Manager is the sole writer of task lifecycle transitions. All Worker
// output flows through worker.Adapter, which itself only ever calls
// taskstore.Store.Mutate under the target task's lock — Manager adds the
// transition-legality check and the cancel-vs-final-transition tie-break
// on top of that.
type Manager struct {
	store     *taskstore.Store
	queues    *eventqueue.Registry
	sync      *checkpoint.Synchronizer
	threadMap *checkpoint.ThreadMap
	tel       telemetry.Telemetry

	mu      sync.Mutex
	workers map[string]worker.Worker // taskID -> owning Worker, for Cancel routing
	cancels map[string]context.CancelFunc
}

// NewManager constructs a Manager.
func NewManager(
	store *taskstore.Store,
	queues *eventqueue.Registry,
	sync *checkpoint.Synchronizer,
	threadMap *checkpoint.ThreadMap,
	tel telemetry.Telemetry,
) *Manager {
	return &Manager{
		store:     store,
		queues:    queues,
		sync:      sync,
		threadMap: threadMap,
		tel:       tel,
		workers:   make(map[string]worker.Worker),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Register associates taskID with the Worker driving it and a cancel func
// for the goroutine running worker.Adapter.Drive, so Cancel can reach both
// the cooperative Worker.Cancel path and the hard ctx-cancellation path.
func (m *Manager) Register(taskID string, w worker.Worker, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[taskID] = w
	m.cancels[taskID] = cancel
}

// Unregister removes bookkeeping for a task once its Drive loop has
// exited, whatever the outcome.
func (m *Manager) Unregister(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workers, taskID)
	delete(m.cancels, taskID)
}

// CheckTransition reports whether moving from `from` to `to` is legal,
// without applying it. Manager.Cancel and Manager.BeginWorking call it
// inside their Mutate callbacks; worker.Adapter does not call it.
func CheckTransition(from, to a2atypes.TaskState) error {
	if from.Terminal() {
		return &ErrIllegalTransition{From: from, To: to}
	}
	if !transitions[from][to] {
		return &ErrIllegalTransition{From: from, To: to}
	}
	return nil
}

// Cancel requests cancellation of taskID. It is racing against the task's
// own Worker possibly reaching a terminal state concurrently; the tie is
// broken by taskstore's per-task lock — whichever of
// "Manager.Cancel's transition to canceled" or "Adapter's transition to a
// different terminal state" takes the Mutate lock first wins.
//
// Cancel on an already-terminal task is an idempotent no-op (spec.md §4.3
// tie-break text, §8 P7): it returns nil rather than ErrTaskNotCancelable,
// so the caller re-fetches and returns the task's current (terminal)
// state as a success response instead of a JSON-RPC error.
func (m *Manager) Cancel(ctx context.Context, taskID string) error {
	current, err := m.store.Get(taskID)
	if err != nil {
		return err
	}
	if current.Status.State.Terminal() {
		return nil
	}

	transitioned := false
	_, mutateErr := m.store.Mutate(taskID, func(t *a2atypes.Task) error {
		if t.Status.State.Terminal() {
			// Lost the race to a concurrent terminal transition (e.g. the
			// worker completed first): idempotent no-op, not an error.
			return nil
		}
		if err := CheckTransition(t.Status.State, a2atypes.StateCanceled); err != nil {
			return err
		}
		t.Status = a2atypes.TaskStatus{State: a2atypes.StateCanceled, Timestamp: time.Now().UTC()}
		transitioned = true
		return nil
	})
	if mutateErr != nil {
		return &a2atypes.ProtocolError{Kind: a2atypes.ErrTaskNotCancelable, Message: mutateErr.Error()}
	}
	if !transitioned {
		return nil
	}

	q := m.queues.Queue(taskID)
	q.Publish(a2atypes.Event{
		Kind:   a2atypes.EventStatusUpdate,
		TaskID: taskID,
		Status: &a2atypes.TaskStatus{State: a2atypes.StateCanceled, Timestamp: time.Now().UTC()},
		Final:  true,
	})

	threadID, ok := m.threadMap.ThreadFor(taskID)
	if !ok {
		threadID = taskID
	}
	m.sync.Request(ctx, checkpoint.TaskKey(taskID), a2atypes.Checkpoint{ThreadID: threadID, TaskID: taskID, Timestamp: time.Now().UTC()}, a2atypes.StateCanceled)
	_ = m.sync.FlushNow(ctx, checkpoint.TaskKey(taskID))

	m.mu.Lock()
	w := m.workers[taskID]
	cancelFn := m.cancels[taskID]
	m.mu.Unlock()
	if cancelFn != nil {
		cancelFn()
	}
	if w != nil {
		if err := w.Cancel(ctx, taskID); err != nil && m.tel.Log != nil {
			m.tel.Log.Warn(ctx, "worker cancel error after taskmanager cancel", telemetry.KV{Key: "taskId", Val: taskID}, telemetry.KV{Key: "error", Val: err.Error()})
		}
	}
	return nil
}

// BeginWorking transitions a task from submitted to working. This is the
// transition the dispatcher drives directly (not via worker.Adapter) the
// moment a Worker.Start call is accepted, so a subscriber attached before
// the Worker's first item sees the task leave submitted promptly.
func (m *Manager) BeginWorking(taskID string) error {
	_, err := m.store.Mutate(taskID, func(t *a2atypes.Task) error {
		if err := CheckTransition(t.Status.State, a2atypes.StateWorking); err != nil {
			return err
		}
		t.Status = a2atypes.TaskStatus{State: a2atypes.StateWorking, Timestamp: time.Now().UTC()}
		return nil
	})
	if err != nil {
		return err
	}
	m.queues.Queue(taskID).Publish(a2atypes.Event{
		Kind:   a2atypes.EventStatusUpdate,
		TaskID: taskID,
		Status: &a2atypes.TaskStatus{State: a2atypes.StateWorking, Timestamp: time.Now().UTC()},
	})
	return nil
}
