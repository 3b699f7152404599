package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// Synchronizer coalesces a burst of checkpoint writes for the same key into
// a single write to Store, the way goa.design/pulse coalesces stream
// publishes under load. Call Request whenever a component wants a
// checkpoint persisted "eventually"; only the latest Checkpoint passed
// since the last flush is actually written.
type Synchronizer struct {
	store    Store
	policy   RetentionPolicy
	interval time.Duration

	mu      sync.Mutex
	pending map[string]pendingWrite
	timers  map[string]*time.Timer
}

type pendingWrite struct {
	cp    a2atypes.Checkpoint
	state a2atypes.TaskState
}

// NewSynchronizer constructs a Synchronizer that coalesces writes to store
// over the given interval (spec.md §4.6's "write-coalescing window").
func NewSynchronizer(store Store, policy RetentionPolicy, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Synchronizer{
		store:    store,
		policy:   policy,
		interval: interval,
		pending:  make(map[string]pendingWrite),
		timers:   make(map[string]*time.Timer),
	}
}

// Request schedules cp to be written to key, coalescing with any write
// already pending for the same key within the coalescing window. state
// selects the TTL via the RetentionPolicy.
func (s *Synchronizer) Request(ctx context.Context, key string, cp a2atypes.Checkpoint, state a2atypes.TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = pendingWrite{cp: cp, state: state}
	if _, scheduled := s.timers[key]; scheduled {
		return
	}
	s.timers[key] = time.AfterFunc(s.interval, func() { s.flush(ctx, key) })
}

// FlushNow immediately writes any pending checkpoint for key, bypassing the
// coalescing window. Used on task completion so a terminal checkpoint is
// never lost to a window that never fires.
func (s *Synchronizer) FlushNow(ctx context.Context, key string) error {
	s.mu.Lock()
	w, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	if t, scheduled := s.timers[key]; scheduled {
		t.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.store.Put(ctx, key, w.cp, s.policy.TTLFor(w.state))
}

func (s *Synchronizer) flush(ctx context.Context, key string) {
	s.mu.Lock()
	w, ok := s.pending[key]
	delete(s.pending, key)
	delete(s.timers, key)
	s.mu.Unlock()

	if !ok {
		return
	}
	_ = s.store.Put(ctx, key, w.cp, s.policy.TTLFor(w.state))
}
