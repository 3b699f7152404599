package taskmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
	"github.com/a2arun/agentnode/internal/worker"
)

func newTestManager(t *testing.T) (*Manager, *taskstore.Store) {
	t.Helper()
	store := taskstore.New()
	queues := eventqueue.NewRegistry(16, 16)
	mem := checkpoint.NewMemoryStore()
	sync := checkpoint.NewSynchronizer(mem, checkpoint.DefaultRetentionPolicy(), time.Millisecond)
	threadMap := checkpoint.NewThreadMap()
	return NewManager(store, queues, sync, threadMap, telemetry.NewNoop()), store
}

func TestCheckTransitionAllowsSubmittedToWorking(t *testing.T) {
	require.NoError(t, CheckTransition(a2atypes.StateSubmitted, a2atypes.StateWorking))
}

func TestCheckTransitionRejectsFromTerminal(t *testing.T) {
	err := CheckTransition(a2atypes.StateCompleted, a2atypes.StateWorking)
	require.Error(t, err)
	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
}

func TestCheckTransitionRejectsUnlistedPair(t *testing.T) {
	err := CheckTransition(a2atypes.StateSubmitted, a2atypes.StateCompleted)
	require.Error(t, err)
}

func TestBeginWorkingTransitionsAndPublishes(t *testing.T) {
	m, store := newTestManager(t)
	task := store.Create("")

	require.NoError(t, m.BeginWorking(task.TaskID))

	updated, err := store.Get(task.TaskID)
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateWorking, updated.Status.State)
}

func TestCancelTransitionsToCanceledAndPublishesFinalEvent(t *testing.T) {
	m, store := newTestManager(t)
	task := store.Create("")
	require.NoError(t, m.BeginWorking(task.TaskID))

	ctx := context.Background()
	require.NoError(t, m.Cancel(ctx, task.TaskID))

	updated, err := store.Get(task.TaskID)
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateCanceled, updated.Status.State)
}

func TestCancelOnTerminalTaskIsIdempotentNoOp(t *testing.T) {
	m, store := newTestManager(t)
	task := store.Create("")
	require.NoError(t, m.BeginWorking(task.TaskID))
	require.NoError(t, m.Cancel(context.Background(), task.TaskID))

	require.NoError(t, m.Cancel(context.Background(), task.TaskID))

	updated, err := store.Get(task.TaskID)
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateCanceled, updated.Status.State)
}

func TestCancelCallsRegisteredWorkerAndCancelFunc(t *testing.T) {
	m, store := newTestManager(t)
	task := store.Create("")
	require.NoError(t, m.BeginWorking(task.TaskID))

	called := make(chan struct{}, 1)
	cancelCalled := make(chan struct{}, 1)
	m.Register(task.TaskID, &stubWorker{onCancel: func() { called <- struct{}{} }}, func() { cancelCalled <- struct{}{} })

	require.NoError(t, m.Cancel(context.Background(), task.TaskID))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("expected worker cancel to be called")
	}
	select {
	case <-cancelCalled:
	case <-time.After(time.Second):
		t.Fatal("expected cancel func to be called")
	}
}

type stubWorker struct {
	onCancel func()
}

func (s *stubWorker) Start(context.Context, worker.StartRequest) (<-chan worker.WorkerItem, error) {
	return nil, nil
}

func (s *stubWorker) Resume(context.Context, worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
	return nil, nil
}

func (s *stubWorker) Cancel(_ context.Context, _ string) error {
	if s.onCancel != nil {
		s.onCancel()
	}
	return nil
}

func (s *stubWorker) Snapshot(context.Context, string) ([]byte, error) { return nil, nil }

var _ worker.Worker = (*stubWorker)(nil)
