package taskstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

func TestCreateAssignsSubmittedState(t *testing.T) {
	s := New()
	task := s.Create("")
	require.NotEmpty(t, task.TaskID)
	require.NotEmpty(t, task.ContextID)
	require.Equal(t, a2atypes.StateSubmitted, task.Status.State)
}

func TestCreateReusesGivenContextID(t *testing.T) {
	s := New()
	task := s.Create("ctx-1")
	require.Equal(t, "ctx-1", task.ContextID)
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Get("missing")
	require.Error(t, err)
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
}

func TestGetReturnsDeepCopy(t *testing.T) {
	s := New()
	task := s.Create("")
	snap, err := s.Get(task.TaskID)
	require.NoError(t, err)
	snap.Status.State = a2atypes.StateCompleted

	again, err := s.Get(task.TaskID)
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateSubmitted, again.Status.State)
}

func TestMutateAppliesAndPersists(t *testing.T) {
	s := New()
	task := s.Create("")

	updated, err := s.Mutate(task.TaskID, func(t *a2atypes.Task) error {
		t.Status.State = a2atypes.StateWorking
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateWorking, updated.Status.State)

	again, err := s.Get(task.TaskID)
	require.NoError(t, err)
	require.Equal(t, a2atypes.StateWorking, again.Status.State)
}

func TestMutateConcurrentCallsAreSerializedPerTask(t *testing.T) {
	s := New()
	task := s.Create("")

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.Mutate(task.TaskID, func(t *a2atypes.Task) error {
				t.History = append(t.History, a2atypes.Message{MessageID: "m"})
				return nil
			})
		}()
	}
	wg.Wait()

	final, err := s.Get(task.TaskID)
	require.NoError(t, err)
	require.Len(t, final.History, n)
}

func TestLookupAdaptsGetState(t *testing.T) {
	s := New()
	task := s.Create("")
	lookup := Lookup{Store: s}

	state, ok := lookup.Get(task.TaskID)
	require.True(t, ok)
	require.Equal(t, a2atypes.StateSubmitted, state)

	_, ok = lookup.Get("missing")
	require.False(t, ok)
}
