package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

func TestPublishAssignsIncreasingSeq(t *testing.T) {
	q := NewWithCapacity(4, 4)
	e1 := q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	e2 := q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	require.Equal(t, uint64(1), e1.Seq)
	require.Equal(t, uint64(2), e2.Seq)
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	q := NewWithCapacity(4, 4)
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})

	sub, ok := q.Subscribe(0)
	require.True(t, ok)
	defer sub.Close()

	ev1 := <-sub.Events
	ev2 := <-sub.Events
	require.Equal(t, uint64(1), ev1.Seq)
	require.Equal(t, uint64(2), ev2.Seq)
}

func TestSubscribeAfterSeqSkipsOlderEvents(t *testing.T) {
	q := NewWithCapacity(4, 4)
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})

	sub, ok := q.Subscribe(1)
	require.True(t, ok)
	defer sub.Close()

	ev := <-sub.Events
	require.Equal(t, uint64(2), ev.Seq)
}

func TestSubscribeRejectsSeqOlderThanRetainedWindow(t *testing.T) {
	q := NewWithCapacity(2, 4)
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage}) // evicts seq 1

	_, ok := q.Subscribe(1)
	require.False(t, ok)
}

func TestFinalStatusUpdateClosesQueue(t *testing.T) {
	q := NewWithCapacity(4, 4)
	sub, ok := q.Subscribe(0)
	require.True(t, ok)
	defer sub.Close()

	q.Publish(a2atypes.Event{
		Kind:   a2atypes.EventStatusUpdate,
		Final:  true,
		Status: &a2atypes.TaskStatus{State: a2atypes.StateCompleted},
	})

	ev, open := <-sub.Events
	require.True(t, open)
	require.True(t, ev.Final)

	_, open = <-sub.Events
	require.False(t, open)
	require.True(t, q.Closed())
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	q := NewWithCapacity(4, 1) // subscriber buffer of 1
	sub, ok := q.Subscribe(0)
	require.True(t, ok)
	defer sub.Close()

	// Publish more events than the subscriber buffer can hold without the
	// subscriber ever reading; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-sub.Lagged:
	}

	<-sub.Lagged // closed once dropped
}

func TestMultipleSubscribersEachReceiveIndependently(t *testing.T) {
	q := NewWithCapacity(4, 4)
	sub1, _ := q.Subscribe(0)
	sub2, _ := q.Subscribe(0)
	defer sub1.Close()
	defer sub2.Close()

	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage})

	ev1 := <-sub1.Events
	ev2 := <-sub2.Events
	require.Equal(t, ev1.Seq, ev2.Seq)
}

func TestRegistryCreatesQueuePerTask(t *testing.T) {
	r := NewRegistry(4, 4)
	qa := r.Queue("task-a")
	qb := r.Queue("task-b")
	require.NotSame(t, qa, qb)
	require.Same(t, qa, r.Queue("task-a"))
}
