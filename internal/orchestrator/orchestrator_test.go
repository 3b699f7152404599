package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/worker"
)

type fakePlanner struct {
	steps []Step
	err   error
}

func (p fakePlanner) Plan(context.Context, []worker.Part) ([]Step, error) { return p.steps, p.err }

type fakeRouter struct {
	urls map[string]string
}

func (r fakeRouter) Route(_ context.Context, skillID string) (string, error) {
	url, ok := r.urls[skillID]
	if !ok {
		return "", fmt.Errorf("no route for skill %q", skillID)
	}
	return url, nil
}

type fakeCaller struct {
	responses map[string]*a2atypes.Task
	err       error
	failURLs  map[string]error

	mu    sync.Mutex
	calls []string
}

func (c *fakeCaller) SendMessage(_ context.Context, baseURL string, _ a2atypes.Message) (*a2atypes.Task, error) {
	c.mu.Lock()
	c.calls = append(c.calls, baseURL)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if err, ok := c.failURLs[baseURL]; ok {
		return nil, err
	}
	return c.responses[baseURL], nil
}
func (c fakeCaller) GetTask(context.Context, string, string) (*a2atypes.Task, error) { return nil, nil }
func (c fakeCaller) CancelTask(context.Context, string, string) error                { return nil }

type concatAggregator struct{}

func (concatAggregator) Aggregate(_ context.Context, steps []Step, results []StepResult) ([]worker.Part, error) {
	var out string
	for _, r := range results {
		out += summarizeTask(r.Task) + "|"
	}
	return []worker.Part{{Kind: worker.PartKindText, Text: out}}, nil
}

func drain(t *testing.T, items <-chan worker.WorkerItem) []worker.WorkerItem {
	t.Helper()
	var out []worker.WorkerItem
	timeout := time.After(2 * time.Second)
	for {
		select {
		case item, ok := <-items:
			if !ok {
				return out
			}
			out = append(out, item)
		case <-timeout:
			t.Fatal("timed out draining orchestrator items")
		}
	}
}

func TestOrchestratorHappyPathAggregatesInPlanOrder(t *testing.T) {
	steps := []Step{
		{ID: "s1", SkillID: "skill-a", Required: true},
		{ID: "s2", SkillID: "skill-b", Required: true},
	}
	caller := &fakeCaller{responses: map[string]*a2atypes.Task{
		"http://a": {TaskID: "ta", Status: a2atypes.TaskStatus{State: a2atypes.StateCompleted, Message: &a2atypes.Message{Parts: []a2atypes.Part{{Kind: a2atypes.PartText, Text: "A"}}}}},
		"http://b": {TaskID: "tb", Status: a2atypes.TaskStatus{State: a2atypes.StateCompleted, Message: &a2atypes.Message{Parts: []a2atypes.Part{{Kind: a2atypes.PartText, Text: "B"}}}}},
	}}
	router := fakeRouter{urls: map[string]string{"skill-a": "http://a", "skill-b": "http://b"}}

	o := New(Config{
		Planner:    fakePlanner{steps: steps},
		Router:     router,
		Aggregator: concatAggregator{},
		Caller:     caller,
	})

	items, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)
	all := drain(t, items)

	require.NotEmpty(t, all)
	last := all[len(all)-1]
	require.Equal(t, worker.ItemFinal, last.Kind)
	require.Len(t, last.FinalParts, 1)
	require.Contains(t, last.FinalParts[0].Text, "A|B|")
}

func TestOrchestratorRequiredStepFailurePropagatesAsError(t *testing.T) {
	steps := []Step{{ID: "s1", SkillID: "skill-a", Required: true}}
	router := fakeRouter{urls: map[string]string{"skill-a": "http://a"}}
	caller := &fakeCaller{err: fmt.Errorf("peer unreachable")}

	o := New(Config{Planner: fakePlanner{steps: steps}, Router: router, Aggregator: concatAggregator{}, Caller: caller})
	items, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)

	all := drain(t, items)
	last := all[len(all)-1]
	require.Equal(t, worker.ItemError, last.Kind)
}

func TestOrchestratorPlanFailureSurfacesAsError(t *testing.T) {
	o := New(Config{
		Planner:    fakePlanner{err: fmt.Errorf("cannot plan")},
		Router:     fakeRouter{},
		Aggregator: concatAggregator{},
		Caller:     &fakeCaller{},
	})
	items, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)
	all := drain(t, items)
	require.Equal(t, worker.ItemError, all[len(all)-1].Kind)
}

func TestOrchestratorCancelOfStartedTaskReturnsNoError(t *testing.T) {
	o := New(Config{
		Planner:    fakePlanner{steps: []Step{{ID: "s1", SkillID: "skill-a", Required: true}}},
		Router:     fakeRouter{urls: map[string]string{"skill-a": "http://a"}},
		Aggregator: concatAggregator{},
		Caller:     &fakeCaller{responses: map[string]*a2atypes.Task{}},
	})
	_, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)
	require.NoError(t, o.Cancel(context.Background(), "t1"))
}

func TestOrchestratorDoesNotDispatchAStepBeforeItsDependency(t *testing.T) {
	steps := []Step{
		{ID: "s1", SkillID: "skill-a", Required: true},
		{ID: "s2", SkillID: "skill-b", Required: true, DependsOn: []string{"s1"}},
	}
	caller := &fakeCaller{responses: map[string]*a2atypes.Task{
		"http://a": {TaskID: "ta", Status: a2atypes.TaskStatus{State: a2atypes.StateCompleted, Message: &a2atypes.Message{Parts: []a2atypes.Part{{Kind: a2atypes.PartText, Text: "A"}}}}},
		"http://b": {TaskID: "tb", Status: a2atypes.TaskStatus{State: a2atypes.StateCompleted, Message: &a2atypes.Message{Parts: []a2atypes.Part{{Kind: a2atypes.PartText, Text: "B"}}}}},
	}}
	router := fakeRouter{urls: map[string]string{"skill-a": "http://a", "skill-b": "http://b"}}

	o := New(Config{
		Planner:    fakePlanner{steps: steps},
		Router:     router,
		Aggregator: concatAggregator{},
		Caller:     caller,
	})

	items, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)
	all := drain(t, items)

	last := all[len(all)-1]
	require.Equal(t, worker.ItemFinal, last.Kind)

	caller.mu.Lock()
	calls := append([]string(nil), caller.calls...)
	caller.mu.Unlock()
	require.Equal(t, []string{"http://a", "http://b"}, calls, "s2 must not be dispatched before its dependency s1 completes")
}

func TestOrchestratorSkipsStepWhoseRequiredDependencyFailed(t *testing.T) {
	steps := []Step{
		{ID: "s1", SkillID: "skill-a", Required: true},
		{ID: "s2", SkillID: "skill-b", Required: false, DependsOn: []string{"s1"}},
	}
	caller := &fakeCaller{failURLs: map[string]error{"http://a": fmt.Errorf("peer unreachable")}}
	router := fakeRouter{urls: map[string]string{"skill-a": "http://a", "skill-b": "http://b"}}

	o := New(Config{
		Planner:    fakePlanner{steps: steps},
		Router:     router,
		Aggregator: concatAggregator{},
		Caller:     caller,
	})

	items, err := o.Start(context.Background(), worker.StartRequest{TaskID: "t1"})
	require.NoError(t, err)
	all := drain(t, items)

	last := all[len(all)-1]
	require.Equal(t, worker.ItemError, last.Kind, "s1 is required, so its failure fails the whole task")

	caller.mu.Lock()
	defer caller.mu.Unlock()
	require.NotContains(t, caller.calls, "http://b", "s2 must never be dispatched once its dependency s1 failed")
}
