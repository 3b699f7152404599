package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/worker"
)

func TestBroadcastPlannerFansOutToEveryConfiguredSkill(t *testing.T) {
	p := BroadcastPlanner{Skills: []string{"rates", "clock"}}
	steps, err := p.Plan(context.Background(), []worker.Part{{Kind: worker.PartKindText, Text: "hi"}})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	require.Equal(t, "rates", steps[0].SkillID)
	require.Equal(t, "clock", steps[1].SkillID)
	require.True(t, steps[0].Required)
	require.Equal(t, "hi", steps[0].Message.Parts[0].Text)
	require.NotEmpty(t, steps[0].Message.MessageID)
	require.NotEqual(t, steps[0].Message.MessageID, steps[1].Message.MessageID)
}

func TestBroadcastPlannerRejectsEmptySkillList(t *testing.T) {
	p := BroadcastPlanner{}
	_, err := p.Plan(context.Background(), nil)
	require.Error(t, err)
}

func TestStaticRouterResolvesConfiguredSkill(t *testing.T) {
	r := NewStaticRouter(map[string]string{"rates": "http://peer-a"})
	baseURL, err := r.Route(context.Background(), "rates")
	require.NoError(t, err)
	require.Equal(t, "http://peer-a", baseURL)
}

func TestStaticRouterRejectsUnknownSkill(t *testing.T) {
	r := NewStaticRouter(nil)
	_, err := r.Route(context.Background(), "missing")
	require.Error(t, err)
}

func TestConcatAggregatorJoinsInPlanOrderAndSkipsFailedSteps(t *testing.T) {
	steps := []Step{{ID: "a", SkillID: "rates"}, {ID: "b", SkillID: "clock"}}
	results := []StepResult{
		{Step: steps[0], Task: &a2atypes.Task{TaskID: "t1", Status: a2atypes.TaskStatus{State: a2atypes.StateCompleted}}},
		{Step: steps[1], Err: context.DeadlineExceeded},
	}
	out, err := ConcatAggregator{}.Aggregate(context.Background(), steps, results)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Contains(t, out[0].Text, "rates")
	require.NotContains(t, out[0].Text, "clock")
}
