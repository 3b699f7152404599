package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/worker"
)

// BroadcastPlanner is the reference Planner shipped by this repo: it
// forwards the triggering message, unchanged, to every skill registered
// with it as one Required step each. Actual planning strategy is
// deployment-specific and almost always replaced (spec.md §4.9's Plan
// step is "performed by the embedded reasoning brain"); this
// implementation exists so cmd/agentnode has a usable default when no
// custom brain is wired in.
type BroadcastPlanner struct {
	// Skills lists the skill IDs every inbound message is fanned out to,
	// in the order steps should be aggregated.
	Skills []string
}

// Plan implements Planner.
func (p BroadcastPlanner) Plan(_ context.Context, parts []worker.Part) ([]Step, error) {
	if len(p.Skills) == 0 {
		return nil, fmt.Errorf("broadcast planner: no skills configured")
	}
	msgParts := make([]a2atypes.Part, 0, len(parts))
	for _, part := range parts {
		switch part.Kind {
		case worker.PartKindText:
			msgParts = append(msgParts, a2atypes.Part{Kind: a2atypes.PartText, Text: part.Text})
		case worker.PartKindData:
			msgParts = append(msgParts, a2atypes.Part{Kind: a2atypes.PartData, Data: part.Data})
		}
	}
	steps := make([]Step, len(p.Skills))
	for i, skillID := range p.Skills {
		steps[i] = Step{
			ID:      skillID,
			SkillID: skillID,
			Message: a2atypes.Message{
				MessageID: uuid.NewString(),
				Role:      a2atypes.RoleUser,
				Parts:     msgParts,
			},
			Required: true,
		}
	}
	return steps, nil
}

// StaticRouter resolves skill IDs to peer base URLs from a fixed table,
// grounded on runtime/a2a/registry.go's skill-to-endpoint resolution but
// without the dynamic AgentCard re-discovery that implies (peers here are
// exactly the statically configured ones in config.PeerConfig).
type StaticRouter struct {
	routes map[string]string
}

// NewStaticRouter builds a StaticRouter from a skillID -> baseURL table.
func NewStaticRouter(routes map[string]string) StaticRouter {
	out := make(map[string]string, len(routes))
	for k, v := range routes {
		out[k] = v
	}
	return StaticRouter{routes: out}
}

// Route implements Router.
func (r StaticRouter) Route(_ context.Context, skillID string) (string, error) {
	baseURL, ok := r.routes[skillID]
	if !ok {
		return "", fmt.Errorf("static router: no peer registered for skill %q", skillID)
	}
	return baseURL, nil
}

// ConcatAggregator joins each step's resulting task summary into one text
// part, in plan order, separated by blank lines. A reference Aggregator
// for deployments that don't need structured artifact merging.
type ConcatAggregator struct{}

// Aggregate implements Aggregator.
func (ConcatAggregator) Aggregate(_ context.Context, steps []Step, results []StepResult) ([]worker.Part, error) {
	var b strings.Builder
	for i, res := range results {
		if res.Err != nil || res.Task == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] %s", steps[i].SkillID, summarizeTask(res.Task))
	}
	return []worker.Part{{Kind: worker.PartKindText, Text: b.String()}}, nil
}
