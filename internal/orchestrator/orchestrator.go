// Package orchestrator implements C10: a plan -> route -> execute ->
// aggregate coordinator that fans a task out to peer agents and itself
// implements worker.Worker, so it plugs into the same worker.Adapter every
// other reasoning engine does (spec.md §4.9).
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/peer"
	"github.com/a2arun/agentnode/internal/worker"
)

// Planner decides how to decompose a task's input into one or more Steps.
// Supplied by the deployment, since planning strategy is domain-specific
// and out of this repo's scope (spec.md §1 Non-goals: "prescribing a
// reasoning/planning strategy").
type Planner interface {
	Plan(ctx context.Context, parts []worker.Part) ([]Step, error)
}

// Step is one unit of the plan: a skill to invoke, the input for it,
// whether its failure should fail the whole task (Required) or simply be
// omitted from the aggregate (optional), and the IDs of steps that must
// complete before it may be dispatched (spec.md §4.9 step 1's Plan shape:
// "{step_id, description, depends_on[], target_skill}").
type Step struct {
	ID        string
	SkillID   string
	Message   a2atypes.Message
	Required  bool
	DependsOn []string
}

// Router resolves a Step's target skill to a peer node's base URL,
// grounded on runtime/a2a/registry.go's skill-to-endpoint resolution.
type Router interface {
	Route(ctx context.Context, skillID string) (baseURL string, err error)
}

// Aggregator combines the per-step results into the task's final output,
// in deterministic plan order regardless of the order steps actually
// complete in (spec.md §4.9 invariant).
type Aggregator interface {
	Aggregate(ctx context.Context, steps []Step, results []StepResult) ([]worker.Part, error)
}

// StepResult is one step's outcome.
type StepResult struct {
	Step Step
	Task *a2atypes.Task
	Err  error
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Planner     Planner
	Router      Router
	Aggregator  Aggregator
	Caller      peer.Caller
	Concurrency int // bounds parallel step execution (P in spec.md §4.9)
}

// Orchestrator implements worker.Worker by running the plan/route/execute/
// aggregate loop against peer nodes resolved via Router.
type Orchestrator struct {
	cfg Config

	mu        sync.Mutex
	cancelFns map[string]context.CancelFunc
}

// New constructs an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Orchestrator{cfg: cfg, cancelFns: make(map[string]context.CancelFunc)}
}

// Start implements worker.Worker.
func (o *Orchestrator) Start(ctx context.Context, req worker.StartRequest) (<-chan worker.WorkerItem, error) {
	items := make(chan worker.WorkerItem, 8)
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelFns[req.TaskID] = cancel
	o.mu.Unlock()

	go o.run(runCtx, req.TaskID, req.Parts, items)
	return items, nil
}

// Resume implements worker.Worker. It always emits a single ItemError and
// closes the stream: a peer step that stopped in input-required or
// auth-required has already been reported as a failed step (see runStep),
// and no message is forwarded to a peer on resume.
func (o *Orchestrator) Resume(ctx context.Context, req worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
	items := make(chan worker.WorkerItem, 1)
	items <- worker.WorkerItem{Kind: worker.ItemError, Err: fmt.Errorf("orchestrator: resume is not yet supported for in-flight fan-out steps")}
	close(items)
	return items, nil
}

// Cancel implements worker.Worker: cancels the run context, which cascades
// to every in-flight peer call via errgroup's context propagation.
func (o *Orchestrator) Cancel(_ context.Context, taskID string) error {
	o.mu.Lock()
	cancel := o.cancelFns[taskID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Snapshot implements worker.Worker. The orchestrator's state machine is
// entirely reconstructible from the task's history and the plan, which is
// already checkpointed by taskstore/checkpoint; there is no additional
// opaque state to persist.
func (o *Orchestrator) Snapshot(context.Context, string) ([]byte, error) {
	return nil, nil
}

func (o *Orchestrator) run(ctx context.Context, taskID string, parts []worker.Part, items chan<- worker.WorkerItem) {
	defer close(items)
	defer func() {
		o.mu.Lock()
		delete(o.cancelFns, taskID)
		o.mu.Unlock()
	}()

	items <- worker.WorkerItem{Kind: worker.ItemThinking, Thinking: "planning"}
	steps, err := o.cfg.Planner.Plan(ctx, parts)
	if err != nil {
		items <- worker.WorkerItem{Kind: worker.ItemError, Err: fmt.Errorf("plan: %w", err)}
		return
	}

	results, err := o.execute(ctx, taskID, steps, items)
	if err != nil {
		items <- worker.WorkerItem{Kind: worker.ItemError, Err: err}
		return
	}

	finalParts, err := o.cfg.Aggregator.Aggregate(ctx, steps, results)
	if err != nil {
		items <- worker.WorkerItem{Kind: worker.ItemError, Err: fmt.Errorf("aggregate: %w", err)}
		return
	}
	items <- worker.WorkerItem{Kind: worker.ItemFinal, FinalParts: finalParts}
}

// execute dispatches every step once its DependsOn steps have completed
// (spec.md §4.9 step 3: "Dispatch steps whose depends_on is satisfied"),
// bounding the number of steps in flight at once to cfg.Concurrency via a
// semaphore rather than errgroup.SetLimit, since a step waiting on a
// dependency must not hold a concurrency slot while it waits. Results are
// aggregated in plan order regardless of completion order (spec.md §4.9).
func (o *Orchestrator) execute(ctx context.Context, taskID string, steps []Step, items chan<- worker.WorkerItem) ([]StepResult, error) {
	results := make([]StepResult, len(steps))
	indexByID := make(map[string]int, len(steps))
	done := make(map[string]chan struct{}, len(steps))
	for i, step := range steps {
		indexByID[step.ID] = i
		done[step.ID] = make(chan struct{})
	}

	sem := make(chan struct{}, o.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i, step := range steps {
		i, step := i, step
		g.Go(func() error {
			defer close(done[step.ID])

			for _, depID := range step.DependsOn {
				depCh, ok := done[depID]
				if !ok {
					err := fmt.Errorf("step %q depends on unknown step %q", step.ID, depID)
					results[i] = StepResult{Step: step, Err: err}
					if step.Required {
						return err
					}
					return nil
				}
				select {
				case <-depCh:
				case <-gctx.Done():
					results[i] = StepResult{Step: step, Err: gctx.Err()}
					return nil
				}
				if depResult := results[indexByID[depID]]; depResult.Err != nil {
					err := fmt.Errorf("step %q not dispatched: dependency %q failed: %w", step.ID, depID, depResult.Err)
					results[i] = StepResult{Step: step, Err: err}
					if step.Required {
						return err
					}
					return nil
				}
			}

			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				results[i] = StepResult{Step: step, Err: gctx.Err()}
				return nil
			}
			task, err := o.runStep(gctx, step)
			<-sem

			results[i] = StepResult{Step: step, Task: task, Err: err}
			if err != nil && step.Required {
				return fmt.Errorf("required step %q failed: %w", step.ID, err)
			}
			if task != nil {
				items <- worker.WorkerItem{
					Kind:         worker.ItemPartialArtifact,
					ArtifactID:   taskID + ":" + step.ID,
					ArtifactName: step.ID,
					ArtifactPart: worker.Part{Kind: worker.PartKindText, Text: summarizeTask(task)},
					LastChunk:    true,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step) (*a2atypes.Task, error) {
	baseURL, err := o.cfg.Router.Route(ctx, step.SkillID)
	if err != nil {
		return nil, fmt.Errorf("route skill %q: %w", step.SkillID, err)
	}
	task, err := o.cfg.Caller.SendMessage(ctx, baseURL, step.Message)
	if err != nil {
		return nil, fmt.Errorf("call peer for skill %q: %w", step.SkillID, err)
	}
	if task.Status.State == a2atypes.StateInputRequired || task.Status.State == a2atypes.StateAuthRequired {
		// A peer step needing more input or auth is reported as a step
		// error: a required step fails the whole task and an optional one
		// is left out of aggregation. The outer task does not enter
		// input-required/auth-required.
		return task, fmt.Errorf("step %q requires %s", step.ID, task.Status.State)
	}
	return task, nil
}

func summarizeTask(t *a2atypes.Task) string {
	if t.Status.Message == nil {
		return fmt.Sprintf("task %s completed with state %s", t.TaskID, t.Status.State)
	}
	var text string
	for _, p := range t.Status.Message.Parts {
		if p.Kind == a2atypes.PartText {
			text += p.Text
		}
	}
	return text
}

var _ worker.Worker = (*Orchestrator)(nil)
