package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/dispatcher/policy"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/taskmanager"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
	"github.com/a2arun/agentnode/internal/worker"
)

// StartFunc starts a Worker for a brand-new task, returning its item
// stream. Supplied by cmd/agentnode at wiring time so dispatcher stays
// independent of any concrete Worker implementation.
type StartFunc func(ctx context.Context, w worker.Worker, req worker.StartRequest) (<-chan worker.WorkerItem, error)

// ResumeFunc is StartFunc's counterpart for resuming a parked task.
type ResumeFunc func(ctx context.Context, w worker.Worker, req worker.ResumeRequest) (<-chan worker.WorkerItem, error)

// Adapter is the subset of worker.Adapter the dispatcher needs: driving an
// already-started item stream to completion. Declared as an interface here
// so tests can substitute a fake without constructing a real
// taskstore/eventqueue/checkpoint graph.
type Adapter interface {
	Drive(ctx context.Context, w worker.Worker, taskID string, items <-chan worker.WorkerItem)
}

// Dispatcher decodes, routes, and responds to JSON-RPC requests for every
// A2A method (spec.md §4.4, §6).
type Dispatcher struct {
	store     *taskstore.Store
	queues    *eventqueue.Registry
	manager   *taskmanager.Manager
	adapter   Adapter
	newWorker func() worker.Worker
	start     StartFunc
	resume    ResumeFunc
	limiter   *rate.Limiter
	tel       telemetry.Telemetry
	schemas   *a2atypes.SchemaRegistry
}

// Config configures a Dispatcher.
type Config struct {
	Store     *taskstore.Store
	Queues    *eventqueue.Registry
	Manager   *taskmanager.Manager
	Adapter   Adapter
	NewWorker func() worker.Worker
	Start     StartFunc
	Resume    ResumeFunc
	// RateLimit bounds requests/sec accepted before CodeInternalError load
	// shedding kicks in (domain-stack wiring: golang.org/x/time/rate).
	RateLimit rate.Limit
	Telemetry telemetry.Telemetry
	// Schemas validates a skill's data parts against a registered JSON
	// Schema before the message reaches a worker. Nil disables the check.
	Schemas *a2atypes.SchemaRegistry
}

// New constructs a Dispatcher.
func New(cfg Config) *Dispatcher {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 200
	}
	return &Dispatcher{
		store:     cfg.Store,
		queues:    cfg.Queues,
		manager:   cfg.Manager,
		adapter:   cfg.Adapter,
		newWorker: cfg.NewWorker,
		start:     cfg.Start,
		resume:    cfg.Resume,
		limiter:   rate.NewLimiter(limit, int(limit)),
		tel:       cfg.Telemetry,
		schemas:   cfg.Schemas,
	}
}

// Handle decodes raw into a Request, routes it, and returns the Response to
// serialize back to the caller. ctx should already carry the caller's
// policy.Policy (injected by the HTTP middleware in internal/server).
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(nil, CodeParseError, "invalid JSON: "+err.Error())
	}
	if env := (a2atypes.RPCEnvelope{JSONRPC: req.JSONRPC, Method: req.Method, HasID: req.HasID()}); true {
		if perr := a2atypes.ValidateRPCEnvelope(env); perr != nil {
			return NewErrorResponse(req.ID, CodeInvalidRequest, perr.Error())
		}
	}

	if !d.limiter.Allow() {
		return NewErrorResponse(req.ID, CodeInternalError, "request rate exceeded, retry after "+loadShedRetryAfter.String())
	}

	switch req.Method {
	case "message/send":
		return d.handleMessageSend(ctx, req)
	case "tasks/get":
		return d.handleTasksGet(ctx, req)
	case "tasks/cancel":
		return d.handleTasksCancel(ctx, req)
	case "tasks/pushNotificationConfig/set", "tasks/pushNotificationConfig/get",
		"tasks/pushNotificationConfig/list", "tasks/pushNotificationConfig/delete":
		// Reserved per spec.md §6's method table; push notifications are
		// an explicit Non-goal (§1) so these are recognized but
		// unimplemented rather than unrecognized.
		return NewErrorResponse(req.ID, CodeUnsupportedCapability, "push notifications are not supported by this node")
	default:
		// message/stream, tasks/resubscribe, and agent/authenticatedExtendedCard
		// are handled over the streaming/HTTP paths in internal/sse and
		// internal/server, not through Handle's synchronous JSON-RPC path.
		return NewErrorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// messageSendParams is the decoded params for message/send and
// message/stream.
type messageSendParams struct {
	Message a2atypes.Message `json:"message"`
}

func (d *Dispatcher) handleMessageSend(ctx context.Context, req Request) Response {
	var params messageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}

	task, perr := d.StartOrResume(ctx, &params.Message)
	if perr != nil {
		return errorResponseFor(req.ID, perr)
	}
	return NewResultResponse(req.ID, task)
}

// StartOrResume enforces skill policy and schema validation, then resolves
// and starts (or resumes) the task named by msg. Exported so
// internal/server can drive the same path for message/stream, which
// bypasses Handle's synchronous JSON-RPC response in favor of an SSE
// stream.
func (d *Dispatcher) StartOrResume(ctx context.Context, msg *a2atypes.Message) (*a2atypes.Task, *a2atypes.ProtocolError) {
	if skillID, ok := requestedSkill(*msg); ok {
		if !policy.FromContext(ctx).Allows(skillID) {
			return nil, a2atypes.NewProtocolError(a2atypes.ErrUnsupportedCapability, "caller is not permitted to invoke skill %s", skillID)
		}
		if d.schemas != nil {
			for _, p := range msg.Parts {
				if p.Kind != a2atypes.PartData {
					continue
				}
				if perr := d.schemas.ValidateData(skillID, p.Data); perr != nil {
					return nil, perr
				}
			}
		}
	}
	return d.resolveTaskAndStart(ctx, msg)
}

// Queues exposes the dispatcher's event-queue registry, needed by
// internal/server to subscribe an SSE connection to a task's stream.
func (d *Dispatcher) Queues() *eventqueue.Registry { return d.queues }

// Store exposes the dispatcher's task store, needed by internal/server to
// fetch a task snapshot (e.g. for the initial task-snapshot SSE event).
func (d *Dispatcher) Store() *taskstore.Store { return d.store }

func (d *Dispatcher) handleTasksGet(_ context.Context, req Request) Response {
	var params struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}
	task, err := d.store.Get(params.TaskID)
	if err != nil {
		return NewErrorResponse(req.ID, CodeTaskNotFound, err.Error())
	}
	return NewResultResponse(req.ID, task)
}

func (d *Dispatcher) handleTasksCancel(ctx context.Context, req Request) Response {
	var params struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
	}
	if err := d.manager.Cancel(ctx, params.TaskID); err != nil {
		if perr, ok := err.(*a2atypes.ProtocolError); ok {
			return errorResponseFor(req.ID, perr)
		}
		return NewErrorResponse(req.ID, CodeInternalError, err.Error())
	}
	task, err := d.store.Get(params.TaskID)
	if err != nil {
		return NewErrorResponse(req.ID, CodeTaskNotFound, err.Error())
	}
	return NewResultResponse(req.ID, task)
}

// resolveTaskAndStart implements the task-id resolution rule from spec.md
// §4.2: reuse a non-terminal task named by the message, resume one parked
// in input-required/auth-required, or create a new task when the message
// carries no task-id or names a terminal one.
func (d *Dispatcher) resolveTaskAndStart(ctx context.Context, msg *a2atypes.Message) (*a2atypes.Task, *a2atypes.ProtocolError) {
	lookup := taskstoreLookup{store: d.store}
	if perr := a2atypes.ValidateIncomingMessage(msg, lookup); perr != nil {
		return nil, perr
	}

	if msg.TaskID != "" {
		existing, err := d.store.Get(msg.TaskID)
		if err == nil && !existing.Status.State.Terminal() {
			return d.continueTask(ctx, existing, msg)
		}
	}
	return d.startNewTask(ctx, msg)
}

func (d *Dispatcher) startNewTask(ctx context.Context, msg *a2atypes.Message) (*a2atypes.Task, *a2atypes.ProtocolError) {
	task := d.store.Create(msg.ContextID)
	msg.TaskID = task.TaskID
	msg.ContextID = task.ContextID

	_, _ = d.store.Mutate(task.TaskID, func(t *a2atypes.Task) error {
		t.History = append(t.History, *msg)
		return nil
	})

	if err := d.manager.BeginWorking(task.TaskID); err != nil {
		return nil, a2atypes.NewProtocolError(a2atypes.ErrProtocolViolation, "%v", err)
	}

	w := d.newWorker()
	driveCtx, cancel := context.WithCancel(context.Background())
	items, err := d.start(driveCtx, w, worker.StartRequest{
		TaskID:    task.TaskID,
		ContextID: task.ContextID,
		Parts:     toWorkerParts(msg.Parts),
	})
	if err != nil {
		cancel()
		return nil, a2atypes.NewProtocolError(a2atypes.ErrProtocolViolation, "worker start failed: %v", err)
	}
	d.manager.Register(task.TaskID, w, cancel)
	go d.drive(driveCtx, w, task.TaskID, items)

	return d.store.Get(task.TaskID)
}

func (d *Dispatcher) continueTask(ctx context.Context, task *a2atypes.Task, msg *a2atypes.Message) (*a2atypes.Task, *a2atypes.ProtocolError) {
	msg.TaskID = task.TaskID
	msg.ContextID = task.ContextID

	_, _ = d.store.Mutate(task.TaskID, func(t *a2atypes.Task) error {
		t.History = append(t.History, *msg)
		return nil
	})

	if task.Status.State == a2atypes.StateInputRequired || task.Status.State == a2atypes.StateAuthRequired {
		if err := d.manager.BeginWorking(task.TaskID); err != nil {
			return nil, a2atypes.NewProtocolError(a2atypes.ErrProtocolViolation, "%v", err)
		}
		w := d.newWorker()
		driveCtx, cancel := context.WithCancel(context.Background())
		items, err := d.resume(driveCtx, w, worker.ResumeRequest{TaskID: task.TaskID, Parts: toWorkerParts(msg.Parts)})
		if err != nil {
			cancel()
			return nil, a2atypes.NewProtocolError(a2atypes.ErrProtocolViolation, "worker resume failed: %v", err)
		}
		d.manager.Register(task.TaskID, w, cancel)
		go d.drive(driveCtx, w, task.TaskID, items)
	}
	return d.store.Get(task.TaskID)
}

func (d *Dispatcher) drive(ctx context.Context, w worker.Worker, taskID string, items <-chan worker.WorkerItem) {
	defer d.manager.Unregister(taskID)
	d.adapter.Drive(ctx, w, taskID, items)
}

func toWorkerParts(parts []a2atypes.Part) []worker.Part {
	out := make([]worker.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case a2atypes.PartData:
			out = append(out, worker.Part{Kind: worker.PartKindData, Data: p.Data})
		default:
			out = append(out, worker.Part{Kind: worker.PartKindText, Text: p.Text})
		}
	}
	return out
}

func errorResponseFor(id json.RawMessage, perr *a2atypes.ProtocolError) Response {
	return NewErrorResponse(id, codeForKind(perr.Kind), perr.Error())
}

func codeForKind(kind a2atypes.ErrorKind) int {
	switch kind {
	case a2atypes.ErrTaskNotFound:
		return CodeTaskNotFound
	case a2atypes.ErrTaskNotCancelable:
		return CodeTaskNotCancelable
	case a2atypes.ErrAuthenticationRequired:
		return CodeAuthenticationRequired
	case a2atypes.ErrUnsupportedCapability:
		return CodeUnsupportedCapability
	case a2atypes.ErrInvalidParams:
		return CodeInvalidParams
	default:
		return CodeProtocolViolation
	}
}

type taskstoreLookup struct {
	store *taskstore.Store
}

func (l taskstoreLookup) Get(taskID string) (a2atypes.TaskState, bool) {
	return l.store.GetState(taskID)
}

var _ a2atypes.TaskLookup = taskstoreLookup{}

// loadShedRetryAfter is the value suggested to callers hitting the rate
// limiter, surfaced via the retry-hint construction described in
// SPEC_FULL.md §12.
const loadShedRetryAfter = 1 * time.Second

// requestedSkill extracts the skill id a message/send call targets, when
// the caller declared one via metadata["skill"]. Not every message names a
// skill (free-form chat tasks don't), hence the bool.
func requestedSkill(msg a2atypes.Message) (string, bool) {
	if msg.Metadata == nil {
		return "", false
	}
	v, ok := msg.Metadata["skill"]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
