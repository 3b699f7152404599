package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
)

// Adapter drives a Worker and translates its WorkerItem stream into
// taskstore mutations and eventqueue publications, per the translation
// table in spec.md §4.7.
type Adapter struct {
	store      *taskstore.Store
	queues     *eventqueue.Registry
	sync       *checkpoint.Synchronizer
	threadMap  *checkpoint.ThreadMap
	cancelWait time.Duration
	tel        telemetry.Telemetry
}

// NewAdapter constructs an Adapter. cancelWait is the deadline the adapter
// gives a Worker to react cooperatively to Cancel before force-terminating
// it (spec.md §4.7).
func NewAdapter(
	store *taskstore.Store,
	queues *eventqueue.Registry,
	sync *checkpoint.Synchronizer,
	threadMap *checkpoint.ThreadMap,
	cancelWait time.Duration,
	tel telemetry.Telemetry,
) *Adapter {
	if cancelWait <= 0 {
		cancelWait = 5 * time.Second
	}
	return &Adapter{store: store, queues: queues, sync: sync, threadMap: threadMap, cancelWait: cancelWait, tel: tel}
}

// Drive runs w against an already-started item stream, applying each
// WorkerItem to task taskID until the stream closes. It is used by both
// Start and Resume call sites, which differ only in how the stream is
// obtained.
func (a *Adapter) Drive(ctx context.Context, w Worker, taskID string, items <-chan WorkerItem) {
	q := a.queues.Queue(taskID)
	for {
		select {
		case item, ok := <-items:
			if !ok {
				return
			}
			a.apply(ctx, w, taskID, q, item)
		case <-ctx.Done():
			a.forceCancel(w, taskID)
			return
		}
	}
}

func (a *Adapter) apply(ctx context.Context, w Worker, taskID string, q *eventqueue.Queue, item WorkerItem) {
	switch item.Kind {
	case ItemThinking:
		a.publishStatus(taskID, q, a2atypes.StateWorking, item.Thinking, false)

	case ItemToolInvocation, ItemToolResult:
		// Tool activity is surfaced as an agent message event carrying a
		// structured data part so SSE observers can render tool
		// call/response pairs; the message is also appended to task.History.
		msg := toolMessage(taskID, item)
		a.publishMessage(taskID, q, msg)

	case ItemPartialArtifact:
		a.publishArtifact(taskID, q, item)

	case ItemNeedsInput:
		a.transition(ctx, taskID, q, a2atypes.StateInputRequired, item.Prompt, true)

	case ItemNeedsAuth:
		a.transition(ctx, taskID, q, a2atypes.StateAuthRequired, item.Prompt, true)

	case ItemFinal:
		a.finalize(ctx, w, taskID, q, item)

	case ItemError:
		errMsg := ""
		if item.Err != nil {
			errMsg = item.Err.Error()
		}
		a.transition(ctx, taskID, q, a2atypes.StateFailed, errMsg, true)
	}
}

func (a *Adapter) publishStatus(taskID string, q *eventqueue.Queue, state a2atypes.TaskState, text string, final bool) {
	var msg *a2atypes.Message
	if text != "" {
		msg = &a2atypes.Message{
			MessageID: uuid.NewString(),
			Role:      a2atypes.RoleAgent,
			Parts:     []a2atypes.Part{{Kind: a2atypes.PartText, Text: text}},
			TaskID:    taskID,
		}
	}
	status := a2atypes.TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()}
	q.Publish(a2atypes.Event{
		Kind:   a2atypes.EventStatusUpdate,
		TaskID: taskID,
		Status: &status,
		Final:  final,
	})
}

func (a *Adapter) publishMessage(taskID string, q *eventqueue.Queue, msg a2atypes.Message) {
	_, _ = a.store.Mutate(taskID, func(t *a2atypes.Task) error {
		t.History = append(t.History, msg)
		return nil
	})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventMessage, TaskID: taskID, Message: &msg})
}

func (a *Adapter) publishArtifact(taskID string, q *eventqueue.Queue, item WorkerItem) {
	part := partFromWorker(item.ArtifactPart)
	artifact := a2atypes.Artifact{ArtifactID: item.ArtifactID, Name: item.ArtifactName, Parts: []a2atypes.Part{part}}

	_, _ = a.store.Mutate(taskID, func(t *a2atypes.Task) error {
		if item.Append {
			for i := range t.Artifacts {
				if t.Artifacts[i].ArtifactID == item.ArtifactID {
					t.Artifacts[i].Parts = append(t.Artifacts[i].Parts, part)
					return nil
				}
			}
		}
		t.Artifacts = append(t.Artifacts, artifact)
		return nil
	})

	q.Publish(a2atypes.Event{
		Kind:      a2atypes.EventArtifactUpdate,
		TaskID:    taskID,
		Artifact:  &artifact,
		Append:    item.Append,
		LastChunk: item.LastChunk,
	})
}

// transition moves a task to a non-active-working state (input-required,
// auth-required, failed) and checkpoints immediately — these are the
// states spec.md §4.6 says must be flushed synchronously rather than left
// to the write-coalescing window, since a crash losing one of them strands
// a task a caller is actively waiting on.
func (a *Adapter) transition(ctx context.Context, taskID string, q *eventqueue.Queue, state a2atypes.TaskState, text string, final bool) {
	msg := &a2atypes.Message{
		MessageID: uuid.NewString(),
		Role:      a2atypes.RoleAgent,
		Parts:     []a2atypes.Part{{Kind: a2atypes.PartText, Text: text}},
		TaskID:    taskID,
	}
	status := a2atypes.TaskStatus{State: state, Message: msg, Timestamp: time.Now().UTC()}

	_, _ = a.store.Mutate(taskID, func(t *a2atypes.Task) error {
		t.Status = status
		return nil
	})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventStatusUpdate, TaskID: taskID, Status: &status, Final: final && state.Terminal()})

	a.checkpointNow(ctx, taskID, state)
}

func (a *Adapter) finalize(ctx context.Context, w Worker, taskID string, q *eventqueue.Queue, item WorkerItem) {
	parts := make([]a2atypes.Part, 0, len(item.FinalParts))
	for _, p := range item.FinalParts {
		parts = append(parts, partFromWorker(p))
	}
	msg := a2atypes.Message{MessageID: uuid.NewString(), Role: a2atypes.RoleAgent, Parts: parts, TaskID: taskID}
	status := a2atypes.TaskStatus{State: a2atypes.StateCompleted, Message: &msg, Timestamp: time.Now().UTC()}

	_, _ = a.store.Mutate(taskID, func(t *a2atypes.Task) error {
		t.History = append(t.History, msg)
		t.Status = status
		return nil
	})
	q.Publish(a2atypes.Event{Kind: a2atypes.EventStatusUpdate, TaskID: taskID, Status: &status, Final: true})

	a.checkpointNow(ctx, taskID, a2atypes.StateCompleted)
	_ = w // w.Snapshot is not called; checkpoints carry no worker state
}

func (a *Adapter) checkpointNow(ctx context.Context, taskID string, state a2atypes.TaskState) {
	threadID, ok := a.threadMap.ThreadFor(taskID)
	if !ok {
		threadID = taskID
		a.threadMap.Bind(taskID, threadID)
	}
	cp := a2atypes.Checkpoint{ThreadID: threadID, TaskID: taskID, Timestamp: time.Now().UTC()}
	a.sync.Request(ctx, checkpoint.TaskKey(taskID), cp, state)
	_ = a.sync.FlushNow(ctx, checkpoint.TaskKey(taskID))
}

func (a *Adapter) forceCancel(w Worker, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cancelWait)
	defer cancel()
	if err := w.Cancel(ctx, taskID); err != nil && a.tel.Log != nil {
		a.tel.Log.Warn(ctx, "worker cancel returned error", telemetry.KV{Key: "taskId", Val: taskID}, telemetry.KV{Key: "error", Val: err.Error()})
	}
}

func partFromWorker(p Part) a2atypes.Part {
	switch p.Kind {
	case PartKindData:
		return a2atypes.Part{Kind: a2atypes.PartData, Data: json.RawMessage(p.Data)}
	default:
		return a2atypes.Part{Kind: a2atypes.PartText, Text: p.Text}
	}
}

func toolMessage(taskID string, item WorkerItem) a2atypes.Message {
	var data []byte
	if item.Kind == ItemToolInvocation {
		data, _ = json.Marshal(map[string]any{"tool": item.ToolName, "args": json.RawMessage(item.ToolArgs)})
	} else {
		data, _ = json.Marshal(map[string]any{"tool": item.ToolName, "result": json.RawMessage(item.ToolResult)})
	}
	return a2atypes.Message{
		MessageID: uuid.NewString(),
		Role:      a2atypes.RoleAgent,
		TaskID:    taskID,
		Parts:     []a2atypes.Part{{Kind: a2atypes.PartData, Data: data}},
	}
}
