package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/checkpoint"
	"github.com/a2arun/agentnode/internal/dispatcher/policy"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/taskmanager"
	"github.com/a2arun/agentnode/internal/taskstore"
	"github.com/a2arun/agentnode/internal/telemetry"
	"github.com/a2arun/agentnode/internal/worker"
)

type stubWorker struct{}

func (stubWorker) Start(context.Context, worker.StartRequest) (<-chan worker.WorkerItem, error) {
	ch := make(chan worker.WorkerItem, 1)
	ch <- worker.WorkerItem{Kind: worker.ItemFinal, FinalParts: []worker.Part{{Kind: worker.PartKindText, Text: "ok"}}}
	close(ch)
	return ch, nil
}
func (stubWorker) Resume(context.Context, worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
	ch := make(chan worker.WorkerItem, 1)
	ch <- worker.WorkerItem{Kind: worker.ItemFinal, FinalParts: []worker.Part{{Kind: worker.PartKindText, Text: "resumed"}}}
	close(ch)
	return ch, nil
}
func (stubWorker) Cancel(context.Context, string) error           { return nil }
func (stubWorker) Snapshot(context.Context, string) ([]byte, error) { return nil, nil }

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	store := taskstore.New()
	queues := eventqueue.NewRegistry(16, 16)
	mem := checkpoint.NewMemoryStore()
	sync := checkpoint.NewSynchronizer(mem, checkpoint.DefaultRetentionPolicy(), time.Millisecond)
	threadMap := checkpoint.NewThreadMap()
	tel := telemetry.NewNoop()
	manager := taskmanager.NewManager(store, queues, sync, threadMap, tel)
	adapter := worker.NewAdapter(store, queues, sync, threadMap, 50*time.Millisecond, tel)

	return New(Config{
		Store:     store,
		Queues:    queues,
		Manager:   manager,
		Adapter:   adapter,
		NewWorker: func() worker.Worker { return stubWorker{} },
		Start: func(ctx context.Context, w worker.Worker, req worker.StartRequest) (<-chan worker.WorkerItem, error) {
			return w.Start(ctx, req)
		},
		Resume: func(ctx context.Context, w worker.Worker, req worker.ResumeRequest) (<-chan worker.WorkerItem, error) {
			return w.Resume(ctx, req)
		},
		Telemetry: tel,
	})
}

func TestHandleRejectsBadJSON(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Handle(context.Background(), []byte("{not json"))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeParseError, resp.Error.Code)
}

func TestHandleRejectsUnrecognizedMethod(t *testing.T) {
	d := newTestDispatcher(t)
	resp := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"bogus","id":1}`))
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

func TestHandleMessageSendCreatesTaskAndCompletes(t *testing.T) {
	d := newTestDispatcher(t)
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "message/send",
		"id":      1,
		"params": map[string]any{
			"message": map[string]any{
				"messageId": "m1",
				"role":      "user",
				"parts":     []map[string]any{{"kind": "text", "text": "hi"}},
			},
		},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	resp := d.Handle(context.Background(), raw)
	require.Nil(t, resp.Error)

	var task a2atypes.Task
	require.NoError(t, json.Unmarshal(resp.Result, &task))
	require.NotEmpty(t, task.TaskID)

	// Give the async drive goroutine a moment to finalize.
	require.Eventually(t, func() bool {
		got, err := d.store.Get(task.TaskID)
		return err == nil && got.Status.State == a2atypes.StateCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestHandleTasksGetUnknownReturnsTaskNotFound(t *testing.T) {
	d := newTestDispatcher(t)
	req := map[string]any{"jsonrpc": "2.0", "method": "tasks/get", "id": 1, "params": map[string]any{"taskId": "missing"}}
	raw, _ := json.Marshal(req)

	resp := d.Handle(context.Background(), raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeTaskNotFound, resp.Error.Code)
}

func TestHandlePushNotificationMethodsReturnUnsupported(t *testing.T) {
	d := newTestDispatcher(t)
	req := map[string]any{"jsonrpc": "2.0", "method": "tasks/pushNotificationConfig/set", "id": 1, "params": map[string]any{}}
	raw, _ := json.Marshal(req)

	resp := d.Handle(context.Background(), raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeUnsupportedCapability, resp.Error.Code)
}

func TestHandleMessageSendRejectsDataPartFailingSchema(t *testing.T) {
	d := newTestDispatcher(t)
	d.schemas = a2atypes.NewSchemaRegistry()
	require.NoError(t, d.schemas.Register("payments.charge", []byte(`{
		"type": "object",
		"properties": {"amount": {"type": "number"}},
		"required": ["amount"]
	}`)))

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "message/send",
		"id":      1,
		"params": map[string]any{
			"message": map[string]any{
				"messageId": "m1",
				"role":      "user",
				"parts":     []map[string]any{{"kind": "data", "data": map[string]any{"amount": "not-a-number"}}},
				"metadata":  map[string]any{"skill": "payments.charge"},
			},
		},
	}
	raw, _ := json.Marshal(req)

	resp := d.Handle(context.Background(), raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandleMessageSendDeniedBySkillPolicy(t *testing.T) {
	d := newTestDispatcher(t)
	ctx := policy.InjectContext(context.Background(), policy.Policy{DenyList: []string{"restricted"}})

	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "message/send",
		"id":      1,
		"params": map[string]any{
			"message": map[string]any{
				"messageId": "m1",
				"role":      "user",
				"parts":     []map[string]any{{"kind": "text", "text": "hi"}},
				"metadata":  map[string]any{"skill": "restricted"},
			},
		},
	}
	raw, _ := json.Marshal(req)

	resp := d.Handle(ctx, raw)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeUnsupportedCapability, resp.Error.Code)
}
