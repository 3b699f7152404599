// Package server wires an agent node's HTTP surface: JSON-RPC dispatch,
// SSE upgrade for message/stream and tasks/resubscribe, the AgentCard and
// health endpoints, and Bearer-token auth + skill-policy middleware
// (spec.md §6).
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/config"
	"github.com/a2arun/agentnode/internal/dispatcher"
	"github.com/a2arun/agentnode/internal/dispatcher/policy"
	"github.com/a2arun/agentnode/internal/eventqueue"
	"github.com/a2arun/agentnode/internal/sse"
	"github.com/a2arun/agentnode/internal/telemetry"
)

// Server exposes an agent node's HTTP surface over a *dispatcher.Dispatcher.
type Server struct {
	dispatcher *dispatcher.Dispatcher
	card       a2atypes.AgentCard
	cfg        config.Config
	tel        telemetry.Telemetry
	startedAt  time.Time

	// checkpointBackend and queueDepthMax are surfaced on /health per
	// SPEC_FULL.md §12's supplemented health-endpoint detail.
	checkpointBackend config.CheckpointBackend
	queueDepthMax     int
}

// New constructs a Server. card is served at /.well-known/agent.json; its
// Capabilities.Streaming field MUST reflect this server's actual support
// (spec.md §6).
func New(d *dispatcher.Dispatcher, card a2atypes.AgentCard, cfg config.Config, tel telemetry.Telemetry) *Server {
	return &Server{
		dispatcher:        d,
		card:              card,
		cfg:               cfg,
		tel:               tel,
		startedAt:         time.Now(),
		checkpointBackend: cfg.Checkpoint.Backend,
		queueDepthMax:     cfg.Queue.CapacityPerTask,
	}
}

// SetStartedAt overrides the process start time used by /health's
// uptime_seconds field. New already defaults this to time.Now(); callers
// constructing the Server well before binding the listener may want a
// more precise mark.
func (s *Server) SetStartedAt(t time.Time) { s.startedAt = t }

// Handler builds the http.Handler for this node. Bearer-token
// authentication is enforced on every route except the AgentCard and
// health endpoints, per spec.md §6.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", s.authMiddleware(s.policyMiddleware(http.HandlerFunc(s.handleRPC))))
	mux.Handle("/agent/authenticatedExtendedCard", s.authMiddleware(s.policyMiddleware(http.HandlerFunc(s.handleExtendedCard))))
	return mux
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleExtendedCard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

type healthResponse struct {
	Status            string `json:"status"`
	TasksActive       int    `json:"tasks_active"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	CheckpointBackend string `json:"checkpoint_backend"`
	QueueDepthMax     int    `json:"queue_depth_max"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	active := 0
	for _, t := range s.dispatcher.Store().List() {
		if !t.Status.State.Terminal() {
			active++
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		TasksActive:       active,
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		CheckpointBackend: string(s.checkpointBackend),
		QueueDepthMax:     s.queueDepthMax,
	})
}

// authMiddleware rejects non-public endpoints lacking a valid Bearer token,
// per spec.md §6: "MUST reject unauthenticated requests to non-public
// endpoints with HTTP 401 and a JSON-RPC error AuthenticationRequired." A
// node with no configured auth schemes is public by configuration.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.Auth.Schemes) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" || !s.tokenValid(token) {
			writeJSON(w, http.StatusUnauthorized, dispatcher.NewErrorResponse(
				nil, dispatcher.CodeAuthenticationRequired, "missing or invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenValid(token string) bool {
	return token != "" && token == s.cfg.Auth.TokenSource
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// policyMiddleware injects the caller's skill policy (spec.md §12
// supplemented feature) into the request context for the dispatcher to
// enforce.
func (s *Server) policyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := policy.ExtractFromHeaders(r.Header)
		ctx := policy.InjectContext(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleRPC is the POST / entry point. message/stream and tasks/resubscribe
// upgrade to an SSE stream; every other method is a synchronous JSON-RPC
// round trip through dispatcher.Handle.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := readAll(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dispatcher.NewErrorResponse(nil, dispatcher.CodeParseError, err.Error()))
		return
	}

	var peek struct {
		Method string          `json:"method"`
		ID     json.RawMessage `json:"id"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &peek); err != nil {
		writeJSON(w, http.StatusBadRequest, dispatcher.NewErrorResponse(nil, dispatcher.CodeParseError, "invalid JSON"))
		return
	}

	switch peek.Method {
	case "message/stream":
		s.handleMessageStream(w, r, peek.ID, peek.Params)
	case "tasks/resubscribe":
		s.handleTasksResubscribe(w, r, peek.ID, peek.Params)
	default:
		resp := s.dispatcher.Handle(r.Context(), body)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request, id, rawParams json.RawMessage) {
	var params struct {
		Message a2atypes.Message `json:"message"`
	}
	if err := json.Unmarshal(rawParams, &params); err != nil {
		writeJSON(w, http.StatusBadRequest, dispatcher.NewErrorResponse(id, dispatcher.CodeInvalidParams, err.Error()))
		return
	}

	task, perr := s.dispatcher.StartOrResume(r.Context(), &params.Message)
	if perr != nil {
		writeJSON(w, http.StatusOK, dispatcher.NewErrorResponse(id, codeForProtocolError(perr), perr.Error()))
		return
	}

	// The first event on a fresh subscription is always a full task
	// snapshot (spec.md §8 S2), published onto the task's own queue so a
	// subsequent resubscribe can replay it like any other event.
	queue := s.dispatcher.Queues().Queue(task.TaskID)
	queue.Publish(a2atypes.Event{
		Kind:      a2atypes.EventTaskSnapshot,
		TaskID:    task.TaskID,
		ContextID: task.ContextID,
		Snapshot:  task,
		CatchUp:   true,
	})

	s.stream(w, r, task.TaskID, queue, 0)
}

func (s *Server) handleTasksResubscribe(w http.ResponseWriter, r *http.Request, id, rawParams json.RawMessage) {
	var params struct {
		TaskID      string `json:"taskId"`
		LastEventID uint64 `json:"lastEventId"`
	}
	if err := json.Unmarshal(rawParams, &params); err != nil {
		writeJSON(w, http.StatusBadRequest, dispatcher.NewErrorResponse(id, dispatcher.CodeInvalidParams, err.Error()))
		return
	}
	if _, err := s.dispatcher.Store().Get(params.TaskID); err != nil {
		writeJSON(w, http.StatusOK, dispatcher.NewErrorResponse(id, dispatcher.CodeTaskNotFound, err.Error()))
		return
	}

	lastEventID := params.LastEventID
	if headerID := sse.ParseLastEventID(r.Header); headerID > lastEventID {
		lastEventID = headerID
	}

	queue := s.dispatcher.Queues().Queue(params.TaskID)
	s.stream(w, r, params.TaskID, queue, lastEventID)
}

// stream drains queue onto an SSE response until the request context ends,
// the queue closes, the subscriber lags, or lastEventID can't be honored.
// In that last case (spec.md §4.5 Replay policy) it sends a fresh task
// snapshot marked catch_up=false in place of the un-replayable events,
// then closes the stream — the caller is expected to reopen
// tasks/resubscribe without a stale Last-Event-ID if it wants to keep
// following the task.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, taskID string, queue *eventqueue.Queue, lastEventID uint64) {
	writer, err := sse.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ok, err := sse.Stream(r.Context(), writer, queue, lastEventID)
	if err != nil {
		s.tel.Log.Error(r.Context(), "sse stream ended with error", err)
		return
	}
	if ok {
		return
	}

	task, getErr := s.dispatcher.Store().Get(taskID)
	if getErr != nil {
		s.tel.Log.Warn(r.Context(), "sse resubscribe requested an evicted sequence for an unknown task", telemetry.KV{Key: "taskId", Val: taskID})
		return
	}
	if err := writer.WriteEvent(a2atypes.Event{
		Kind:      a2atypes.EventTaskSnapshot,
		TaskID:    task.TaskID,
		ContextID: task.ContextID,
		Snapshot:  task,
		CatchUp:   false,
	}); err != nil {
		s.tel.Log.Error(r.Context(), "sse catch-up snapshot write failed", err)
	}
}

func codeForProtocolError(perr *a2atypes.ProtocolError) int {
	switch perr.Kind {
	case a2atypes.ErrTaskNotFound:
		return dispatcher.CodeTaskNotFound
	case a2atypes.ErrTaskNotCancelable:
		return dispatcher.CodeTaskNotCancelable
	case a2atypes.ErrAuthenticationRequired:
		return dispatcher.CodeAuthenticationRequired
	case a2atypes.ErrUnsupportedCapability:
		return dispatcher.CodeUnsupportedCapability
	case a2atypes.ErrInvalidParams:
		return dispatcher.CodeInvalidParams
	default:
		return dispatcher.CodeProtocolViolation
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
