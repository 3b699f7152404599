// Package a2atypes defines the canonical A2A protocol data types shared by
// every node component: parts, messages, artifacts, tasks, events, and agent
// cards. Field names use camelCase JSON tags to conform to the A2A wire
// format.
//
//nolint:tagliatelle // A2A protocol specification requires camelCase JSON field names
package a2atypes

import (
	"encoding/json"
	"time"
)

// TaskState is the canonical task lifecycle state (spec.md §4.3).
type TaskState string

// Task lifecycle states. submitted is the initial state; completed, failed,
// canceled, and rejected are terminal.
const (
	StateSubmitted     TaskState = "submitted"
	StateWorking       TaskState = "working"
	StateInputRequired TaskState = "input-required"
	StateAuthRequired  TaskState = "auth-required"
	StateCompleted     TaskState = "completed"
	StateFailed        TaskState = "failed"
	StateCanceled      TaskState = "canceled"
	StateRejected      TaskState = "rejected"
	StateUnknown       TaskState = "unknown"
)

// Terminal reports whether s is a terminal lifecycle state (I2).
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	default:
		return false
	}
}

// Role identifies the author of a Message.
type Role string

// Recognized message roles.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// PartKind discriminates the Part tagged union.
type PartKind string

// Recognized part kinds.
const (
	PartText PartKind = "text"
	PartFile PartKind = "file"
	PartData PartKind = "data"
)

// Part is a content unit appearing in messages and artifacts. Exactly one of
// Text, File, or Data is populated, selected by Kind.
type Part struct {
	// Kind discriminates which of Text, File, Data is meaningful.
	Kind PartKind `json:"kind"`
	// Text holds the content when Kind == PartText.
	Text string `json:"text,omitempty"`
	// File holds the content when Kind == PartFile.
	File *FilePart `json:"file,omitempty"`
	// Data holds the content when Kind == PartData.
	Data json.RawMessage `json:"data,omitempty"`
	// Metadata carries optional free-form, implementation-defined metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FilePart describes a file content unit. Exactly one of InlineBytes or URI
// is set.
type FilePart struct {
	Name        string `json:"name,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	InlineBytes []byte `json:"bytes,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// Message is a single turn in a task's conversation (spec.md §3).
type Message struct {
	MessageID        string         `json:"messageId"`
	Role             Role           `json:"role"`
	Parts            []Part         `json:"parts"`
	TaskID           string         `json:"taskId,omitempty"`
	ContextID        string         `json:"contextId,omitempty"`
	ReferenceTaskIDs []string       `json:"referenceTaskIds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Artifact is a task's structured output, possibly streamed in chunks
// (spec.md §3). ArtifactID is stable across chunks belonging to the same
// artifact.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// TaskStatus is a point-in-time status snapshot for a Task.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work tracked by the node (spec.md §3).
type Task struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId"`
	Status    TaskStatus     `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	History   []Message      `json:"history"`
	Artifacts []Artifact     `json:"artifacts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of t so callers holding a returned snapshot never
// observe later mutations performed by the task store.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.History = append([]Message(nil), t.History...)
	cp.Artifacts = append([]Artifact(nil), t.Artifacts...)
	if t.Status.Message != nil {
		msg := *t.Status.Message
		cp.Status.Message = &msg
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// EventKind discriminates the Event tagged union emitted on a task stream.
type EventKind string

// Recognized event kinds (spec.md §3).
const (
	EventTaskSnapshot   EventKind = "task-snapshot"
	EventMessage        EventKind = "message"
	EventStatusUpdate   EventKind = "status-update"
	EventArtifactUpdate EventKind = "artifact-update"
)

// Event is emitted on a task's event stream. Seq is assigned by the event
// queue and used as the SSE "id:" field; exactly one of the payload fields
// matching Kind is populated.
type Event struct {
	Kind      EventKind `json:"kind"`
	Seq       uint64    `json:"seq"`
	TaskID    string    `json:"taskId"`
	ContextID string    `json:"contextId"`

	// Snapshot is populated when Kind == EventTaskSnapshot.
	Snapshot *Task `json:"snapshot,omitempty"`
	// CatchUp reports whether Snapshot represents the task's complete
	// history. It is true for the snapshot a fresh subscription always
	// opens with, and false for the fallback snapshot sent in place of a
	// resubscribe replay whose requested Last-Event-ID fell outside the
	// retained window — events between that ID and Snapshot were not
	// replayed. Only meaningful when Kind == EventTaskSnapshot.
	CatchUp bool `json:"catchUp"`
	// Message is populated when Kind == EventMessage.
	Message *Message `json:"message,omitempty"`
	// Status is populated when Kind == EventStatusUpdate.
	Status *TaskStatus `json:"status,omitempty"`
	// Final reports whether Status.State is terminal. Only meaningful when
	// Kind == EventStatusUpdate.
	Final bool `json:"final,omitempty"`
	// Artifact is populated when Kind == EventArtifactUpdate.
	Artifact *Artifact `json:"artifact,omitempty"`
	// Append reports whether Artifact's parts extend a previously emitted
	// artifact with the same ArtifactID. Only meaningful when
	// Kind == EventArtifactUpdate.
	Append bool `json:"append,omitempty"`
	// LastChunk marks the final chunk of a streamed artifact. Only
	// meaningful when Kind == EventArtifactUpdate.
	LastChunk bool `json:"lastChunk,omitempty"`
}

// AgentCard is a node's public discovery document, served at
// /.well-known/agent.json (spec.md §3, §6).
type AgentCard struct {
	Name                string                     `json:"name"`
	Version             string                     `json:"version"`
	Description         string                     `json:"description,omitempty"`
	Endpoints           Endpoints                  `json:"endpoints"`
	Skills              []Skill                    `json:"skills"`
	Capabilities        Capabilities               `json:"capabilities"`
	AuthenticationSchemes []string                 `json:"authenticationSchemes,omitempty"`
}

// Endpoints describes the network locations a node exposes.
type Endpoints struct {
	RPC string `json:"rpc"`
}

// Skill is a single capability advertised by an agent node for routing
// purposes (used by the orchestrator's Route step, spec.md §4.9).
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Capabilities reports protocol-level feature support.
type Capabilities struct {
	Streaming               bool `json:"streaming"`
	PushNotifications       bool `json:"pushNotifications"`
	StateTransitionHistory  bool `json:"stateTransitionHistory"`
	// SynchronousCompletion declares whether message/send blocks until the
	// task reaches a terminal state (true) or returns the current snapshot
	// immediately (false). See spec.md §9 Open Questions.
	SynchronousCompletion bool `json:"synchronousCompletion"`
}

// Checkpoint is a durable snapshot of task state and/or worker conversational
// state (spec.md §3, §4.6).
type Checkpoint struct {
	ThreadID    string    `json:"threadId"`
	TaskID      string    `json:"taskId"`
	WorkerState []byte    `json:"workerState,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
