// Package worker implements C5, the worker adapter: it bridges an opaque
// reasoning Worker (the "brain", never itself part of this repo's scope)
// into Task and Event mutations. Workers emit a tagged-union WorkerItem
// stream; Adapter translates each item kind into the corresponding
// taskstore mutation and eventqueue publication per spec.md §4.7's
// translation table.
package worker

import "context"

// Worker is the narrow interface every reasoning engine must satisfy to
// run inside a node. The node never inspects how a Worker reasons; it only
// drives Start/Resume/Cancel and consumes the Items channel.
type Worker interface {
	// Start begins work on a new task given its triggering message parts.
	// The returned channel is closed when the worker has emitted a
	// terminal item (Final or Error) or ctx is canceled.
	Start(ctx context.Context, req StartRequest) (<-chan WorkerItem, error)
	// Resume continues a worker previously parked in input-required or
	// auth-required state, given the message that unblocks it.
	Resume(ctx context.Context, req ResumeRequest) (<-chan WorkerItem, error)
	// Cancel requests cooperative cancellation of an in-flight task. The
	// worker has until the adapter's configured deadline to react before
	// the adapter force-terminates it (spec.md §4.7 cancel-with-deadline).
	Cancel(ctx context.Context, taskID string) error
	// Snapshot returns an opaque byte blob capturing enough worker state
	// to resume later via Resume. Adapter does not call it, so the
	// checkpoints it writes carry no worker state.
	Snapshot(ctx context.Context, taskID string) ([]byte, error)
}

// StartRequest carries everything a Worker needs to begin a new task.
type StartRequest struct {
	TaskID    string
	ContextID string
	Parts     []Part
}

// ResumeRequest carries everything a Worker needs to resume a parked task.
type ResumeRequest struct {
	TaskID string
	Parts  []Part
}

// Part mirrors a2atypes.Part without importing it, keeping this package's
// public surface independent of the wire model — adapter.go does the
// translation at the boundary.
type Part struct {
	Kind PartKind
	Text string
	Data []byte
}

// PartKind discriminates Part.
type PartKind string

// Recognized part kinds, matching a2atypes.PartKind's text/data cases. There
// is no file kind: the dispatcher hands every non-data part to a worker as a
// text part carrying only its Text field, so file content does not reach
// workers.
const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
)

// ItemKind discriminates the WorkerItem tagged union (spec.md §4.7).
type ItemKind string

// Recognized WorkerItem kinds.
const (
	ItemThinking        ItemKind = "thinking"
	ItemToolInvocation   ItemKind = "tool_invocation"
	ItemToolResult       ItemKind = "tool_result"
	ItemPartialArtifact  ItemKind = "partial_artifact"
	ItemNeedsInput       ItemKind = "needs_input"
	ItemNeedsAuth        ItemKind = "needs_auth"
	ItemFinal            ItemKind = "final"
	ItemError            ItemKind = "error"
)

// WorkerItem is one unit emitted by a Worker while processing a task.
// Exactly one payload field matching Kind is populated.
type WorkerItem struct {
	Kind ItemKind

	// Thinking holds a human-readable reasoning trace fragment. Populated
	// when Kind == ItemThinking. Translated into a non-terminal
	// status-update event with this text as the status message, never
	// persisted to task history (spec.md §4.7).
	Thinking string

	// ToolName/ToolArgs are populated when Kind == ItemToolInvocation.
	ToolName string
	ToolArgs []byte

	// ToolResult is populated when Kind == ItemToolResult.
	ToolResult []byte

	// Artifact fields are populated when Kind == ItemPartialArtifact.
	ArtifactID   string
	ArtifactName string
	ArtifactPart Part
	Append       bool
	LastChunk    bool

	// Prompt is populated when Kind is ItemNeedsInput or ItemNeedsAuth:
	// the message surfaced to the caller explaining what is needed.
	Prompt string

	// FinalParts is populated when Kind == ItemFinal: the task's
	// concluding message content.
	FinalParts []Part

	// Err is populated when Kind == ItemError.
	Err error
}
