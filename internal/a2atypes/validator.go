package a2atypes

import (
	"unicode/utf8"
)

// TaskLookup resolves a task-id to its current state for validation purposes.
// internal/taskstore.Store satisfies this interface.
type TaskLookup interface {
	// Get returns the task's current state. ok is false when the task-id is
	// unknown.
	Get(taskID string) (state TaskState, ok bool)
}

// ValidateIncomingMessage validates an inbound Message per spec.md §4.1.
// lookup may be nil, in which case task-id references are not checked
// against a store (used for messages that always create a new task).
func ValidateIncomingMessage(m *Message, lookup TaskLookup) *ProtocolError {
	if m == nil {
		return NewProtocolError(ErrInvalidParams, "message is required")
	}
	if len(m.Parts) == 0 {
		return NewProtocolError(ErrInvalidParams, "message parts must not be empty")
	}
	if m.Role != RoleUser {
		return NewProtocolError(ErrInvalidParams, "inbound message role must be %q, got %q", RoleUser, m.Role)
	}
	for i, p := range m.Parts {
		if err := validatePart(p); err != nil {
			err.Message = "parts[" + itoa(i) + "]: " + err.Message
			return err
		}
	}
	if m.TaskID != "" && lookup != nil {
		state, ok := lookup.Get(m.TaskID)
		if !ok {
			return NewProtocolError(ErrTaskNotFound, "task %q not found", m.TaskID)
		}
		if state.Terminal() && state != StateInputRequired {
			// Terminal tasks are not an error here: spec.md §4.2 Lifecycle
			// says a message/send against a terminal task-id creates a NEW
			// task. The dispatcher handles that resolution; the validator
			// only rejects structurally invalid input.
			_ = state
		}
	}
	return nil
}

func validatePart(p Part) *ProtocolError {
	switch p.Kind {
	case PartText:
		if !utf8.ValidString(p.Text) {
			return NewProtocolError(ErrInvalidParams, "text part is not valid UTF-8")
		}
	case PartFile:
		if p.File == nil {
			return NewProtocolError(ErrInvalidParams, "file part missing file payload")
		}
		hasInline := len(p.File.InlineBytes) > 0
		hasURI := p.File.URI != ""
		if hasInline == hasURI {
			return NewProtocolError(ErrInvalidParams, "file part must set exactly one of inline bytes or uri")
		}
		if p.File.MIMEType == "" {
			return NewProtocolError(ErrInvalidParams, "file part missing mimeType")
		}
	case PartData:
		if len(p.Data) == 0 {
			return NewProtocolError(ErrInvalidParams, "data part is empty")
		}
	default:
		return NewProtocolError(ErrInvalidParams, "unknown part kind %q", p.Kind)
	}
	return nil
}

// RPCEnvelope is the minimal shape the validator checks before a method's
// params are decoded into a concrete Go type. The dispatcher decodes the
// full JSON-RPC 2.0 object; this type captures only what validation needs.
type RPCEnvelope struct {
	JSONRPC string
	Method  string
	HasID   bool
}

// recognizedMethods lists the A2A JSON-RPC methods from spec.md §4.4.
var recognizedMethods = map[string]bool{
	"message/send":                          true,
	"message/stream":                        true,
	"tasks/get":                             true,
	"tasks/cancel":                          true,
	"tasks/resubscribe":                     true,
	"tasks/pushNotificationConfig/set":       true,
	"tasks/pushNotificationConfig/get":       true,
	"tasks/pushNotificationConfig/list":      true,
	"tasks/pushNotificationConfig/delete":    true,
}

// ValidateRPCEnvelope validates the outer JSON-RPC 2.0 envelope shape per
// spec.md §4.1 and §4.4.
func ValidateRPCEnvelope(e RPCEnvelope) *ProtocolError {
	if e.JSONRPC != "2.0" {
		return NewProtocolError(ErrProtocolViolation, "jsonrpc version must be \"2.0\", got %q", e.JSONRPC)
	}
	if e.Method == "" {
		return NewProtocolError(ErrProtocolViolation, "method is required")
	}
	if !recognizedMethods[e.Method] {
		return NewProtocolError(ErrProtocolViolation, "unrecognized method %q", e.Method)
	}
	return nil
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
