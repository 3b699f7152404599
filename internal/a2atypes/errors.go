package a2atypes

import "fmt"

// ErrorKind enumerates the closed client-caused and protocol error taxonomy
// from spec.md §7.
type ErrorKind string

// Client-caused and protocol error kinds. The dispatcher (internal/dispatcher)
// maps InvalidParams onto the standard -32602 code and the other kinds onto
// codes in the -32000..-32099 band.
const (
	ErrProtocolViolation     ErrorKind = "ProtocolViolation"
	ErrInvalidParams         ErrorKind = "InvalidParams"
	ErrTaskNotFound          ErrorKind = "TaskNotFound"
	ErrTaskNotCancelable     ErrorKind = "TaskNotCancelable"
	ErrAuthenticationRequired ErrorKind = "AuthenticationRequired"
	ErrUnsupportedCapability ErrorKind = "UnsupportedCapability"
)

// ProtocolError is a structured client-caused or protocol error. It carries
// enough information for the dispatcher to pick a JSON-RPC error code
// without re-deriving it from a string message.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewProtocolError constructs a ProtocolError with a formatted message.
func NewProtocolError(kind ErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
