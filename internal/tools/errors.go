package tools

import "fmt"

// ErrorKind classifies tool invocation failures. Tool errors are never
// fatal to a session; they are returned to the model as structured
// responses so it can react conversationally.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not-found"
	KindInvalidArgument ErrorKind = "invalid-argument"
	KindUnavailable     ErrorKind = "upstream-unavailable"
	KindTimeout         ErrorKind = "timeout"
)

// Error is a typed tool invocation failure.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
}

// AsError extracts a *Error from err, or wraps err as an
// upstream-unavailable failure.
func AsError(tool string, err error) *Error {
	if te, ok := err.(*Error); ok {
		return te
	}
	return &Error{Kind: KindUnavailable, Tool: tool, Message: err.Error()}
}
