package task

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable classification attached to every failure
// surfaced by the pipeline, letting callers distinguish transient classes
// (Timeout, ToolFailure) from input-fix classes (InvalidEditSpec, FormatNotFound).
type ErrorKind string

const (
	UnreachableSource ErrorKind = "unreachable_source"
	InvalidSource     ErrorKind = "invalid_source"
	FormatNotFound    ErrorKind = "format_not_found"
	InvalidEditSpec   ErrorKind = "invalid_edit_spec"
	ToolFailure       ErrorKind = "tool_failure"
	Timeout           ErrorKind = "timeout"
	Busy              ErrorKind = "busy"
	NotFound          ErrorKind = "not_found"
	IOFailure         ErrorKind = "io_failure"
)

var ErrNotFound = errors.New("no task could be found")

// Error pairs an ErrorKind with a human-readable detail string. For
// ToolFailure errors the detail carries the stderr tail of the tool.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func NewError(kind ErrorKind, format string, interpolations ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, interpolations...)}
}

// AsError coerces any error into a task Error; errors which are not already
// classified are recorded under the fallback kind provided.
func AsError(err error, fallback ErrorKind) *Error {
	var taskErr *Error
	if errors.As(err, &taskErr) {
		return taskErr
	}

	return &Error{Kind: fallback, Detail: err.Error()}
}
