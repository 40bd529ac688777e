package bodkin

import (
	"errors"
	"fmt"
)

// ErrInvalidRowLength reports a key_len outside [0, MaxRowLength]. Launches
// rejected with it never touch any buffer; test with errors.Is.
var ErrInvalidRowLength = errors.New("row length outside supported range")

// ValidationError reports mismatched buffer shapes, dtypes, or launch
// geometry caught before any work is enqueued.
type ValidationError struct {
	Op  string
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func newValidationError(op, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
