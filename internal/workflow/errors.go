package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation failed")
	ErrInvalidState  = errors.New("invalid state")
	ErrConflict      = errors.New("conflict")
	ErrCycleDetected = fmt.Errorf("%w: dependency cycle detected", ErrInvalidState)
)

// StateError reports an operation rejected by the current state of an
// aggregate. It matches ErrInvalidState under errors.Is.
type StateError struct {
	Op        string
	Current   string
	Reason    string
	Offending []string
}

func (e *StateError) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidState.Error())
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.Current != "" {
		fmt.Fprintf(&b, " (current %s)", e.Current)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Offending) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Offending, ", "))
	}
	return b.String()
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

func invalidState(op string, current any, reason string, offending ...string) error {
	cur := ""
	if current != nil {
		cur = fmt.Sprint(current)
	}
	return &StateError{Op: op, Current: cur, Reason: reason, Offending: offending}
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
