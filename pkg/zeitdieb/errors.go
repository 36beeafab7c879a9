package zeitdieb

import (
	"errors"
	"fmt"
)

// FormatError reports a malformed format spec.
type FormatError struct {
	Spec   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("zeitdieb: invalid format %q: %s", e.Spec, e.Reason)
}

// UsageError reports a StopWatch operation called in the wrong state.
type UsageError struct {
	Op    string
	State State
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("zeitdieb: cannot %s stopwatch in state %s", e.Op, e.State)
}

// TargetError reports a target that could not be resolved.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("zeitdieb: target %q: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}

// Sentinel causes wrapped by TargetError.
var (
	ErrMalformedTarget = errors.New("expected module-path:callable")
	ErrUnknownTarget   = errors.New("no such callable")
)
