package planner

import (
	"errors"
	"fmt"
)

// Parse failure reasons.
const (
	ReasonEmptyInput       = "empty input"
	ReasonNoTimeframe      = "no timeframe"
	ReasonNoTasks          = "no tasks"
	ReasonTooManyTasks     = "too many tasks"
	ReasonEmptyDescription = "empty task description"
	ReasonLongDescription  = "task description too long"
)

// ParseError reports a malformed command. Index is the task position for
// per-task failures and -1 otherwise.
type ParseError struct {
	Reason string
	Index  int
}

func (e *ParseError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("parse: %s (task %d)", e.Reason, e.Index+1)
	}
	return "parse: " + e.Reason
}

func newParseError(reason string) *ParseError { return &ParseError{Reason: reason, Index: -1} }

var (
	ErrTimeframeFormat   = errors.New("unrecognized timeframe")
	ErrTimeframeOrder    = errors.New("timeframe end must be after start")
	ErrTimeframeTooShort = errors.New("timeframe is too short")
	ErrTimeframeTooLong  = errors.New("timeframe is too long")
)

// TimeframeError wraps one of the ErrTimeframe* sentinels with the offending input.
type TimeframeError struct {
	Input  string
	Window Timeframe
	Err    error
}

func (e *TimeframeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTimeframeFormat):
		return fmt.Sprintf("timeframe %q: %v", e.Input, e.Err)
	default:
		return fmt.Sprintf("timeframe %q (%s, %d min): %v", e.Input, e.Window, e.Window.Duration(), e.Err)
	}
}

func (e *TimeframeError) Unwrap() error { return e.Err }

// ShapeError marks a backend reply that could not be turned into a schedule.
// It never leaves the pipeline; Fallback absorbs it.
type ShapeError struct {
	Reason string
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Err != nil {
		return "reply shape: " + e.Reason + ": " + e.Err.Error()
	}
	return "reply shape: " + e.Reason
}

func (e *ShapeError) Unwrap() error { return e.Err }

// IsShapeError reports whether err (or anything it wraps) is a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}
