package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIterationLimitExceeded marks a run that used its whole iteration budget
// while the model was still requesting tools.
var ErrIterationLimitExceeded = errors.New("iteration limit exceeded")

// ErrNoDataset is returned when a question arrives before any upload.
var ErrNoDataset = errors.New("no dataset uploaded")

// ValidationError reports tool arguments that are missing, mistyped or refer
// to an unavailable resource.
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

func newValidationError(tool string, problems ...string) *ValidationError {
	return &ValidationError{Tool: tool, Problems: problems}
}

// UnknownToolError reports a request for a tool the catalog does not hold.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ParseError reports model output that could not be turned into structured data.
type ParseError struct {
	Attempts int
	Raw      string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse model output after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ModelServiceError wraps a failed language model call.
type ModelServiceError struct {
	Op  string
	Err error
}

func (e *ModelServiceError) Error() string {
	return fmt.Sprintf("model service error during %s: %v", e.Op, e.Err)
}

func (e *ModelServiceError) Unwrap() error { return e.Err }

// ExecutionError reports a tool body that failed while running.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// GateError reports that the relevance gate could not reach a verdict.
type GateError struct {
	Err error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("unable to evaluate relevance: %v", e.Err)
}

func (e *GateError) Unwrap() error { return e.Err }

// recoverable reports errors that are fed back to the model as tool results
// instead of ending the run.
func recoverable(err error) bool {
	var (
		verr *ValidationError
		uerr *UnknownToolError
		perr *ParseError
		eerr *ExecutionError
	)
	return errors.As(err, &verr) || errors.As(err, &uerr) || errors.As(err, &perr) || errors.As(err, &eerr)
}

// ErrEmptyPrompt is returned for blank questions.
var ErrEmptyPrompt = errors.New("prompt is empty")
