package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the orchestrator matches exactly one
// of these with errors.Is.
var (
	ErrUsage                  = errors.New("usage error")
	ErrBegin                  = errors.New("prediction task begin failed")
	ErrUpload                 = errors.New("media upload failed")
	ErrTrigger                = errors.New("prediction trigger failed")
	ErrStatus                 = errors.New("prediction task status request failed")
	ErrTaskFailed             = errors.New("prediction task failed")
	ErrResultsUnavailable     = errors.New("prediction task results unavailable")
	ErrSchemaMismatch         = errors.New("result payload does not match schema")
	ErrPredictionTypeMismatch = errors.New("prediction type mismatch")
	ErrCancelled              = errors.New("prediction cancelled")
)

// TaskError carries the kind of failure together with the task it concerns
// and the underlying cause.
type TaskError struct {
	Kind   error
	TaskID string
	Status TaskStatus
	Err    error
}

func (e *TaskError) Error() string {
	msg := e.Kind.Error()
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	}
	if e.Status != "" {
		msg = fmt.Sprintf("%s: status %s", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TaskError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewTaskError(kind error, taskID string, err error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, Err: err}
}
