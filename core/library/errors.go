package library

import (
	"errors"
	"fmt"

	"musicbox/core/naming"
	"musicbox/storage"
)

var (
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidField    = errors.New("invalid field")
	ErrUnauthorized    = errors.New("login required")
	ErrForbidden       = errors.New("permission denied")
	ErrRecordingFailed = errors.New("failed to record track")
	ErrNotFound        = errors.New("track not found")

	ErrUnsupportedFormat  = naming.ErrUnsupportedFormat
	ErrStorageWriteFailed = storage.ErrStorageWriteFailed
	ErrInvalidName        = storage.ErrInvalidName
)

// State is a step of the upload pipeline.
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StatePersisted State = "persisted"
	StateRecorded  State = "recorded"
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected" // bad input, nothing written
	StateFailed    State = "failed"   // server side failure
)

// PipelineError carries the terminal state an upload ended in.
type PipelineError struct {
	State State
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// StateOf returns the terminal state recorded in err, or "" if err did not
// come from the pipeline.
func StateOf(err error) State {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.State
	}
	return ""
}

func rejected(err error) error {
	return &PipelineError{State: StateRejected, Err: err}
}

func failed(err error) error {
	return &PipelineError{State: StateFailed, Err: err}
}
