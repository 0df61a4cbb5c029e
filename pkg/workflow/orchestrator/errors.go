package orchestrator

import (
	"errors"
	"fmt"

	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/pipeline"
)

var (
	// ErrBusy rejects a submit or regenerate while another one is in flight.
	ErrBusy = &apperr.ConflictError{Message: "a pipeline run is already in progress"}

	// ErrSuperseded is returned by a run whose session was reset underneath it.
	ErrSuperseded = errors.New("pipeline run superseded by session reset")
)

// StageError aborts an initial pipeline run.
type StageError struct {
	Stage pipeline.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RegenerationItemError is isolated to one regenerated index.
type RegenerationItemError struct {
	Index int
	Err   error
}

func (e *RegenerationItemError) Error() string {
	return fmt.Sprintf("regeneration of item %d failed: %v", e.Index, e.Err)
}

func (e *RegenerationItemError) Unwrap() error { return e.Err }
