package usecase

import (
	"errors"
	"fmt"
)

// Kind tags a job failure for callers and metrics.
type Kind string

const (
	KindConfiguration              Kind = "ConfigurationError"
	KindStoryGeneration            Kind = "StoryGenerationError"
	KindAudioSynthesis             Kind = "AudioSynthesisError"
	KindSourceUnavailable          Kind = "SourceUnavailable"
	KindInsufficientSourceDuration Kind = "InsufficientSourceDuration"
	KindSourceTooNarrow            Kind = "SourceTooNarrow"
	KindComposition                Kind = "CompositionError"
	KindRender                     Kind = "RenderError"
	KindCancelled                  Kind = "Cancelled"
)

// JobError is the single error a failed job returns. Stage is the target
// state of the transition that failed.
type JobError struct {
	JobID string
	Stage State
	Kind  Kind
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %s: %s: %v", e.JobID, e.Stage, e.Kind, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first JobError in err's chain, or "".
func KindOf(err error) Kind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}

// stageError carries a kind from a stage function up to the state machine.
type stageError struct {
	kind Kind
	err  error
}

func (e stageError) Error() string { return e.err.Error() }
func (e stageError) Unwrap() error { return e.err }

func fail(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return stageError{kind: kind, err: err}
}

func failf(kind Kind, format string, args ...any) error {
	return stageError{kind: kind, err: fmt.Errorf(format, args...)}
}
