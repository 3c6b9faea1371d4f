package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-voice-transcription-service/internal/service/stt"
)

// State represents the lifecycle state of a transcription job.
type State int

const (
	// StatePending - Request built, not yet accepted by the speech service.
	StatePending State = iota
	// StateWaiting - Submitted, polling for a result.
	StateWaiting
	// StateSucceeded - A transcript was obtained.
	StateSucceeded
	// StateTimedOut - The poll deadline passed without a transcript.
	StateTimedOut
	// StateCanceled - The caller went away while polling.
	StateCanceled
	// StateFailed - Submission or polling failed outright.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateWaiting:
		return "WAITING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateTimedOut:
		return "TIMED_OUT"
	case StateCanceled:
		return "CANCELED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true once the job can no longer change state.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateTimedOut || s == StateCanceled || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrJobFinished     = errors.New("transcription job already finished")
	ErrJobNotSubmitted = errors.New("transcription job was not submitted")
	ErrJobSubmitted    = errors.New("transcription job already submitted")
)

// Job is the run state of one transcription. It lives only for the duration
// of the call that created it and is never shared between requests.
//
// State transitions:
//
//	PENDING → WAITING → SUCCEEDED
//	   │         ├────→ TIMED_OUT
//	   │         └────→ CANCELED
//	   └──────────────→ FAILED (also reachable from WAITING)
type Job struct {
	mu        sync.RWMutex
	request   stt.Request
	objectKey string
	flow      string
	deadline  time.Time
	started   time.Time
	state     State
}

// NewJob creates a job in PENDING state.
func NewJob(req stt.Request, flow, objectKey string, started, deadline time.Time) *Job {
	return &Job{
		request:   req,
		objectKey: objectKey,
		flow:      flow,
		deadline:  deadline,
		started:   started,
		state:     StatePending,
	}
}

// Request returns the immutable submission.
func (j *Job) Request() stt.Request { return j.request }

// ObjectKey returns the key of the audio being transcribed.
func (j *Job) ObjectKey() string { return j.objectKey }

// Flow names the flow that created the job.
func (j *Job) Flow() string { return j.flow }

// Deadline returns the end of the poll budget.
func (j *Job) Deadline() time.Time { return j.deadline }

// Started returns when the job was created.
func (j *Job) Started() time.Time { return j.started }

// State returns the current state.
func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// MarkSubmitted moves PENDING to WAITING.
func (j *Job) MarkSubmitted() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case j.state == StatePending:
		j.state = StateWaiting
		return nil
	case j.state == StateWaiting:
		return ErrJobSubmitted
	default:
		return ErrJobFinished
	}
}

// Finish moves WAITING to a terminal outcome of the poll loop.
func (j *Job) Finish(outcome State) error {
	if outcome != StateSucceeded && outcome != StateTimedOut && outcome != StateCanceled {
		return fmt.Errorf("not a poll outcome: %v", outcome)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case j.state == StateWaiting:
		j.state = outcome
		return nil
	case j.state == StatePending:
		return ErrJobNotSubmitted
	default:
		return ErrJobFinished
	}
}

// Fail moves any non-terminal job to FAILED. It returns false if the job had
// already finished.
func (j *Job) Fail() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.IsTerminal() {
		return false
	}
	j.state = StateFailed
	return true
}
