// Package stt defines the contract for batch speech-to-text providers that
// transcribe an audio file referenced by URL.
package stt

import (
	"context"
	"encoding/json"
	"time"

	"ai-voice-transcription-service/internal/service/format"
)

// Request is one transcription submission. It is immutable once submitted.
type Request struct {
	// RequestID correlates the submit call with every later poll.
	RequestID string
	UserID    string
	Audio     format.AudioSpec
	Language  string
	// SourceURL is a signed GET URL the provider downloads the audio from.
	SourceURL string
}

// Result is the terminal outcome of a poll loop.
//
// Text is nil when no transcript was obtained before the deadline. An empty
// non-nil Text is a valid transcript.
type Result struct {
	Text      *string
	Raw       json.RawMessage
	RawText   string
	RequestID string
	TimedOut  bool
}

// Client is a speech service able to accept a job and report its result.
type Client interface {
	// Provider returns the provider name used in logs and metrics.
	Provider() string

	// Submit hands a job to the provider. Any non-success answer is an error.
	Submit(ctx context.Context, req Request) error

	// Poll queries the job until it yields text, the deadline passes, or ctx
	// is canceled.
	Poll(ctx context.Context, requestID string, deadline time.Time) (Result, error)
}

// Querier issues a single status query for a submitted job.
type Querier interface {
	Query(ctx context.Context, requestID string) PollOutcome
}
