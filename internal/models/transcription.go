// Package models defines the wire shapes of the voice API and its events.
package models

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	EventTranscriptionCompleted = "transcription.completed"
	EventTranscriptionTimedOut  = "transcription.timed_out"
)

// TranscriptionEvent is published once per terminal transcription outcome.
type TranscriptionEvent struct {
	EventType  string `json:"eventType" validate:"required,oneof=transcription.completed transcription.timed_out"`
	RequestID  string `json:"requestId" validate:"required"`
	UserID     string `json:"userId" validate:"required"`
	ObjectKey  string `json:"objectKey"`
	Provider   string `json:"provider"`
	Flow       string `json:"flow"`
	Language   string `json:"language"`
	Format     string `json:"format"`
	Text       string `json:"text,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	DurationMs int64  `json:"durationMs"`
}

// PingResponse answers the connectivity probe.
type PingResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// UploadURLResponse carries a signed PUT URL for client-side upload.
type UploadURLResponse struct {
	UploadURL   string    `json:"upload_url"`
	ObjectKey   string    `json:"object_key"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SubmitByKeyRequest asks for transcription of an already uploaded object.
type SubmitByKeyRequest struct {
	ObjectKey string `json:"object_key" validate:"required,max=1024"`
	Language  string `json:"language" validate:"omitempty,max=32"`
	Format    string `json:"fmt" validate:"omitempty,max=16"`
}

// TranscriptionResponse is returned by both submit flows. Text is null when
// no transcript arrived before the deadline.
type TranscriptionResponse struct {
	Text      *string         `json:"text"`
	Raw       json.RawMessage `json:"raw"`
	RawText   string          `json:"raw_text"`
	RequestID string          `json:"request_id"`
	TimedOut  bool            `json:"timed_out"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Detail  string   `json:"detail"`
	Missing []string `json:"missing,omitempty"`
}

// ReadinessResponse reports which dependencies are configured.
type ReadinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}
