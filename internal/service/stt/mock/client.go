// Package mock provides an in-process speech service for running the whole
// transcription flow without cloud credentials.
// A submitted job answers "not ready" for a configurable number of queries
// and then returns a canned transcript.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/service/format"
	"ai-voice-transcription-service/internal/service/stt"
)

// ProviderName is the STT_PROVIDER value selecting this client.
const ProviderName = "mock"

// DefaultTranscripts are served per language, falling back to English.
var DefaultTranscripts = map[string]string{
	format.LanguageChinese: "你好，这是一段模拟的语音转写结果。",
	format.LanguageEnglish: "Hello, this is a simulated transcription.",
}

type job struct {
	req     stt.Request
	queries int
}

// Client implements stt.Client with simulated jobs.
type Client struct {
	mu         sync.Mutex
	jobs       map[string]*job
	readyAfter int
	poller     *stt.Poller
}

var _ stt.Client = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithReadyAfter sets how many queries answer "not ready" before the
// transcript is returned.
func WithReadyAfter(n int) Option {
	return func(c *Client) { c.readyAfter = n }
}

// WithClock sets the clock driving the poll loop.
func WithClock(clock stt.Clock) Option {
	return func(c *Client) { c.poller.Clock = clock }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.poller.Metrics = m }
}

// New creates a mock client polling at interval.
func New(interval time.Duration, opts ...Option) *Client {
	c := &Client{
		jobs:       make(map[string]*job),
		readyAfter: 2,
		poller: &stt.Poller{
			Provider: ProviderName,
			Interval: interval,
			Clock:    stt.SystemClock{},
			Metrics:  metrics.DefaultMetrics,
			Logger:   logging.WithComponent("stt-mock"),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider implements stt.Client.
func (c *Client) Provider() string { return ProviderName }

// Submit registers a job. A reused correlation id is rejected the same way
// the real service would.
func (c *Client) Submit(ctx context.Context, req stt.Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrCanceled, err)
	}
	if req.SourceURL == "" {
		return &apperror.UpstreamError{Service: apperror.ServiceSpeech, Op: "submit", StatusCode: 400, Message: "audio url is required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.jobs[req.RequestID]; exists {
		return &apperror.UpstreamError{Service: apperror.ServiceSpeech, Op: "submit", StatusCode: 409, Message: "duplicate request id"}
	}
	c.jobs[req.RequestID] = &job{req: req}
	return nil
}

// Query implements stt.Querier.
func (c *Client) Query(_ context.Context, requestID string) stt.PollOutcome {
	c.mu.Lock()
	j, ok := c.jobs[requestID]
	if ok {
		j.queries++
	}
	c.mu.Unlock()

	if !ok {
		body := `{"message":"request not found"}`
		return stt.PollOutcome{Status: stt.NotReady, StatusCode: 404, RawText: body, Responded: true}
	}

	if j.queries <= c.readyAfter {
		body := `{"result":{"text":""}}`
		return stt.PollOutcome{Status: stt.NotReady, StatusCode: 200, Raw: json.RawMessage(body), RawText: body, Responded: true}
	}

	text, ok := DefaultTranscripts[j.req.Language]
	if !ok {
		text = DefaultTranscripts[format.LanguageEnglish]
	}
	raw, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"text":       text,
			"utterances": []map[string]any{{"text": text}},
		},
		"audio_info": map[string]any{"format": j.req.Audio.Format},
	})

	// Completed jobs are forgotten.
	c.mu.Lock()
	delete(c.jobs, requestID)
	c.mu.Unlock()

	return stt.PollOutcome{Status: stt.Ready, Text: text, StatusCode: 200, Raw: raw, RawText: string(raw), Responded: true}
}

// Poll implements stt.Client.
func (c *Client) Poll(ctx context.Context, requestID string, deadline time.Time) (stt.Result, error) {
	// A job outlives neither its poll loop nor its deadline.
	defer func() {
		c.mu.Lock()
		delete(c.jobs, requestID)
		c.mu.Unlock()
	}()
	return c.poller.Poll(ctx, c, requestID, deadline)
}

// Pending returns the number of jobs not yet completed.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}
