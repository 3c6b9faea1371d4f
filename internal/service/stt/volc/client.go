// Package volc implements the batch speech service client: a job is submitted
// with a signed audio URL and then queried until it carries a transcript.
package volc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/config"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/service/stt"
)

// ProviderName is the STT_PROVIDER value selecting this client.
const ProviderName = "volc"

const (
	defaultResourceID   = "volc.bigasr.auc"
	defaultModel        = "bigmodel"
	defaultPollInterval = 1200 * time.Millisecond
	defaultHTTPTimeout  = 60 * time.Second
	maxErrorBody        = 1024
)

// Header names of the speech service API.
const (
	headerAppKey        = "X-Api-App-Key"
	headerAccessKey     = "X-Api-Access-Key"
	headerResourceID    = "X-Api-Resource-Id"
	headerRequestID     = "X-Api-Request-Id"
	headerSequence      = "X-Api-Sequence"
	headerStatusCode    = "X-Api-Status-Code"
	headerStatusMessage = "X-Api-Message"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the speech service. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	cfg           config.ASRConfig
	queryEndpoint string
	http          Doer
	poller        *stt.Poller
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

var _ stt.Client = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithClock sets the clock driving the poll loop.
func WithClock(clock stt.Clock) Option {
	return func(c *Client) { c.poller.Clock = clock }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
		c.poller.Metrics = m
	}
}

// New creates a client. Missing credentials are reported per call.
func New(cfg config.ASRConfig, opts ...Option) *Client {
	if cfg.ResourceID == "" {
		cfg.ResourceID = defaultResourceID
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}

	logger := logging.WithComponent("stt-volc")
	c := &Client{
		cfg:           cfg,
		queryEndpoint: QueryEndpoint(cfg.Endpoint, cfg.QueryEndpoint),
		http:          &http.Client{Timeout: cfg.HTTPTimeout},
		metrics:       metrics.DefaultMetrics,
		logger:        logger,
		poller: &stt.Poller{
			Provider: ProviderName,
			Interval: cfg.PollInterval,
			Clock:    stt.SystemClock{},
			Metrics:  metrics.DefaultMetrics,
			Logger:   logger,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryEndpoint returns override when set; otherwise it derives the query
// URL from the submit URL by swapping a trailing /submit for /query, or by
// appending /query.
func QueryEndpoint(submit, override string) string {
	if override != "" {
		return override
	}
	if submit == "" {
		return ""
	}
	se := strings.TrimRight(submit, "/")
	if strings.HasSuffix(se, "/submit") {
		return strings.TrimSuffix(se, "/submit") + "/query"
	}
	return se + "/query"
}

// Provider implements stt.Client.
func (c *Client) Provider() string { return ProviderName }

// Configured returns a ConfigurationError when credentials are missing.
func (c *Client) Configured() error {
	return apperror.NewConfigurationError("speech service", c.cfg.Missing())
}

type submitPayload struct {
	User     userInfo       `json:"user"`
	Audio    audioInfo      `json:"audio"`
	Language string         `json:"language"`
	Request  requestOptions `json:"request"`
}

type userInfo struct {
	UID string `json:"uid"`
}

type audioInfo struct {
	Format  string `json:"format"`
	Codec   string `json:"codec"`
	Rate    int    `json:"rate"`
	Bits    int    `json:"bits"`
	Channel int    `json:"channel"`
	URL     string `json:"url"`
}

type requestOptions struct {
	ModelName      string `json:"model_name"`
	EnableITN      bool   `json:"enable_itn"`
	EnablePunc     bool   `json:"enable_punc"`
	ShowUtterances bool   `json:"show_utterances"`
}

func (c *Client) buildPayload(req stt.Request) ([]byte, error) {
	payload := submitPayload{
		User: userInfo{UID: req.UserID},
		Audio: audioInfo{
			Format:  string(req.Audio.Format),
			Codec:   string(req.Audio.Codec),
			Rate:    req.Audio.SampleRateHz,
			Bits:    req.Audio.BitsPerSample,
			Channel: req.Audio.Channels,
			URL:     req.SourceURL,
		},
		Language: req.Language,
		Request: requestOptions{
			ModelName:      c.cfg.Model,
			EnableITN:      true,
			EnablePunc:     true,
			ShowUtterances: true,
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Signed URLs carry '&'; keep them readable on the wire.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Submit posts the job. Any non-2xx answer is an UpstreamError carrying the
// service's message.
func (c *Client) Submit(ctx context.Context, req stt.Request) error {
	if err := c.Configured(); err != nil {
		return err
	}
	if req.RequestID == "" {
		return apperror.Invalid("request_id", "must not be empty")
	}

	body, err := c.buildPayload(req)
	if err != nil {
		return fmt.Errorf("volc: encode submit payload: %w", err)
	}

	httpReq, err := c.newRequest(ctx, c.cfg.Endpoint, req.RequestID, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set(headerSequence, "-1")

	log := c.logger.With().Str("requestId", req.RequestID).Str("userId", req.UserID).Logger()
	log.Debug().
		Str("endpoint", c.cfg.Endpoint).
		Str("format", string(req.Audio.Format)).
		Str("language", req.Language).
		Str("sourceUrl", logging.RedactURL(req.SourceURL)).
		Msg("Submitting transcription job")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordSubmit(ProviderName, 0, time.Since(start).Seconds())
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", apperror.ErrCanceled, ctx.Err())
		}
		log.Error().Err(err).Msg("Submit transport failure")
		return &apperror.UpstreamError{Service: apperror.ServiceSpeech, Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	c.metrics.RecordSubmit(ProviderName, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(raw)
		log.Error().
			Int("status", resp.StatusCode).
			Str("providerCode", resp.Header.Get(headerStatusCode)).
			Str("message", msg).
			Msg("Submit rejected")
		return &apperror.UpstreamError{
			Service:    apperror.ServiceSpeech,
			Op:         "submit",
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Str("providerCode", resp.Header.Get(headerStatusCode)).
		Msg("Transcription job accepted")
	return nil
}

// Query issues one status request. It never returns an error: every
// failure mode is folded into the outcome so the poll loop can retry.
func (c *Client) Query(ctx context.Context, requestID string) stt.PollOutcome {
	httpReq, err := c.newRequest(ctx, c.queryEndpoint, requestID, []byte("{}"))
	if err != nil {
		return stt.PollOutcome{Status: stt.Failed, Reason: err.Error()}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return stt.PollOutcome{Status: stt.Failed, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	out := stt.PollOutcome{
		StatusCode:      resp.StatusCode,
		RawText:         string(raw),
		Responded:       true,
		ProviderCode:    resp.Header.Get(headerStatusCode),
		ProviderMessage: resp.Header.Get(headerStatusMessage),
	}
	if readErr != nil {
		out.Status = stt.Failed
		out.Reason = "read body: " + readErr.Error()
		return out
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Status = stt.NotReady
		out.Reason = fmt.Sprintf("http status %d", resp.StatusCode)
		return out
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		out.Status = stt.Failed
		out.Reason = "decode body: " + err.Error()
		return out
	}
	out.Raw = json.RawMessage(raw)

	if text := ExtractTextValue(doc); text != nil {
		out.Status = stt.Ready
		out.Text = *text
		return out
	}
	out.Status = stt.NotReady
	return out
}

// Poll implements stt.Client.
func (c *Client) Poll(ctx context.Context, requestID string, deadline time.Time) (stt.Result, error) {
	if err := c.Configured(); err != nil {
		return stt.Result{}, err
	}
	return c.poller.Poll(ctx, c, requestID, deadline)
}

func (c *Client) newRequest(ctx context.Context, endpoint, requestID string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("volc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAppKey, c.cfg.AppID)
	req.Header.Set(headerAccessKey, c.cfg.Token)
	req.Header.Set(headerResourceID, c.cfg.ResourceID)
	req.Header.Set(headerRequestID, requestID)
	return req, nil
}

// errorMessage prefers the service's structured message and falls back to
// the body text.
func errorMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, key := range []string{"message", "detail"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return text
}
