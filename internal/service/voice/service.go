// Package voice composes the object store and the speech service into the
// caller-facing transcription flows.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/models"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/schema"
	"ai-voice-transcription-service/internal/service/format"
	"ai-voice-transcription-service/internal/service/storage"
	"ai-voice-transcription-service/internal/service/stt"
)

// Flow names used in logs, metrics and events.
const (
	FlowSubmitByKey  = "submit_by_key"
	FlowSubmitDirect = "submit_direct"
)

const (
	defaultPollTimeout    = 45 * time.Second
	defaultMaxUploadBytes = 10 * 1024 * 1024
	defaultPublishTimeout = 2 * time.Second
)

// ObjectStore is the part of storage.Gateway the flows need.
type ObjectStore interface {
	Configured() error
	NewLocation(userID string, f format.Format) storage.ObjectLocation
	UploadURL(ctx context.Context, userID string, f format.Format) (storage.SignedURL, storage.ObjectLocation, error)
	DownloadURL(ctx context.Context, key string) (storage.SignedURL, error)
	PutObject(ctx context.Context, loc storage.ObjectLocation, data []byte) error
}

// EventPublisher receives terminal outcomes.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, key string, event any) error
	PublishTimedOut(ctx context.Context, key string, event any) error
}

// configurable is implemented by clients that can report missing settings
// before any network call.
type configurable interface {
	Configured() error
}

// Config holds the orchestrator limits.
type Config struct {
	// PollTimeout bounds the poll loop. It is always positive.
	PollTimeout    time.Duration
	MaxUploadBytes int64
	// PublishTimeout bounds each event write.
	PublishTimeout time.Duration
}

// Service runs the transcription flows. It keeps no per-request state and
// is safe for concurrent use.
type Service struct {
	store        ObjectStore
	client       stt.Client
	negotiator   *format.Negotiator
	publisher    EventPublisher
	validator    *schema.Validator
	cfg          Config
	clock        stt.Clock
	newRequestID func() string
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the clock used for deadlines.
func WithClock(clock stt.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithRequestIDs overrides correlation id generation.
func WithRequestIDs(gen func() string) Option {
	return func(s *Service) { s.newRequestID = gen }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the flows. publisher may be nil.
func NewService(store ObjectStore, client stt.Client, negotiator *format.Negotiator, publisher EventPublisher, cfg Config, opts ...Option) *Service {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	s := &Service{
		store:        store,
		client:       client,
		negotiator:   negotiator,
		publisher:    publisher,
		validator:    schema.New(),
		cfg:          cfg,
		clock:        stt.SystemClock{},
		newRequestID: uuid.NewString,
		metrics:      metrics.DefaultMetrics,
		logger:       logging.WithComponent("voice"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping is the connectivity probe. It makes no external calls.
func (s *Service) Ping() models.PingResponse {
	return models.PingResponse{Status: "ok", Service: "voice"}
}

// MaxUploadBytes returns the direct-upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.cfg.MaxUploadBytes }

// UploadURL issues a signed PUT for a fresh object under the user's prefix.
func (s *Service) UploadURL(ctx context.Context, userID, fmtHint string) (models.UploadURLResponse, error) {
	if err := checkUserID(userID); err != nil {
		return models.UploadURLResponse{}, err
	}
	f, err := s.negotiator.ResolveFormat(fmtHint)
	if err != nil {
		return models.UploadURLResponse{}, err
	}

	signed, loc, err := s.store.UploadURL(ctx, userID, f)
	if err != nil {
		return models.UploadURLResponse{}, err
	}

	s.logger.Info().
		Str("userId", userID).
		Str("objectKey", loc.Key).
		Str("format", string(f)).
		Msg("Upload URL issued")

	return models.UploadURLResponse{
		UploadURL:   signed.URL,
		ObjectKey:   loc.Key,
		ContentType: loc.ContentType,
		ExpiresAt:   signed.ExpiresAt,
	}, nil
}

// SubmitByKey transcribes an object the caller uploaded through UploadURL.
func (s *Service) SubmitByKey(ctx context.Context, userID, objectKey, language, fmtHint string) (stt.Result, error) {
	if err := checkUserID(userID); err != nil {
		return stt.Result{}, err
	}
	if objectKey == "" {
		return stt.Result{}, apperror.Invalid("object_key", "is required")
	}
	if !storage.OwnedBy(objectKey, userID) {
		return stt.Result{}, apperror.Invalid("object_key", "does not belong to the caller")
	}
	f, err := s.negotiator.ResolveFormat(fmtHint)
	if err != nil {
		return stt.Result{}, err
	}
	if err := s.preflight(); err != nil {
		return stt.Result{}, err
	}

	return s.transcribe(ctx, FlowSubmitByKey, userID, objectKey, s.negotiator.NormalizeLanguage(language), f)
}

// SubmitDirect stores audio on the caller's behalf and transcribes it.
func (s *Service) SubmitDirect(ctx context.Context, userID string, audio []byte, language, fmtHint string) (stt.Result, error) {
	if err := checkUserID(userID); err != nil {
		return stt.Result{}, err
	}
	if len(audio) == 0 {
		return stt.Result{}, apperror.Invalid("audio", "is empty")
	}
	if int64(len(audio)) > s.cfg.MaxUploadBytes {
		return stt.Result{}, apperror.Invalid("audio", fmt.Sprintf("exceeds %d bytes", s.cfg.MaxUploadBytes))
	}
	f, err := s.negotiator.ResolveFormat(fmtHint)
	if err != nil {
		return stt.Result{}, err
	}
	if err := s.preflight(); err != nil {
		return stt.Result{}, err
	}

	loc := s.store.NewLocation(userID, f)
	if err := s.store.PutObject(ctx, loc, audio); err != nil {
		return stt.Result{}, err
	}
	s.logger.Debug().Str("userId", userID).Str("objectKey", loc.Key).Int("bytes", len(audio)).Msg("Audio stored")

	return s.transcribe(ctx, FlowSubmitDirect, userID, loc.Key, s.negotiator.NormalizeLanguage(language), f)
}

// checkUserID rejects ids that could not own a single key prefix.
func checkUserID(userID string) error {
	switch {
	case userID == "":
		return apperror.Invalid("user_id", "is required")
	case strings.Contains(userID, "/"):
		return apperror.Invalid("user_id", "must not contain '/'")
	}
	return nil
}

// preflight fails with a ConfigurationError before any network call.
func (s *Service) preflight() error {
	if err := s.store.Configured(); err != nil {
		return err
	}
	if c, ok := s.client.(configurable); ok {
		return c.Configured()
	}
	return nil
}

// transcribe runs the shared tail of both flows: sign a GET for the object,
// submit, then poll under the deadline.
func (s *Service) transcribe(ctx context.Context, flow, userID, objectKey, language string, f format.Format) (stt.Result, error) {
	signed, err := s.store.DownloadURL(ctx, objectKey)
	if err != nil {
		return stt.Result{}, err
	}

	req := stt.Request{
		RequestID: s.newRequestID(),
		UserID:    userID,
		Audio:     format.SpecFor(f),
		Language:  language,
		SourceURL: signed.URL,
	}
	started := s.clock.Now()
	job := NewJob(req, flow, objectKey, started, started.Add(s.cfg.PollTimeout))
	log := logging.WithJob(logging.WithRequest(userID, req.RequestID), s.client.Provider(), objectKey)

	s.metrics.RecordTranscriptionStart()
	wallStart := time.Now()
	outcome := "failed"
	defer func() {
		s.metrics.RecordTranscriptionEnd(flow, outcome, time.Since(wallStart).Seconds())
	}()

	if err := s.client.Submit(ctx, req); err != nil {
		job.Fail()
		if errors.Is(err, apperror.ErrCanceled) {
			outcome = "canceled"
		}
		log.Error().Err(err).Str("flow", flow).Msg("Transcription submit failed")
		return stt.Result{}, err
	}
	if err := job.MarkSubmitted(); err != nil {
		return stt.Result{}, err
	}

	res, err := s.client.Poll(ctx, req.RequestID, job.Deadline())
	res.RequestID = req.RequestID
	switch {
	case errors.Is(err, apperror.ErrCanceled):
		_ = job.Finish(StateCanceled)
		outcome = "canceled"
		log.Info().Str("flow", flow).Msg("Transcription abandoned by caller")
		return res, err
	case err != nil:
		job.Fail()
		log.Error().Err(err).Str("flow", flow).Msg("Transcription poll failed")
		return res, err
	case res.TimedOut || res.Text == nil:
		res.TimedOut = true
		_ = job.Finish(StateTimedOut)
		outcome = "timed_out"
		log.Info().Str("flow", flow).Dur("budget", s.cfg.PollTimeout).Msg("Transcription timed out")
	default:
		_ = job.Finish(StateSucceeded)
		outcome = "completed"
		s.metrics.RecordTranscriptionText(len(*res.Text))
		log.Info().Str("flow", flow).Int("textBytes", len(*res.Text)).Msg("Transcription completed")
	}

	s.publish(ctx, job, res)
	return res, nil
}

func (s *Service) publish(ctx context.Context, job *Job, res stt.Result) {
	if s.publisher == nil {
		return
	}

	req := job.Request()
	ev := models.TranscriptionEvent{
		RequestID:  req.RequestID,
		UserID:     req.UserID,
		ObjectKey:  job.ObjectKey(),
		Provider:   s.client.Provider(),
		Flow:       job.Flow(),
		Language:   req.Language,
		Format:     string(req.Audio.Format),
		Timestamp:  s.clock.Now().UnixMilli(),
		DurationMs: s.clock.Now().Sub(job.Started()).Milliseconds(),
	}

	publish := s.publisher.PublishTimedOut
	ev.EventType = models.EventTranscriptionTimedOut
	if job.State() == StateSucceeded {
		publish = s.publisher.PublishCompleted
		ev.EventType = models.EventTranscriptionCompleted
		ev.Text = *res.Text
	}
	if err := s.validator.Validate(ev); err != nil {
		s.logger.Warn().Err(err).Str("requestId", req.RequestID).Msg("Dropping invalid transcription event")
		return
	}

	// Event writes are bounded by PublishTimeout, not by the caller.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()
	if err := publish(pctx, req.RequestID, ev); err != nil {
		s.logger.Warn().Err(err).Str("requestId", req.RequestID).Msg("Failed to publish transcription event")
	}
}

// Dependencies reports which external services are usable.
func (s *Service) Dependencies() map[string]error {
	deps := map[string]error{"object_store": s.store.Configured()}
	if c, ok := s.client.(configurable); ok {
		deps["speech_service"] = c.Configured()
	} else {
		deps["speech_service"] = nil
	}
	return deps
}
