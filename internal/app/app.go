// Package app assembles the transcription pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/config"
	"ai-voice-transcription-service/internal/events"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/service/format"
	"ai-voice-transcription-service/internal/service/storage"
	"ai-voice-transcription-service/internal/service/stt"
	"ai-voice-transcription-service/internal/service/stt/mock"
	"ai-voice-transcription-service/internal/service/stt/volc"
	"ai-voice-transcription-service/internal/service/voice"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Metrics     *metrics.Metrics
	Voice       *voice.Service
	Publisher   *events.Publisher
}

// New constructs the Application from the provided configuration. Missing
// object store or speech service credentials do not fail construction; the
// affected flows report a configuration error per call.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	store, err := storage.New(ctx, cfg.Storage, storage.WithMetrics(a.Metrics))
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	if missing := cfg.Storage.Missing(); len(missing) > 0 {
		appLogger.Warn().Strs("missing", missing).Msg("Object store not configured; transcription flows will fail")
	}

	client, err := newSTTClient(cfg, a.Metrics)
	if err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicCompleted: cfg.Kafka.TopicCompleted,
		TopicTimedOut:  cfg.Kafka.TopicTimedOut,
		Principal:      cfg.Kafka.Principal,
	})

	a.Voice = voice.NewService(
		store,
		client,
		format.NewNegotiator(cfg.Voice.DefaultLanguage, cfg.Voice.DefaultFormat),
		a.Publisher,
		voice.Config{
			PollTimeout:    cfg.ASR.PollTimeout,
			MaxUploadBytes: cfg.Voice.MaxUploadBytes,
			PublishTimeout: cfg.Kafka.PublishTimeout,
		},
		voice.WithMetrics(a.Metrics),
	)

	appLogger.Info().
		Str("sttProvider", client.Provider()).
		Bool("kafkaEnabled", a.Publisher.Enabled()).
		Msg("AI voice transcription service application created")
	return a, nil
}

func newSTTClient(cfg *config.Config, m *metrics.Metrics) (stt.Client, error) {
	switch cfg.STTProvider {
	case volc.ProviderName:
		if missing := cfg.ASR.Missing(); len(missing) > 0 {
			l := logging.WithComponent("application")
			l.Warn().
				Strs("missing", missing).
				Msg("Speech service not configured; transcription flows will fail")
		}
		return volc.New(cfg.ASR, volc.WithMetrics(m)), nil
	case mock.ProviderName:
		return mock.New(cfg.ASR.PollInterval, mock.WithMetrics(m)), nil
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q (want %s or %s)", cfg.STTProvider, volc.ProviderName, mock.ProviderName)
	}
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	logCfg.Level = a.Cfg.Observability.LogLevel
	logCfg.Format = a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	a.Logger = logging.Logger().With().
		Str("service", "ai-voice-transcription-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("AI voice transcription service starting")

	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close event publisher")
		}
	}
	shutdownLogger.Info().Dur("uptime", time.Since(a.StartupTime)).Msg("AI voice transcription service shutting down")
}
