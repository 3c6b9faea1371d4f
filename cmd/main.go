package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	grpcapi "ai-voice-transcription-service/internal/api/grpc"
	"ai-voice-transcription-service/internal/app"
	"ai-voice-transcription-service/internal/config"
	httpapi "ai-voice-transcription-service/internal/http"
	"ai-voice-transcription-service/internal/observability"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to read .env")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build application")
	}
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	metricsServer := observability.NewServer(cfg.Observability.MetricsAddr, nil)
	metricsServer.Start()

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for gRPC")
	}
	grpcServer := grpcapi.NewServer(application.Voice, application.Metrics)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("grpc serve failed")
			stop()
		}
	}()

	// WriteTimeout leaves room for the poll budget plus the store round trips.
	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.ASR.PollTimeout + 2*cfg.ASR.HTTPTimeout,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("Voice transcription API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http serve failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown")
	}
	application.Shutdown()
}
