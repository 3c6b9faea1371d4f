// Package grpcapi hosts the standard gRPC health service so infrastructure
// probes can check each pipeline dependency.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-voice-transcription-service/internal/observability"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
)

// ServiceName is the health entry covering the whole voice API. It serves
// whenever the process does, since the ping flow needs no dependency.
const ServiceName = "ai.voice.transcription.VoiceService"

// DependencyReporter reports per-dependency configuration errors.
type DependencyReporter interface {
	Dependencies() map[string]error
}

// Server wraps a grpc.Server with the health service registered.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	deps   DependencyReporter
	logger zerolog.Logger
}

// NewServer registers health and reflection services.
func NewServer(deps DependencyReporter, m *metrics.Metrics) *Server {
	g := grpc.NewServer(grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)))

	s := &Server{
		grpc:   g,
		health: health.NewServer(),
		deps:   deps,
		logger: logging.WithComponent("grpc"),
	}
	grpc_health_v1.RegisterHealthServer(g, s.health)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	s.SyncHealth()
	return s
}

// SyncHealth publishes the current dependency state. Each dependency is a
// health entry named after it.
func (s *Server) SyncHealth() {
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	if s.deps == nil {
		return
	}
	for name, err := range s.deps.Dependencies() {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			s.logger.Warn().Err(err).Str("dependency", name).Msg("Dependency not serving")
		}
		s.health.SetServingStatus(name, status)
	}
}

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server started")
	return s.grpc.Serve(lis)
}

// GracefulStop marks everything not serving and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
