// Package server assembles the query bridge: grid client, services,
// handlers and the Flight service with its interceptors.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/TFMV/ignis/cmd/server/config"
	"github.com/TFMV/ignis/cmd/server/middleware"
	"github.com/TFMV/ignis/pkg/handlers"
	"github.com/TFMV/ignis/pkg/infrastructure/converter"
	"github.com/TFMV/ignis/pkg/infrastructure/memory"
	"github.com/TFMV/ignis/pkg/infrastructure/metrics"
	"github.com/TFMV/ignis/pkg/infrastructure/pool"
	"github.com/TFMV/ignis/pkg/models"
	"github.com/TFMV/ignis/pkg/repositories/rest"
	flightserver "github.com/TFMV/ignis/pkg/server"
	"github.com/TFMV/ignis/pkg/services"
)

// FlightServiceName is the service name reported through grpc_health_v1.
const FlightServiceName = "arrow.flight.protocol.FlightService"

// Server owns every component of a running bridge.
type Server struct {
	config  *config.Config
	logger  zerolog.Logger
	metrics metrics.Collector

	grid      *rest.Client
	allocator *memory.TrackedAllocator
	schemas   *pool.SchemaCache

	queryService  services.QueryService
	healthService services.HealthService

	flight *flightserver.FlightServer
	health *health.Server

	mu      sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}
}

// New creates a server from a validated configuration.
func New(cfg *config.Config, logger zerolog.Logger, collector metrics.Collector) (*Server, error) {
	if collector == nil {
		collector = metrics.NewNoOpCollector()
	}

	spaceEncoding, err := rest.ParseSpaceEncoding(cfg.Grid.SpaceEncoding)
	if err != nil {
		return nil, fmt.Errorf("invalid grid configuration: %w", err)
	}

	grid, err := rest.NewClient(rest.Config{
		BaseURL:       cfg.Grid.URL,
		Path:          cfg.Grid.Path,
		Username:      cfg.Grid.Username,
		Password:      cfg.Grid.Password,
		SpaceEncoding: spaceEncoding,
		Timeout:       cfg.Grid.Timeout,
		TLS: rest.TLSConfig{
			CAFile:             cfg.Grid.TLS.CAFile,
			CertFile:           cfg.Grid.TLS.CertFile,
			KeyFile:            cfg.Grid.TLS.KeyFile,
			InsecureSkipVerify: cfg.Grid.TLS.InsecureSkipVerify,
		},
	}, logger.With().Str("component", "grid").Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create grid client: %w", err)
	}

	srv := &Server{
		config:    cfg,
		logger:    logger,
		metrics:   collector,
		grid:      grid,
		allocator: memory.NewTrackedAllocator(nil),
		schemas:   pool.NewSchemaCache(cfg.SchemaCacheSize),
		health:    health.NewServer(),
	}

	// Create adapters
	handlerMetrics := &handlerMetricsAdapter{collector: collector}
	serviceMetrics := &serviceMetricsAdapter{collector: collector}

	// Create services
	frames := converter.NewFrameBuilder(logger.With().Str("component", "frames").Logger())
	srv.queryService = services.NewQueryService(grid, frames,
		newLoggerAdapter(logger, "query_service"), serviceMetrics,
		services.WithPageSize(cfg.Grid.PageSize))
	srv.healthService = services.NewHealthService(grid,
		newLoggerAdapter(logger, "health_service"), serviceMetrics)

	// Create handlers
	records := converter.NewRecordBuilder(srv.allocator, srv.schemas, logger.With().Str("component", "records").Logger())
	queryHandler := handlers.NewQueryHandler(srv.queryService, records, srv.allocator,
		newLoggerAdapter(logger, "query_handler"), handlerMetrics)
	healthHandler := handlers.NewHealthHandler(srv.healthService, newLoggerAdapter(logger, "health_handler"))

	srv.flight = flightserver.NewFlightServer(queryHandler, healthHandler, srv.allocator, logger, collector)

	logger.Info().
		Str("grid", grid.Endpoint()).
		Int("page_size", cfg.Grid.PageSize).
		Str("space_encoding", string(spaceEncoding)).
		Msg("Query bridge initialized")

	return srv, nil
}

// QueryService returns the batch pipeline, for in-process use by the CLI.
func (s *Server) QueryService() services.QueryService {
	return s.queryService
}

// HealthService returns the grid probe.
func (s *Server) HealthService() services.HealthService {
	return s.healthService
}

// Register registers the Flight and gRPC health services.
func (s *Server) Register(grpcServer *grpc.Server) {
	s.flight.Register(grpcServer)
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// GetMiddleware returns gRPC middleware for the server.
func (s *Server) GetMiddleware() []grpc.ServerOption {
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	// Recovery first so it guards everything below
	recoveryMiddleware := middleware.NewRecoveryMiddleware(s.logger)
	unary = append(unary, recoveryMiddleware.UnaryInterceptor())
	stream = append(stream, recoveryMiddleware.StreamInterceptor())

	// Add authentication middleware if enabled
	if s.config.Auth.Enabled {
		authMiddleware := middleware.NewAuthMiddleware(s.config.Auth, s.logger)
		unary = append(unary, authMiddleware.UnaryInterceptor())
		stream = append(stream, authMiddleware.StreamInterceptor())
	}

	// Add logging middleware
	loggingMiddleware := middleware.NewLoggingMiddleware(s.logger)
	unary = append(unary, loggingMiddleware.UnaryInterceptor())
	stream = append(stream, loggingMiddleware.StreamInterceptor())

	// Add metrics middleware
	metricsMiddleware := middleware.NewMetricsMiddleware(s.metrics)
	unary = append(unary, metricsMiddleware.UnaryInterceptor())
	stream = append(stream, metricsMiddleware.StreamInterceptor())

	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	}
}

// StartHealthUpdates probes the grid now and then every health interval,
// publishing the result through grpc_health_v1. It is a no-op when health
// checks are disabled or updates are already running.
func (s *Server) StartHealthUpdates(ctx context.Context) {
	if !s.config.Health.Enabled {
		s.setServing(healthpb.HealthCheckResponse_SERVING)
		return
	}

	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.stop = context.WithCancel(ctx)
	s.stopped = make(chan struct{})
	done := s.stopped
	s.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.config.Health.Interval)
		defer ticker.Stop()

		for {
			s.Probe(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Probe runs one grid health check, updates the serving status and reports
// allocator and schema cache gauges.
func (s *Server) Probe(ctx context.Context) *models.HealthResult {
	probeCtx, cancel := context.WithTimeout(ctx, s.config.Grid.Timeout)
	defer cancel()

	result := s.healthService.CheckHealth(probeCtx)
	if ctx.Err() != nil {
		return result
	}

	if result.Status == models.HealthStatusSuccess {
		s.setServing(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.logger.Warn().Str("message", result.Message).Msg("Grid health check failed")
		s.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
	}

	s.allocator.Report(s.metrics)
	stats := s.schemas.Stats()
	s.metrics.RecordGauge("schema_cache_entries", float64(stats.Size))
	s.metrics.RecordGauge("schema_cache_hits", float64(stats.TotalHits))
	return result
}

func (s *Server) setServing(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(FlightServiceName, status)
}

// Close stops health updates and marks the services as not serving.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info().Msg("Closing query bridge")

	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
		select {
		case <-stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.health.Shutdown()

	s.logger.Info().
		Int64("arrow_bytes_used", s.allocator.BytesUsed()).
		Int64("arrow_bytes_peak", s.allocator.PeakBytes()).
		Msg("Query bridge closed")
	return nil
}
