// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulelint/internal/core/api"
	"github.com/solatis/rulelint/internal/core/auth"
	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/metrics"
)

// shutdownGrace bounds GracefulStop before the server is stopped hard.
const shutdownGrace = 30 * time.Second

// GRPCServer owns the grpc.Server, its listener and the health service.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	config *config.ValidatorAPIConfig
	logger *slog.Logger
}

// NewGRPCServer wires the interceptor chain (metrics, timeout, auth and,
// when cfg.RateLimit is set, per-key rate limiting) and registers the
// validator and health services. collector may be nil.
func NewGRPCServer(cfg *config.ValidatorAPIConfig, service api.RuleValidatorServer, authenticator *auth.Authenticator, collector *metrics.Collector, logger *slog.Logger) (*GRPCServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	interceptors := []grpc.UnaryServerInterceptor{
		metricsInterceptor(collector),
		timeoutInterceptor(cfg.RequestTimeout),
		authenticator.UnaryInterceptor(),
	}
	if cfg.RateLimit > 0 {
		interceptors = append(interceptors, rateLimitInterceptor(newKeyLimiter(cfg.RateLimit, cfg.RateBurst)))
	}

	server := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	api.RegisterRuleValidatorServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
		logger: logger,
	}, nil
}

// Start binds cfg.Addr() and serves until Shutdown.
func (s *GRPCServer) Start(ctx context.Context) error {
	addr := s.config.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Serve runs on an existing listener. Used with bufconn in tests.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Shutdown marks the service NOT_SERVING, then stops gracefully. It forces
// a hard stop when ctx ends or the grace period elapses.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	timer := time.NewTimer(shutdownGrace)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-timer.C:
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}

func metricsInterceptor(c *metrics.Collector) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		c.ObserveRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

func timeoutInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if d <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return handler(ctx, req)
	}
}
