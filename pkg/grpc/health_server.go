// Package grpc serves the standard gRPC health service so orchestrators can
// probe the storefront without going through HTTP.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported next to the overall ("")
// status.
const ServiceName = "storefront"

type HealthServer struct {
	config *config.GRPCConfig
	server *grpc.Server
	health *health.Server
	checks map[string]func(context.Context) error
	logger *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func NewHealthServer(cfg *config.GRPCConfig, checks map[string]func(context.Context) error, logger *zap.Logger) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &HealthServer{
		config: cfg,
		server: srv,
		health: hs,
		checks: checks,
		logger: logger.Named("grpc"),
		stop:   make(chan struct{}),
	}
}

func (s *HealthServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.logger.Info("gRPC health service started", zap.String("address", addr))
	return s.Serve(lis)
}

// Serve probes dependencies in the background and serves on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.probeLoop()

	if err := s.server.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve grpc: %w", err)
	}
	return nil
}

func (s *HealthServer) probeLoop() {
	interval := s.config.ProbeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			s.Probe(ctx)
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Probe runs every check once and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("Dependency unhealthy", zap.String("dependency", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

func (s *HealthServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.server.GracefulStop()
		s.logger.Info("gRPC health service stopped")
	})
}
