package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/firewall-mcp/internal/config"
)

const defaultGracefulTimeout = 10 * time.Second

// Server hosts the correlation service next to gRPC health and reflection.
type Server struct {
	cfg      config.ServerConfig
	grpc     *grpc.Server
	listener net.Listener
	health   *health.Server
}

// NewServer listens on cfg.Address and registers service on a new gRPC server.
// Extra options are appended after the metrics interceptors.
func NewServer(cfg config.ServerConfig, service CorrelationServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	return newServer(cfg, lis, service, opts...), nil
}

func newServer(cfg config.ServerConfig, lis net.Listener, service CorrelationServer, opts ...grpc.ServerOption) *Server {
	grpc_prometheus.EnableHandlingTimeHistogram()
	grpcServer := grpc.NewServer(append(metricsInterceptors(), opts...)...)

	RegisterCorrelationServer(grpcServer, service)
	grpc_prometheus.Register(grpcServer)

	// "" reports overall health; ServiceName lets probes target the correlation service.
	healthSrv := health.NewServer()
	for _, name := range []string{"", ServiceName} {
		healthSrv.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	return &Server{cfg: cfg, grpc: grpcServer, listener: lis, health: healthSrv}
}

func metricsInterceptors() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
}

// Start blocks serving correlation RPCs until Shutdown.
func (s *Server) Start() error {
	if s.grpc == nil || s.listener == nil {
		return errors.New("grpc server not initialised")
	}
	return s.grpc.Serve(s.listener)
}

// Shutdown flips health to NOT_SERVING so probes drain traffic, lets in-flight
// correlations finish, and hard-stops once ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	if s.grpc == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}

	drained := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

// Address is the bound listen address, which differs from cfg.Address for ":0".
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout is the drain budget for Shutdown.
func (s *Server) GracefulTimeout() time.Duration {
	if s.cfg.GracefulTimeout <= 0 {
		return defaultGracefulTimeout
	}
	return s.cfg.GracefulTimeout
}
