// Package grpc serves the standard gRPC health checking protocol.
package grpc

import (
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "eduvox.v1.Assistant"

// Server is a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	srv    *grpc.Server
	health *health.Server
}

// New creates a server whose services start as NOT_SERVING.
func New(opts ...grpc.ServerOption) *Server {
	s := &Server{
		srv:    grpc.NewServer(opts...),
		health: health.NewServer(),
	}

	healthpb.RegisterHealthServer(s.srv, s.health)
	reflection.Register(s.srv)

	s.SetServing(false)
	return s
}

// SetServing flips the overall and assistant service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	slog.Info("gRPC server listening", "addr", l.Addr().String())

	if err := s.srv.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
