package health

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the name reported to grpc health probes alongside the
// overall ("") status.
const ServiceName = "restaurant.api"

type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes grpc.health.v1 for orchestrators. Status follows the result
// of pinging the database every interval.
type Server struct {
	grpc     *grpc.Server
	status   *grpchealth.Server
	db       Pinger
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewServer(db Pinger, interval time.Duration, log *zap.SugaredLogger) *Server {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	status := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, status)
	reflection.Register(grpcServer)

	status.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	status.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{
		grpc:     grpcServer,
		status:   status,
		db:       db,
		interval: interval,
		log:      log,
	}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Watch checks the database immediately, then every interval, until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Server) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(pingCtx); err != nil {
		s.log.Warnw("database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.status.SetServingStatus("", status)
	s.status.SetServingStatus(ServiceName, status)
}

// Stop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) Stop() {
	s.status.Shutdown()
	s.grpc.GracefulStop()
}
