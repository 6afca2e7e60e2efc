package router

import (
	"context"
	"fmt"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/dtroode/accounts-server/internal/api/grpc/middleware"
	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

// ServiceName is the health service name reported for the accounts backend.
const ServiceName = "accounts.Accounts"

const probeTimeout = 2 * time.Second

// Router represents a gRPC router serving the standard health service.
// Serving status follows the reachability of the pingers.
type Router struct {
	pingers map[string]model.Pinger
	health  *health.Server
	logger  *logger.Logger
}

// New creates new gRPC Router instance.
func New(pingers map[string]model.Pinger, logger *logger.Logger) *Router {
	return &Router{
		pingers: pingers,
		health:  health.NewServer(),
		logger:  logger,
	}
}

// Register registers the health and reflection services behind the logging
// and panic recovery interceptors.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	recoveryOpt := recovery.WithRecoveryHandlerContext(r.recoverPanic)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			recovery.UnaryServerInterceptor(recoveryOpt),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoveryOpt),
		),
	)
	healthpb.RegisterHealthServer(s, r.health)
	reflection.Register(s)

	return s
}

// Probe pings every dependency and updates the serving status.
func (r *Router) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	servingStatus := healthpb.HealthCheckResponse_SERVING
	for name, p := range r.pingers {
		if err := p.Ping(ctx); err != nil {
			r.logger.Warn("gRPC health: dependency not ready",
				"dependency", name,
				"error", err.Error())
			servingStatus = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}

	r.health.SetServingStatus("", servingStatus)
	r.health.SetServingStatus(ServiceName, servingStatus)
	return servingStatus == healthpb.HealthCheckResponse_SERVING
}

// Watch probes on every tick until ctx is done.
func (r *Router) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Probe(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service and ignores later probes.
func (r *Router) Shutdown() {
	r.health.Shutdown()
}

func (r *Router) recoverPanic(ctx context.Context, p any) error {
	r.logger.Error("gRPC handler panicked",
		"panic", fmt.Sprint(p))
	return status.Error(codes.Internal, "internal server error")
}
