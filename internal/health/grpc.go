package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const ServiceName = "livecaption.Relay"

// Reporter mirrors readiness into a gRPC health server so load balancers can
// probe the relay over gRPC.
type Reporter struct {
	handler  *Handler
	server   *health.Server
	interval time.Duration
	logger   *slog.Logger
}

func NewReporter(handler *Handler, server *health.Server, interval time.Duration, logger *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reporter{
		handler:  handler,
		server:   server,
		interval: interval,
		logger:   logger.With("component", "health_reporter"),
	}
}

// Update runs one readiness check and publishes the result.
func (r *Reporter) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	overall, components := r.handler.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if overall == StatusUnhealthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		r.logger.Warn("relay not ready", "components", components)
	}

	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
	return status
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Update(ctx)
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Update(ctx)
		}
	}
}
