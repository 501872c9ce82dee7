package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// BackendProber reports whether the backend is reachable and has the model.
type BackendProber interface {
	HasModel(ctx context.Context) (bool, error)
}

// HealthReporter keeps the gRPC health status in line with the backend.
type HealthReporter struct {
	server  *health.Server
	prober  BackendProber
	service string
	logger  *slog.Logger
}

// NewHealthReporter starts NOT_SERVING until the first successful probe.
func NewHealthReporter(prober BackendProber, service string, logger *slog.Logger) *HealthReporter {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	if service != "" {
		hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return &HealthReporter{server: hs, prober: prober, service: service, logger: logger}
}

// Check probes the backend once and updates the serving status.
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	r.logger.Debug("health.probe.start")
	status := healthpb.HealthCheckResponse_SERVING

	ok, err := r.prober.HasModel(ctx)
	switch {
	case err != nil:
		r.logger.Warn("health.probe.failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	case !ok:
		r.logger.Warn("health.probe.model_missing")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	default:
		r.logger.Debug("health.probe.ok")
	}

	r.server.SetServingStatus("", status)
	if r.service != "" {
		r.server.SetServingStatus(r.service, status)
	}
	return status
}

// Run probes immediately and then every interval until ctx is done.
func (r *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	r.Check(ctx)
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (r *HealthReporter) Shutdown() {
	r.server.Shutdown()
}

// NewGRPCServer registers the health service and reflection for grpcurl.
func NewGRPCServer(reporter *HealthReporter) *grpc.Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, reporter.server)
	reflection.Register(gs)
	return gs
}
