package health

import (
	"context"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "receptionist"

// Sync runs Ready every interval and mirrors the result onto the gRPC health
// server until ctx ends, then marks the service as not serving.
func Sync(ctx context.Context, srv *grpchealth.Server, c *Checker, interval time.Duration) {
	set := func(ok bool) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			status = healthpb.HealthCheckResponse_SERVING
		}
		srv.SetServingStatus("", status)
		srv.SetServingStatus(ServiceName, status)
	}
	set(c.Ready(ctx).OK)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			set(c.Ready(ctx).OK)
		}
	}
}
