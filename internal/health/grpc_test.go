package health

import (
	"context"
	"testing"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestSyncMirrorsReadiness(t *testing.T) {
	srv := grpchealth.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sync(ctx, srv, NewChecker(readyConfig(), nil), 10*time.Millisecond)
		close(done)
	}()

	waitStatus(t, srv, healthpb.HealthCheckResponse_SERVING)
	cancel()
	<-done
	waitStatus(t, srv, healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestSyncReportsNotServing(t *testing.T) {
	srv := grpchealth.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Sync(ctx, srv, NewChecker(readyConfig(), pingFunc(func(context.Context) error { return context.DeadlineExceeded })), 10*time.Millisecond)

	waitStatus(t, srv, healthpb.HealthCheckResponse_NOT_SERVING)
}

func waitStatus(t *testing.T, srv *grpchealth.Server, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		if err == nil && resp.GetStatus() == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never became %v (last err %v)", want, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
