package irrigation_controller

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name of the controller.
const HealthService = "gardenbot.Controller"

// SyncHealth mirrors the board into hs every interval until ctx is done, then marks
// every service NOT_SERVING.
func SyncHealth(ctx context.Context, board *StatusBoard, hs *health.Server, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		syncHealthOnce(board, hs)
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
		}
	}
}

func syncHealthOnce(board *StatusBoard, hs *health.Server) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if v, ok := board.Load(); ok && v.LinkUp {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(HealthService, st)
	hs.SetServingStatus("", st)
}
