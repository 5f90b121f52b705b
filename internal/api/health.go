package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/marvelmind/internal/timeutil"
	"github.com/banshee-data/marvelmind/internal/tracker"
)

// HealthServiceName is the gRPC health service that follows the modem session.
// The empty service name reports the same status.
const HealthServiceName = "marvelmind.Tracker"

// HealthServer exposes tracker.State.Open over grpc.health.v1.
type HealthServer struct {
	state  *tracker.State
	health *health.Server
	server *grpc.Server

	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup
}

func NewHealthServer(state *tracker.State) *HealthServer {
	h := &HealthServer{
		state:  state,
		health: health.NewServer(),
		server: grpc.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.Sync()
	return h
}

// Sync copies the session state into the health service.
func (h *HealthServer) Sync() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if h.state.Open() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(HealthServiceName, st)
}

// Check answers a health query in-process.
func (h *HealthServer) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Watch calls Sync every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context, clock timeutil.Clock, interval time.Duration) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			h.Sync()
		}
	}
}

// Start listens on addr and serves in the background.
func (h *HealthServer) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	h.listener = lis
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		logf("gRPC health listening on %s", lis.Addr())
		if err := h.server.Serve(lis); err != nil && h.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (h *HealthServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop marks every service NOT_SERVING and drains the server.
func (h *HealthServer) Stop() {
	if !h.running.Swap(false) {
		return
	}
	h.health.Shutdown()
	h.server.GracefulStop()
	h.wg.Wait()
	logf("gRPC health stopped")
}
