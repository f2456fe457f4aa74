package admin

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/maxpoletaev/treenet/topology"
)

// ServiceName is reported by the health service next to the overall status.
const ServiceName = "treenet.Node"

// Health reports the node as serving while it is part of the tree. It is
// meant to be used as the overlay observer.
type Health struct {
	srv *health.Server
}

func NewHealth() *Health {
	h := &Health{srv: health.NewServer()}
	h.set(false)

	return h
}

func (h *Health) TopologyChanged(snap topology.Snapshot) {
	h.set(snap.Joined)
}

func (h *Health) set(joined bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if joined {
		status = healthpb.HealthCheckResponse_SERVING
	}

	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(ServiceName, status)
}

func (h *Health) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Shutdown switches every service to NOT_SERVING and ignores further updates.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}
