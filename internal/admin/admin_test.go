package admin

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/maxpoletaev/treenet/topology"
)

func startHealthServer(t *testing.T, h *Health) healthpb.HealthClient {
	t.Helper()

	listener := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer()
	h.Register(server)

	go func() {
		server.Serve(listener) //nolint:errcheck
	}()

	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
	})

	return healthpb.NewHealthClient(conn)
}

func TestHealth(t *testing.T) {
	h := NewHealth()
	client := startHealthServer(t, h)
	ctx := context.Background()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	h.TopologyChanged(topology.Snapshot{Joined: true})

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	h.TopologyChanged(topology.Snapshot{Joined: false})

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestHealth_Shutdown(t *testing.T) {
	h := NewHealth()
	client := startHealthServer(t, h)

	h.TopologyChanged(topology.Snapshot{Joined: true})
	h.Shutdown()
	h.TopologyChanged(topology.Snapshot{Joined: true})

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestMetricsServer(t *testing.T) {
	srv := NewMetricsServer(":0")

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "treenet_uptime_seconds")

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))
	assert.Equal(t, 404, rec.Code)
}
