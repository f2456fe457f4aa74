package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSend(t *testing.T) {
	okBefore := testutil.ToFloat64(MessagesSent.WithLabelValues("test_type", "ok"))
	errBefore := testutil.ToFloat64(MessagesSent.WithLabelValues("test_type", "error"))

	ObserveSend("test_type", time.Now(), nil)
	ObserveSend("test_type", time.Now(), errors.New("boom"))
	ObserveSend("test_type", time.Now(), errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(MessagesSent.WithLabelValues("test_type", "ok")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(MessagesSent.WithLabelValues("test_type", "error")))
}

func TestSetTopology(t *testing.T) {
	SetTopology("localhost:9999", 3, 2, 0xFFFF_FFFF_FFFF_FFFF)

	assert.Equal(t, 3.0, testutil.ToFloat64(Children.WithLabelValues("localhost:9999")))
	assert.Equal(t, 2.0, testutil.ToFloat64(Siblings.WithLabelValues("localhost:9999")))
	assert.Equal(t, float64(1<<53-1), testutil.ToFloat64(TopologyDigest.WithLabelValues("localhost:9999")))
}

func TestMetricsHandler(t *testing.T) {
	Admissions.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "treenet_admissions_total")
	assert.Contains(t, string(body), "treenet_uptime_seconds")
}
