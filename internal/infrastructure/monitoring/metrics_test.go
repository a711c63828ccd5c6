package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/experiment"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestExperimentUpserted(t *testing.T) {
	m := NewMetrics()
	m.ExperimentUpserted(experiment.ActionUpdate, "ok")
	m.ExperimentUpserted(experiment.ActionUpdate, "forbidden:api")
	m.ExperimentUpserted(experiment.ActionReset, "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExperimentUpserts.WithLabelValues("update", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExperimentUpserts.WithLabelValues("update", "forbidden:api")))
	assert.Equal(t, int64(2), m.Snapshot().ExperimentsSaved)
}

func TestBridgeMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncBridgeConnections("host")
	m.IncBridgeConnections("frame")
	m.DecBridgeConnections("frame")
	m.RecordBridgeMessage("host", "relayed")
	m.RecordBridgeMessage("frame", "dropped")
	m.SetBridgeSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeConnections.WithLabelValues("host")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BridgeConnections.WithLabelValues("frame")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeMessages.WithLabelValues("frame", "dropped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BridgeSessions))
	assert.Equal(t, int64(1), m.Snapshot().ActiveConnections)
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/demo/*page", func(c *gin.Context) { c.String(http.StatusOK, "page") })

	for _, p := range []string{"/demo/a.html", "/demo/b.html", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/demo/*page", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.RecordConfigLookup("found")
	NewTimer(m, "store", "upsert").Stop("success")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	for _, name := range []string{
		"headlinetester_widget_config_lookups_total",
		"headlinetester_service_calls_total",
		"headlinetester_uptime_seconds",
	} {
		assert.True(t, strings.Contains(body, name), name)
	}
}

func TestTimerNil(t *testing.T) {
	var timer *Timer
	assert.NotPanics(t, func() { timer.Stop("success") })
	assert.NotPanics(t, func() { NewTimer(nil, "store", "x").Stop("error") })
}
