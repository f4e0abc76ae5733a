package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/randevubu/randevubu-server/internal/app"
	"github.com/randevubu/randevubu-server/internal/monitoring"
)

func TestMonitoringHandlerSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)

	mod.RecordAuthAttempt("success")
	mod.RecordAuthAttempt("success")
	mod.RecordMaintenanceRun("cache_purge", "success", "", 200*time.Millisecond)

	other, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)
	other.RecordAuthAttempt("failure")

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	handler := NewMonitoringHandler(mod, cfg)
	require.NotNil(t, handler)

	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Request, _ = http.NewRequest(http.MethodGet, "/api/monitoring/summary", nil)

	handler.Summary(ctx)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "\"success\":true")

	var body struct {
		Data struct {
			Summary monitoring.Summary `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Equal(t, uint64(2), body.Data.Summary.Auth.Success)
	require.Zero(t, body.Data.Summary.Auth.Failure)
	require.Len(t, body.Data.Summary.Maintenance.Jobs, 1)
}
