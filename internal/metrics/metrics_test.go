package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveFit(t *testing.T) {
	ObserveFit("metrics-test", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `urbantex_cluster_fit_duration_seconds_count{family="metrics-test"} 1`)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ClassificationsTotal.Inc()
	ActiveSessions.Set(2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "urbantex_classifications_total")
	assert.Contains(t, body, "urbantex_active_sessions 2")
}
