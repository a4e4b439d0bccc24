package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordTurns(t *testing.T) {
	m := NewMetrics(nil)

	m.TurnCompleted("crisis", false, 200*time.Millisecond)
	m.TurnCompleted("crisis", false, 100*time.Millisecond)
	m.TurnCompleted("none", true, time.Second)
	m.TurnFailed("persist_user")
	m.PersistFailed("assistant")
	m.Escalated("crisis")
	m.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("crisis", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("none", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turnFailures.WithLabelValues("persist_user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures.WithLabelValues("assistant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues("crisis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.TurnCompleted("none", false, time.Second)
	m.TurnFailed("x")
	m.ObserveGeneration("ok", time.Second)
	m.PersistFailed("user")
	m.Escalated("medium")
	m.SessionOpened()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics(nil)
	m.Escalated("medium")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `sahayak_escalations_total{level="medium"} 1`))
}
