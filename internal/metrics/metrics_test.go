package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordRequest(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordRequest("ListMetrics", true, 10*time.Millisecond)
	m.RecordRequest("ListMetrics", true, 20*time.Millisecond)
	m.RecordRequest("PutMetricAlarm", false, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.promBackendRequests.WithLabelValues("ListMetrics", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promBackendRequests.WithLabelValues("PutMetricAlarm", "error")))

	stats := m.GetStats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
}

func TestRecordAlarmsAndResults(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordAlarmPut("AlarmHigh")
	m.RecordAlarmPut("AlarmLow")
	m.RecordAlarmDeleted("AlarmLow")
	m.RecordMetricProcessed(ResultReconciled)
	m.RecordMetricProcessed(ResultEmpty)
	m.RecordMetricProcessed(ResultEmpty)
	m.RecordRateLimitWait()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.promAlarmsPut.WithLabelValues("AlarmHigh")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promAlarmsDeleted.WithLabelValues("AlarmLow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.promMetrics.WithLabelValues(ResultEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promRateLimitWaits))

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.AlarmsPut)
	assert.Equal(t, uint64(1), stats.AlarmsDeleted)
	assert.Equal(t, uint64(1), stats.RateLimitWaits)
}

func TestRecordRun(t *testing.T) {
	m := New(zap.NewNop())
	finished := time.Unix(1700000000, 0)

	m.RecordRun(true, finished, time.Second)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.promLastRun))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.promLastRunSuccess))

	m.RecordRun(false, finished, time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.promLastRunSuccess))
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a := New(zap.NewNop())
	b := New(zap.NewNop())
	a.RecordAlarmPut("AlarmHigh")

	assert.Equal(t, 0.0, testutil.ToFloat64(b.promAlarmsPut.WithLabelValues("AlarmHigh")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(zap.NewNop())
	m.RecordMetricProcessed(ResultDegenerate)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `stddev_alarms_metrics_processed_total{result="degenerate"} 1`)
}

func TestPushSendsToGateway(t *testing.T) {
	var gotPath, gotBody string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	m := New(zap.NewNop())
	m.RecordAlarmPut("AlarmHigh")

	require.NoError(t, m.Push(context.Background(), gateway.URL, "stddev_alarms"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/stddev_alarms"), gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushReportsGatewayErrors(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	m := New(zap.NewNop())
	assert.Error(t, m.Push(context.Background(), gateway.URL, "stddev_alarms"))
}
