package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/audit"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/catalog"
	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/metrics"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring/fake"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/reconciler"
)

const (
	ns   = "AWS/SQS"
	name = "ApproximateNumberOfMessagesVisible"
)

var fixedNow = time.Date(2024, 5, 1, 12, 34, 56, 0, time.UTC)

func queue(q string) monitoring.Metric {
	return monitoring.Metric{Namespace: ns, MetricName: name,
		Dimensions: []monitoring.Dimension{{Name: "QueueName", Value: q}}}
}

type harness struct {
	backend *fake.Backend
	engine  *Engine
	audit   *audit.Logger
}

func newHarness(t *testing.T, backend monitoring.Backend, fb *fake.Backend, mode monitoring.BoundsMode, sampleDays int) *harness {
	t.Helper()
	logger := zap.NewNop()
	filter, err := monitoring.ParseDimensionFilter("QueueName,.")
	require.NoError(t, err)

	auditLogger := audit.NewLogger(logger, true)
	m := metrics.New(logger)
	c := catalog.New(backend, ns, name, filter, "Sum", "Count", logger)
	r := reconciler.New(backend, reconciler.Options{
		Multiplier:        3,
		Mode:              mode,
		Statistic:         "Sum",
		Unit:              "Count",
		EvaluationPeriods: 1,
		DatapointsToAlarm: 1,
		TreatMissingData:  monitoring.TreatMissingMissing,
	}, auditLogger, m, logger)

	e := New(Options{Namespace: ns, MetricName: name, SampleDays: sampleDays, Period: 60, Multiplier: 3}, c, r, m, logger).
		WithClock(func() time.Time { return fixedNow })

	return &harness{backend: fb, engine: e, audit: auditLogger}
}

func seeded() *fake.Backend {
	return fake.New().
		WithMetricPageSize(1).
		WithSamplePageSize(2).
		AddMetric(queue("orders"), 10, 12, 14, 16, 18).
		AddMetric(queue("idle")).
		AddMetric(queue("flat"), 3, 3, 3, 3).
		AddMetric(monitoring.Metric{Namespace: ns, MetricName: name})
}

func TestRunReconcilesEveryMatchedMetric(t *testing.T) {
	backend := seeded()
	backend.SeedAlarm(monitoring.AlarmSpec{Name: "stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/flat"})
	backend.SeedAlarm(monitoring.AlarmSpec{Name: "stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/idle"})
	h := newHarness(t, backend, backend, monitoring.BoundsBoth, 15)

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.MetricsMatched, "dimensionless metric is filtered out")
	assert.Equal(t, 1, summary.MetricsSkipped)
	assert.Equal(t, 1, summary.MetricsDegenerate)
	assert.Equal(t, 2, summary.AlarmsPut)
	assert.Equal(t, 2, summary.AlarmsDeleted)
	assert.Equal(t, 60, summary.Window.Period)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 34, 0, 0, time.UTC), summary.Window.End)
	assert.NotEmpty(t, summary.TraceID)

	assert.Equal(t, []string{
		"stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/idle",
		"stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/orders",
		"stddev3-AlarmLow-AWS/SQS/ApproximateNumberOfMessagesVisible/orders",
	}, backend.AlarmNames(), "empty series leaves existing alarms alone, degenerate series removes them")

	high := backend.Alarms()["stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/orders"]
	assert.Equal(t, 60, high.Period)
	assert.Equal(t, "Sum", high.Statistic)

	entries := h.audit.GetEntriesByTraceID(summary.TraceID)
	assert.Len(t, entries, 4)
}

func TestRunIsIdempotent(t *testing.T) {
	backend := seeded()
	h := newHarness(t, backend, backend, monitoring.BoundsBoth, 15)

	_, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	first := backend.WriteCalls()
	alarms := backend.Alarms()

	backend.ResetCalls()
	_, err = h.engine.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, backend.WriteCalls())
	assert.Equal(t, alarms, backend.Alarms())
}

func TestRunUsesTieredPeriod(t *testing.T) {
	backend := seeded()
	h := newHarness(t, backend, backend, monitoring.BoundsHigh, 90)

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3600, summary.Window.Period)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), summary.Window.End)
	assert.Equal(t, 90*24*time.Hour, summary.Window.Duration())

	high := backend.Alarms()["stddev3-AlarmHigh-AWS/SQS/ApproximateNumberOfMessagesVisible/orders"]
	assert.Equal(t, 3600, high.Period)
}

func TestRunRejectsWindowBeyondRetention(t *testing.T) {
	backend := seeded()
	h := newHarness(t, backend, backend, monitoring.BoundsBoth, 456)

	_, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsConfigurationError(err))
	assert.Empty(t, backend.Calls(), "no backend call before the window is valid")
}

func TestRunAbortsOnBackendError(t *testing.T) {
	backend := seeded()
	backend.FailOn(fake.OpGetMetricData, 0, errors.New("throttled"))
	h := newHarness(t, backend, backend, monitoring.BoundsBoth, 15)

	summary, err := h.engine.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsBackendError(err))
	assert.Equal(t, 3, summary.MetricsMatched)
	assert.Empty(t, backend.WriteCalls())
}

func TestRunAbortsOnOverflowingSeries(t *testing.T) {
	backend := fake.New().AddMetric(queue("huge"), 1e308, 1.5e308)
	h := newHarness(t, backend, backend, monitoring.BoundsBoth, 15)

	summary, err := h.engine.Run(context.Background())
	require.Error(t, err)

	var se *apperrors.StructuredError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, apperrors.CodeInternal, se.Code)
	assert.Zero(t, summary.AlarmsPut)
	assert.Empty(t, backend.WriteCalls())
}

func TestRunDryRunWritesNothing(t *testing.T) {
	backend := seeded()
	dry := monitoring.NewDryRun(backend, zap.NewNop())
	h := newHarness(t, dry, backend, monitoring.BoundsBoth, 15)

	summary, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AlarmsPut)
	assert.Empty(t, backend.WriteCalls())
	assert.Empty(t, backend.Alarms())
}
