package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEnsureTraceContextGeneratesOnce(t *testing.T) {
	ctx := EnsureTraceContext(context.Background())
	info := FromContext(ctx)
	assert.Len(t, info.TraceID, 32)
	assert.Len(t, info.SpanID, 16)

	again := EnsureTraceContext(ctx)
	assert.Equal(t, info.TraceID, FromContext(again).TraceID)
}

func TestFromContextEmpty(t *testing.T) {
	info := FromContext(context.Background())
	assert.Empty(t, info.TraceID)
	assert.Empty(t, info.SpanID)
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown, err := InitOTel(OTelConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSpansCarryIdentifiersAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	shutdown, err := initProvider(OTelConfig{ServiceName: "test"}, sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = shutdown(context.Background())
		globalTracer = nil
	})

	ctx, run := RunSpan(context.Background(), "AWS/EC2", "CPUUtilization")
	ctx, metric := MetricSpan(ctx, "AWS/EC2|CPUUtilization")
	_, api := APISpan(ctx, "PutMetricAlarm")

	info := FromContext(ctx)
	assert.Equal(t, metric.SpanContext().TraceID().String(), info.TraceID)
	assert.Equal(t, metric.SpanContext().SpanID().String(), info.SpanID)

	RecordError(api, errors.New("denied"))
	api.End()
	SetThresholds(metric, 1, 2, 3, 4)
	SetSuccess(metric)
	metric.End()
	run.End()

	ended := recorder.Ended()
	require.Len(t, ended, 3)
	assert.Equal(t, "cloudwatch.PutMetricAlarm", ended[0].Name())
	assert.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "stddev.metric", ended[1].Name())
	assert.Equal(t, "stddev.run", ended[2].Name())
	assert.Equal(t, ended[2].SpanContext().TraceID(), ended[0].SpanContext().TraceID())
}

func TestInitOTelEnabledStartsProvider(t *testing.T) {
	shutdown, err := InitOTel(OTelConfig{
		ServiceName:    "cloudwatch-stddev-alarms",
		ServiceVersion: "test",
		Environment:    "development",
		Enabled:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	t.Cleanup(func() { globalTracer = nil })

	_, span := RunSpan(context.Background(), "AWS/SQS", "NumberOfMessagesSent")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}
