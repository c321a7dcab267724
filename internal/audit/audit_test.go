package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/tracing"
)

func TestLogAlarmPutAndDelete(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := NewLogger(zap.New(core), true)
	ctx := tracing.WithTraceInfo(context.Background(), &tracing.TraceInfo{TraceID: "trace-1", SpanID: "span-1"})

	l.LogAlarmPut(ctx, "stddev3-AlarmHigh-AWS/EC2/CPUUtilization/i-1", "AlarmHigh", "AWS/EC2|CPUUtilization", 42.5, "GreaterThanThreshold", time.Millisecond, nil)
	l.LogAlarmDelete(ctx, "stddev3-AlarmLow-AWS/EC2/CPUUtilization/i-1", "AlarmLow", "AWS/EC2|CPUUtilization", time.Millisecond,
		apperrors.NewBackendError("DeleteAlarms", errors.New("denied")))

	entries := l.GetRecentEntries(0)
	require.Len(t, entries, 2)

	del, put := entries[0], entries[1]
	assert.Equal(t, OperationPut, put.Operation)
	require.NotNil(t, put.Threshold)
	assert.Equal(t, 42.5, *put.Threshold)
	assert.True(t, put.Success)
	assert.Equal(t, "trace-1", put.TraceID)
	assert.Equal(t, "span-1", put.SpanID)

	assert.Equal(t, OperationDelete, del.Operation)
	assert.False(t, del.Success)
	assert.Equal(t, string(apperrors.CodeBackend), del.ErrorCode)
	assert.Nil(t, del.Threshold)

	assert.Equal(t, 2, logs.FilterMessage("audit").Len())
	assert.Len(t, l.GetEntriesByTraceID("trace-1"), 2)
	assert.Empty(t, l.GetEntriesByTraceID("other"))
}

func TestDisabledLoggerRecordsNothing(t *testing.T) {
	l := NewLogger(zap.NewNop(), false)
	l.LogAlarmDelete(context.Background(), "a", "AlarmHigh", "", 0, nil)

	assert.False(t, l.IsEnabled())
	assert.Empty(t, l.GetRecentEntries(10))
}

func TestBufferIsBounded(t *testing.T) {
	l := NewLogger(zap.NewNop(), true)
	l.maxEntries = 3

	for _, name := range []string{"a", "b", "c", "d", "e"} {
		l.LogAlarmDelete(context.Background(), name, "AlarmLow", "", 0, nil)
	}

	entries := l.GetRecentEntries(10)
	require.Len(t, entries, 3)
	assert.Equal(t, "e", entries[0].Alarm)
	assert.Equal(t, "c", entries[2].Alarm)

	assert.Len(t, l.GetRecentEntries(1), 1)
}

func TestDryRunEntriesAreMarked(t *testing.T) {
	l := NewLogger(zap.NewNop(), true).WithDryRun(true)
	l.LogAlarmPut(context.Background(), "a", "AlarmHigh", "", 1, "GreaterThanThreshold", 0, nil)

	assert.True(t, l.GetRecentEntries(1)[0].DryRun)
}

func TestGetStats(t *testing.T) {
	l := NewLogger(zap.NewNop(), true)
	l.LogAlarmPut(context.Background(), "a", "AlarmHigh", "", 1, "GreaterThanThreshold", 2*time.Millisecond, nil)
	l.LogAlarmPut(context.Background(), "b", "AlarmLow", "", 0, "LessThanOrEqualToThreshold", 4*time.Millisecond,
		apperrors.NewBackendError("PutMetricAlarm", errors.New("throttled")))

	stats := l.GetStats()
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 50.0, stats.SuccessRate)
	assert.Equal(t, 3*time.Millisecond, stats.AverageDuration)
	assert.Equal(t, 2, stats.OperationCounts[OperationPut])
	assert.Equal(t, 1, stats.ErrorCounts[string(apperrors.CodeBackend)])
}

func TestLogStats(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLogger(zap.New(core), true)
	l.LogAlarmDelete(context.Background(), "a", "AlarmLow", "", time.Millisecond, nil)

	l.LogStats()
	stats := logs.FilterMessage("Audit statistics").All()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].ContextMap()["total_entries"])

	disabled := NewLogger(zap.New(core), false)
	disabled.LogStats()
	assert.Len(t, logs.FilterMessage("Audit statistics").All(), 1)
}
