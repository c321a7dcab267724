package catalog

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
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring/fake"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/window"
)

const (
	testNamespace = "AWS/SQS"
	testMetric    = "ApproximateNumberOfMessagesVisible"
)

func queue(name string) monitoring.Metric {
	return monitoring.Metric{
		Namespace:  testNamespace,
		MetricName: testMetric,
		Dimensions: []monitoring.Dimension{{Name: "QueueName", Value: name}},
	}
}

func seeded(n int) *fake.Backend {
	b := fake.New()
	for i := 0; i < n; i++ {
		b.AddMetric(queue(string(rune('a' + i))))
	}
	b.AddMetric(monitoring.Metric{Namespace: testNamespace, MetricName: "NumberOfMessagesSent",
		Dimensions: []monitoring.Dimension{{Name: "QueueName", Value: "a"}}})
	b.AddMetric(monitoring.Metric{Namespace: testNamespace, MetricName: testMetric,
		Dimensions: []monitoring.Dimension{{Name: "QueueName", Value: "a"}, {Name: "Region", Value: "eu"}}})
	return b
}

func TestMetricsIsIndependentOfPageSize(t *testing.T) {
	filter, err := monitoring.ParseDimensionFilter("QueueName,.")
	require.NoError(t, err)

	var results [][]monitoring.Metric
	for _, size := range []int{0, 1, 2, 3, 10} {
		c := New(seeded(10).WithMetricPageSize(size), testNamespace, testMetric, filter, "Average", "", zap.NewNop())
		got, err := c.Metrics(context.Background())
		require.NoError(t, err)
		results = append(results, got)
	}

	require.Len(t, results[0], 10)
	for _, r := range results[1:] {
		assert.Equal(t, results[0], r)
	}
}

func TestMetricsAppliesDimensionFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   int
	}{
		{name: "no filter lists everything for the metric name", filter: "", want: 4},
		{name: "single key filter excludes multi dimension metric", filter: "QueueName,^[ab]$", want: 2},
		{name: "two key filter matches only the exact key set", filter: "QueueName,a;Region,eu", want: 1},
		{name: "key absent from every metric", filter: "TopicName,.", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := monitoring.ParseDimensionFilter(tt.filter)
			require.NoError(t, err)

			c := New(seeded(3), testNamespace, testMetric, filter, "Average", "", zap.NewNop())
			got, err := c.Metrics(context.Background())
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestMetricsFailureDiscardsPartialListing(t *testing.T) {
	backend := seeded(6).WithMetricPageSize(2)
	backend.FailOn(fake.OpListMetrics, 1, errors.New("rate exceeded"))

	c := New(backend, testNamespace, testMetric, nil, "Average", "", zap.NewNop())
	got, err := c.Metrics(context.Background())
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, apperrors.IsBackendError(err))
	assert.ErrorContains(t, err, "rate exceeded")
}

func TestMetricsLogsEachMatch(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := New(seeded(2), testNamespace, testMetric, monitoring.DimensionFilter{}, "Average", "", zap.New(core))

	_, err := c.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, logs.FilterMessage("Found metric").Len())
}

func TestSeriesConcatenatesPages(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	w := window.Window{Start: time.Unix(0, 0), End: time.Unix(3600, 0), Period: 60}

	for _, size := range []int{0, 2, 3, 10} {
		backend := fake.New().WithSamplePageSize(size).AddMetric(queue("orders"), values...)
		c := New(backend, testNamespace, testMetric, nil, "Sum", "Count", zap.NewNop())

		got, err := c.Series(context.Background(), queue("orders"), w)
		require.NoError(t, err)
		assert.Equal(t, values, got, "page size %d", size)
	}
}

func TestSeriesEmptyIsNotAnError(t *testing.T) {
	backend := fake.New().AddMetric(queue("idle"))
	c := New(backend, testNamespace, testMetric, nil, "Average", "", zap.NewNop())

	got, err := c.Series(context.Background(), queue("idle"), window.Window{Period: 60})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSeriesFailureIsBackendError(t *testing.T) {
	backend := fake.New().WithSamplePageSize(1).AddMetric(queue("orders"), 1, 2, 3)
	backend.FailOn(fake.OpGetMetricData, 2, errors.New("boom"))
	c := New(backend, testNamespace, testMetric, nil, "Average", "", zap.NewNop())

	got, err := c.Series(context.Background(), queue("orders"), window.Window{Period: 60})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.True(t, apperrors.IsBackendError(err))
}
