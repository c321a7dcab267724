package monitoring

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// MetricPage is one page of a metric listing.
type MetricPage struct {
	Metrics   []Metric
	NextToken string
}

// SamplePage is one page of a statistic series, time-ascending.
type SamplePage struct {
	Values    []float64
	NextToken string
}

// Backend is the monitoring service boundary. Put replaces any alarm of the same name and
// deleting an absent alarm is a no-op, so every write is safe to repeat.
type Backend interface {
	ListMetrics(ctx context.Context, namespace, metricName, nextToken string) (*MetricPage, error)
	GetMetricData(ctx context.Context, query MetricDataQuery, nextToken string) (*SamplePage, error)
	PutMetricAlarm(ctx context.Context, alarm AlarmSpec) error
	DeleteAlarms(ctx context.Context, names []string) error
}

// PageFunc fetches the page following token. An empty returned token means no more pages.
type PageFunc[T any] func(ctx context.Context, token string) (items []T, next string, err error)

// CollectPages calls fetch until a page carries no continuation token and returns the
// concatenation of every page. On any error the pages gathered so far are discarded.
func CollectPages[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var (
		acc   []T
		token string
	)
	seen := map[string]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, next, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		acc = append(acc, items...)

		if next == "" {
			return acc, nil
		}
		if _, loop := seen[next]; loop {
			return nil, fmt.Errorf("continuation token %q repeated", next)
		}
		seen[next] = struct{}{}
		token = next
	}
}

// DryRun forwards reads to the wrapped backend and only logs writes.
type DryRun struct {
	Backend
	logger *zap.Logger
}

// NewDryRun wraps backend so that no alarm is created, replaced or deleted.
func NewDryRun(backend Backend, logger *zap.Logger) *DryRun {
	return &DryRun{
		Backend: backend,
		logger:  logger.Named("dry_run"),
	}
}

// PutMetricAlarm logs the alarm that would be put.
func (d *DryRun) PutMetricAlarm(_ context.Context, alarm AlarmSpec) error {
	d.logger.Info("Would put alarm",
		zap.String("alarm", alarm.Name),
		zap.Float64("threshold", alarm.Threshold),
		zap.String("comparison", string(alarm.ComparisonOperator)),
	)
	return nil
}

// DeleteAlarms logs the alarms that would be deleted.
func (d *DryRun) DeleteAlarms(_ context.Context, names []string) error {
	d.logger.Info("Would delete alarms", zap.Strings("alarms", names))
	return nil
}
