// Package catalog discovers the metrics a run covers and fetches their sample series.
package catalog

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/window"
)

// Catalog lists and samples the metrics selected by namespace, name and dimension filter.
type Catalog struct {
	backend    monitoring.Backend
	namespace  string
	metricName string
	filter     monitoring.DimensionFilter
	statistic  string
	unit       string
	logger     *zap.Logger
}

// New creates a catalog over backend.
func New(backend monitoring.Backend, namespace, metricName string, filter monitoring.DimensionFilter,
	statistic, unit string, logger *zap.Logger) *Catalog {
	return &Catalog{
		backend:    backend,
		namespace:  namespace,
		metricName: metricName,
		filter:     filter,
		statistic:  statistic,
		unit:       unit,
		logger:     logger.Named("catalog"),
	}
}

// Metrics returns every metric visible to the backend whose dimensions satisfy the filter.
// The whole listing is gathered before filtering; a failure on any page fails the call.
func (c *Catalog) Metrics(ctx context.Context) ([]monitoring.Metric, error) {
	all, err := monitoring.CollectPages(ctx, func(ctx context.Context, token string) ([]monitoring.Metric, string, error) {
		page, err := c.backend.ListMetrics(ctx, c.namespace, c.metricName, token)
		if err != nil {
			return nil, "", err
		}
		return page.Metrics, page.NextToken, nil
	})
	if err != nil {
		return nil, backendError("ListMetrics", err)
	}

	seen := make(map[string]struct{}, len(all))
	matched := make([]monitoring.Metric, 0, len(all))
	for _, m := range all {
		key := m.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if !c.filter.Matches(m.Dimensions) {
			continue
		}
		c.logger.Info("Found metric",
			zap.String("namespace", m.Namespace),
			zap.String("metric", m.MetricName),
			zap.Any("dimensions", m.Dimensions),
		)
		matched = append(matched, m)
	}

	c.logger.Debug("Metric listing complete",
		zap.Int("listed", len(all)),
		zap.Int("matched", len(matched)),
		zap.String("filter", c.filter.String()),
	)
	return matched, nil
}

// Series returns the metric's statistic values over w in ascending time order. An empty
// series is a valid result.
func (c *Catalog) Series(ctx context.Context, metric monitoring.Metric, w window.Window) ([]float64, error) {
	query := monitoring.MetricDataQuery{
		Metric:    metric,
		Period:    w.Period,
		Statistic: c.statistic,
		Unit:      c.unit,
		Start:     w.Start,
		End:       w.End,
	}

	values, err := monitoring.CollectPages(ctx, func(ctx context.Context, token string) ([]float64, string, error) {
		page, err := c.backend.GetMetricData(ctx, query, token)
		if err != nil {
			return nil, "", err
		}
		return page.Values, page.NextToken, nil
	})
	if err != nil {
		return nil, backendError("GetMetricData", err)
	}

	c.logger.Debug("Fetched series",
		zap.String("metric", metric.Key()),
		zap.Int("samples", len(values)),
	)
	return values, nil
}

func backendError(operation string, err error) error {
	if apperrors.IsBackendError(err) {
		return err
	}
	return apperrors.NewBackendError(operation, err)
}
