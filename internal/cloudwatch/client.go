// Package cloudwatch implements the monitoring backend over the AWS CloudWatch API.
package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/config"
	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/metrics"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/tracing"
)

// API is the subset of the CloudWatch SDK client the backend uses
type API interface {
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	DeleteAlarms(ctx context.Context, params *cloudwatch.DeleteAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error)
}

// Client is a monitoring.Backend backed by CloudWatch
type Client struct {
	api         API
	logger      *zap.Logger
	rateLimiter *rate.Limiter
	metrics     *metrics.Metrics

	queryCounter atomic.Uint64
	// GetMetricData continuation tokens are only valid for the query that produced them,
	// so the query id is carried over to the next page.
	queryMu  sync.Mutex
	tokenIDs map[string]string
}

var _ monitoring.Backend = (*Client)(nil)

// New creates a client using the default AWS credential chain
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryer(func() aws.Retryer {
			return retry.AddWithMaxAttempts(retry.NewStandard(), cfg.MaxRetries+1)
		}),
	}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	api := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.CloudWatchEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CloudWatchEndpoint)
		}
	})

	var rateLimiter *rate.Limiter
	if cfg.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	logger.Debug("CloudWatch client configured",
		zap.String("region", awsCfg.Region),
		zap.String("endpoint", cfg.CloudWatchEndpoint),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	return NewWithAPI(api, rateLimiter, logger, m), nil
}

// NewWithAPI creates a client over an existing API implementation. rateLimiter and m may be nil.
func NewWithAPI(api API, rateLimiter *rate.Limiter, logger *zap.Logger, m *metrics.Metrics) *Client {
	return &Client{
		api:         api,
		logger:      logger.Named("cloudwatch"),
		rateLimiter: rateLimiter,
		metrics:     m,
		tokenIDs:    map[string]string{},
	}
}

// ListMetrics implements monitoring.Backend
func (c *Client) ListMetrics(ctx context.Context, namespace, metricName, nextToken string) (*monitoring.MetricPage, error) {
	input := &cloudwatch.ListMetricsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metricName),
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	var out *cloudwatch.ListMetricsOutput
	err := c.do(ctx, "ListMetrics", func(ctx context.Context) (err error) {
		out, err = c.api.ListMetrics(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &monitoring.MetricPage{
		Metrics:   make([]monitoring.Metric, 0, len(out.Metrics)),
		NextToken: aws.ToString(out.NextToken),
	}
	for _, m := range out.Metrics {
		page.Metrics = append(page.Metrics, fromSDKMetric(m))
	}
	return page, nil
}

// GetMetricData implements monitoring.Backend. Values are returned in ascending time order.
func (c *Client) GetMetricData(ctx context.Context, query monitoring.MetricDataQuery, nextToken string) (*monitoring.SamplePage, error) {
	id := c.queryID(nextToken)

	stat := &types.MetricStat{
		Metric: toSDKMetric(query.Metric),
		Period: aws.Int32(int32(query.Period)),
		Stat:   aws.String(query.Statistic),
	}
	if query.Unit != "" {
		stat.Unit = types.StandardUnit(query.Unit)
	}

	input := &cloudwatch.GetMetricDataInput{
		MetricDataQueries: []types.MetricDataQuery{{
			Id:         aws.String(id),
			MetricStat: stat,
			ReturnData: aws.Bool(true),
		}},
		StartTime: aws.Time(query.Start),
		EndTime:   aws.Time(query.End),
		ScanBy:    types.ScanByTimestampAscending,
	}
	if nextToken != "" {
		input.NextToken = aws.String(nextToken)
	}

	var out *cloudwatch.GetMetricDataOutput
	err := c.do(ctx, "GetMetricData", func(ctx context.Context) (err error) {
		out, err = c.api.GetMetricData(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &monitoring.SamplePage{NextToken: aws.ToString(out.NextToken)}
	for _, result := range out.MetricDataResults {
		if aws.ToString(result.Id) != id {
			continue
		}
		if result.StatusCode == types.StatusCodeForbidden || result.StatusCode == types.StatusCodeInternalError {
			return nil, apperrors.NewBackendError("GetMetricData",
				fmt.Errorf("query %s returned status %s", id, result.StatusCode))
		}
		page.Values = append(page.Values, result.Values...)
	}

	if page.NextToken != "" {
		c.queryMu.Lock()
		c.tokenIDs[page.NextToken] = id
		c.queryMu.Unlock()
	}
	return page, nil
}

// queryID returns a fresh id for a first page and the originating query's id for later pages.
func (c *Client) queryID(nextToken string) string {
	if nextToken != "" {
		c.queryMu.Lock()
		id, ok := c.tokenIDs[nextToken]
		delete(c.tokenIDs, nextToken)
		c.queryMu.Unlock()
		if ok {
			return id
		}
	}
	return fmt.Sprintf("q%d", c.queryCounter.Add(1))
}

// PutMetricAlarm implements monitoring.Backend
func (c *Client) PutMetricAlarm(ctx context.Context, alarm monitoring.AlarmSpec) error {
	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:               aws.String(alarm.Name),
		AlarmDescription:        aws.String(alarm.Description),
		OKActions:               alarm.OKActions,
		AlarmActions:            alarm.AlarmActions,
		InsufficientDataActions: alarm.InsufficientDataActions,
		Namespace:               aws.String(alarm.Metric.Namespace),
		MetricName:              aws.String(alarm.Metric.MetricName),
		Dimensions:              toSDKDimensions(alarm.Metric.Dimensions),
		Period:                  aws.Int32(int32(alarm.Period)),
		EvaluationPeriods:       aws.Int32(int32(alarm.EvaluationPeriods)),
		DatapointsToAlarm:       aws.Int32(int32(alarm.DatapointsToAlarm)),
		Threshold:               aws.Float64(alarm.Threshold),
		ComparisonOperator:      types.ComparisonOperator(alarm.ComparisonOperator),
	}
	if monitoring.IsStandardStatistic(alarm.Statistic) {
		input.Statistic = types.Statistic(alarm.Statistic)
	} else {
		input.ExtendedStatistic = aws.String(alarm.Statistic)
	}
	if alarm.Unit != "" {
		input.Unit = types.StandardUnit(alarm.Unit)
	}
	if alarm.TreatMissingData != "" {
		input.TreatMissingData = aws.String(string(alarm.TreatMissingData))
	}

	return c.do(ctx, "PutMetricAlarm", func(ctx context.Context) error {
		_, err := c.api.PutMetricAlarm(ctx, input)
		return err
	})
}

// DeleteAlarms implements monitoring.Backend. CloudWatch ignores names that do not exist.
func (c *Client) DeleteAlarms(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return c.do(ctx, "DeleteAlarms", func(ctx context.Context) error {
		_, err := c.api.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: names})
		return err
	})
}

// do applies rate limiting, tracing, logging and metrics around one API call
func (c *Client) do(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait()
		}
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return apperrors.NewBackendError(operation, fmt.Errorf("rate limit wait failed: %w", err))
		}
	}

	ctx, span := tracing.APISpan(ctx, operation)
	defer span.End()

	c.logger.Debug("Calling CloudWatch", zap.String("operation", operation))

	startTime := time.Now()
	err := call(ctx)
	duration := time.Since(startTime)

	if c.metrics != nil {
		c.metrics.RecordRequest(operation, err == nil, duration)
	}

	if err != nil {
		tracing.RecordError(span, err)
		c.logger.Error("CloudWatch request failed",
			zap.Error(err),
			zap.String("operation", operation),
			zap.Duration("duration", duration),
		)
		return apperrors.NewBackendError(operation, err)
	}

	c.logger.Debug("CloudWatch request completed",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
	)
	return nil
}

func fromSDKMetric(m types.Metric) monitoring.Metric {
	out := monitoring.Metric{
		Namespace:  aws.ToString(m.Namespace),
		MetricName: aws.ToString(m.MetricName),
		Dimensions: make([]monitoring.Dimension, 0, len(m.Dimensions)),
	}
	for _, d := range m.Dimensions {
		out.Dimensions = append(out.Dimensions, monitoring.Dimension{
			Name:  aws.ToString(d.Name),
			Value: aws.ToString(d.Value),
		})
	}
	return out
}

func toSDKMetric(m monitoring.Metric) *types.Metric {
	return &types.Metric{
		Namespace:  aws.String(m.Namespace),
		MetricName: aws.String(m.MetricName),
		Dimensions: toSDKDimensions(m.Dimensions),
	}
}

func toSDKDimensions(dims []monitoring.Dimension) []types.Dimension {
	out := make([]types.Dimension, 0, len(dims))
	for _, d := range dims {
		out = append(out, types.Dimension{
			Name:  aws.String(d.Name),
			Value: aws.String(d.Value),
		})
	}
	return out
}
