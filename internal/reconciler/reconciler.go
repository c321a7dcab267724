// Package reconciler converges the alarms of one metric onto its computed control limits.
package reconciler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/audit"
	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/metrics"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/stats"
)

// Options are the alarm settings shared by every alarm a run maintains.
type Options struct {
	BaseName                string
	Multiplier              int
	Mode                    monitoring.BoundsMode
	Statistic               string
	Unit                    string
	EvaluationPeriods       int
	DatapointsToAlarm       int
	TreatMissingData        monitoring.TreatMissingData
	OKActions               []string
	AlarmActions            []string
	InsufficientDataActions []string
}

// Outcome lists the alarm names written for one metric.
type Outcome struct {
	Put     []string
	Deleted []string
}

// Reconciler issues put and delete calls for one metric at a time.
type Reconciler struct {
	backend monitoring.Backend
	opts    Options
	base    string
	audit   *audit.Logger
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a reconciler. auditLogger and m may be nil.
func New(backend monitoring.Backend, opts Options, auditLogger *audit.Logger, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		backend: backend,
		opts:    opts,
		base:    BaseName(opts.BaseName, opts.Multiplier),
		audit:   auditLogger,
		metrics: m,
		logger:  logger.Named("reconciler"),
	}
}

// Reconcile puts and deletes the metric's alarms according to the bounds mode. Puts are
// issued first, then all deletes in a single call. The first failing write aborts.
//
// Writes are not atomic: when a later write fails, earlier ones stay applied and the
// returned Outcome lists them. Every write is an idempotent upsert or delete, so the
// next run over the same metric converges both alarms.
func (r *Reconciler) Reconcile(ctx context.Context, metric monitoring.Metric, period int, result stats.Result) (*Outcome, error) {
	actions, err := Decide(r.opts.Mode, result)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	var deletes []monitoring.Bound

	for _, action := range actions {
		if action.Kind == ActionDelete {
			deletes = append(deletes, action.Bound)
			continue
		}

		spec := r.alarmSpec(metric, period, action)
		if err := r.put(ctx, spec, action.Bound); err != nil {
			return outcome, err
		}
		outcome.Put = append(outcome.Put, spec.Name)
	}

	if len(deletes) > 0 {
		names, err := r.delete(ctx, metric, deletes)
		if err != nil {
			return outcome, err
		}
		outcome.Deleted = names
	}

	return outcome, nil
}

func (r *Reconciler) alarmSpec(metric monitoring.Metric, period int, action Action) monitoring.AlarmSpec {
	return monitoring.AlarmSpec{
		Name:                    AlarmName(r.base, action.Bound, metric),
		Description:             Description(action.Bound, r.opts.Multiplier, metric),
		Metric:                  metric,
		Period:                  period,
		Statistic:               r.opts.Statistic,
		Unit:                    r.opts.Unit,
		ComparisonOperator:      action.Comparison,
		Threshold:               action.Threshold,
		EvaluationPeriods:       r.opts.EvaluationPeriods,
		DatapointsToAlarm:       r.opts.DatapointsToAlarm,
		TreatMissingData:        r.opts.TreatMissingData,
		OKActions:               r.opts.OKActions,
		AlarmActions:            r.opts.AlarmActions,
		InsufficientDataActions: r.opts.InsufficientDataActions,
	}
}

func (r *Reconciler) put(ctx context.Context, spec monitoring.AlarmSpec, bound monitoring.Bound) error {
	r.logger.Info("Putting alarm",
		zap.String("alarm", spec.Name),
		zap.Float64("threshold", spec.Threshold),
		zap.String("comparison", string(spec.ComparisonOperator)),
	)

	start := time.Now()
	err := r.backend.PutMetricAlarm(ctx, spec)
	if err != nil && !apperrors.IsBackendError(err) {
		err = apperrors.NewBackendError("PutMetricAlarm", err)
	}

	if r.audit != nil {
		r.audit.LogAlarmPut(ctx, spec.Name, string(bound), spec.Metric.Key(), spec.Threshold,
			string(spec.ComparisonOperator), time.Since(start), err)
	}
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordAlarmPut(string(bound))
	}
	return nil
}

func (r *Reconciler) delete(ctx context.Context, metric monitoring.Metric, bounds []monitoring.Bound) ([]string, error) {
	names := make([]string, len(bounds))
	for i, b := range bounds {
		names[i] = AlarmName(r.base, b, metric)
		r.logger.Info("Deleting alarm", zap.String("alarm", names[i]))
	}

	start := time.Now()
	err := r.backend.DeleteAlarms(ctx, names)
	if err != nil && !apperrors.IsBackendError(err) {
		err = apperrors.NewBackendError("DeleteAlarms", err)
	}
	elapsed := time.Since(start)

	for i, b := range bounds {
		if r.audit != nil {
			r.audit.LogAlarmDelete(ctx, names[i], string(b), metric.Key(), elapsed, err)
		}
		if err == nil && r.metrics != nil {
			r.metrics.RecordAlarmDeleted(string(b))
		}
	}
	if err != nil {
		return nil, err
	}
	return names, nil
}
