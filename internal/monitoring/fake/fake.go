// Package fake provides an in-memory monitoring backend for tests.
package fake

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
)

// Operation names recorded in Calls and accepted by FailOn.
const (
	OpListMetrics    = "ListMetrics"
	OpGetMetricData  = "GetMetricData"
	OpPutMetricAlarm = "PutMetricAlarm"
	OpDeleteAlarms   = "DeleteAlarms"
)

// Call is one recorded backend invocation.
type Call struct {
	Op    string
	Alarm monitoring.AlarmSpec
	Names []string
	Token string
}

// Backend serves metrics and series from memory and keeps the alarm set in a map.
type Backend struct {
	mu sync.Mutex

	metrics        []monitoring.Metric
	series         map[string][]float64
	alarms         map[string]monitoring.AlarmSpec
	calls          []Call
	failures       map[string]error
	failAfter      map[string]int
	metricPageSize int
	samplePageSize int
}

// New creates an empty backend. Page sizes of 0 mean "everything in one page".
func New() *Backend {
	return &Backend{
		series:    map[string][]float64{},
		alarms:    map[string]monitoring.AlarmSpec{},
		failures:  map[string]error{},
		failAfter: map[string]int{},
	}
}

// WithMetricPageSize splits metric listings into pages of n.
func (b *Backend) WithMetricPageSize(n int) *Backend {
	b.metricPageSize = n
	return b
}

// WithSamplePageSize splits sample series into pages of n.
func (b *Backend) WithSamplePageSize(n int) *Backend {
	b.samplePageSize = n
	return b
}

// AddMetric registers a metric with its series.
func (b *Backend) AddMetric(m monitoring.Metric, values ...float64) *Backend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = append(b.metrics, m)
	b.series[m.Key()] = values
	return b
}

// SeedAlarm stores an alarm as if a previous run had put it.
func (b *Backend) SeedAlarm(alarm monitoring.AlarmSpec) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alarms[alarm.Name] = alarm
}

// FailOn makes op fail with err after `after` successful calls.
func (b *Backend) FailOn(op string, after int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = err
	b.failAfter[op] = after
}

// ClearFailure removes a failure injected with FailOn.
func (b *Backend) ClearFailure(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, op)
	delete(b.failAfter, op)
}

// Calls returns a copy of every recorded invocation, in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// WriteCalls returns only the put/delete invocations.
func (b *Backend) WriteCalls() []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == OpPutMetricAlarm || c.Op == OpDeleteAlarms {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded invocations but keeps alarms and data.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// Alarms returns the current alarm set.
func (b *Backend) Alarms() map[string]monitoring.AlarmSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]monitoring.AlarmSpec, len(b.alarms))
	for k, v := range b.alarms {
		out[k] = v
	}
	return out
}

// AlarmNames returns the sorted names of the current alarm set.
func (b *Backend) AlarmNames() []string {
	alarms := b.Alarms()
	names := make([]string, 0, len(alarms))
	for name := range alarms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListMetrics implements monitoring.Backend.
func (b *Backend) ListMetrics(_ context.Context, namespace, metricName, nextToken string) (*monitoring.MetricPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Call{Op: OpListMetrics, Token: nextToken}); err != nil {
		return nil, err
	}

	var visible []monitoring.Metric
	for _, m := range b.metrics {
		if m.Namespace == namespace && m.MetricName == metricName {
			visible = append(visible, m)
		}
	}

	page, next := paginate(visible, nextToken, b.metricPageSize)
	return &monitoring.MetricPage{Metrics: page, NextToken: next}, nil
}

// GetMetricData implements monitoring.Backend.
func (b *Backend) GetMetricData(_ context.Context, query monitoring.MetricDataQuery, nextToken string) (*monitoring.SamplePage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Call{Op: OpGetMetricData, Token: nextToken}); err != nil {
		return nil, err
	}

	page, next := paginate(b.series[query.Metric.Key()], nextToken, b.samplePageSize)
	return &monitoring.SamplePage{Values: page, NextToken: next}, nil
}

// PutMetricAlarm implements monitoring.Backend.
func (b *Backend) PutMetricAlarm(_ context.Context, alarm monitoring.AlarmSpec) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Call{Op: OpPutMetricAlarm, Alarm: alarm}); err != nil {
		return err
	}
	b.alarms[alarm.Name] = alarm
	return nil
}

// DeleteAlarms implements monitoring.Backend.
func (b *Backend) DeleteAlarms(_ context.Context, names []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.record(Call{Op: OpDeleteAlarms, Names: append([]string(nil), names...)}); err != nil {
		return err
	}
	for _, name := range names {
		delete(b.alarms, name)
	}
	return nil
}

// record must be called with mu held.
func (b *Backend) record(c Call) error {
	b.calls = append(b.calls, c)
	err, ok := b.failures[c.Op]
	if !ok {
		return nil
	}
	if b.failAfter[c.Op] > 0 {
		b.failAfter[c.Op]--
		return nil
	}
	return err
}

func paginate[T any](items []T, token string, size int) ([]T, string) {
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	if start > len(items) {
		start = len(items)
	}
	if size <= 0 || start+size >= len(items) {
		return append([]T(nil), items[start:]...), ""
	}
	end := start + size
	return append([]T(nil), items[start:end]...), strconv.Itoa(end)
}
