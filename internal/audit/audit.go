// Package audit records every alarm write a run performs.
// Entries are written to a dedicated zap logger and kept in a bounded in-memory buffer.
package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/security"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/tracing"
)

// Operations recorded in audit entries
const (
	OperationPut    = "put"
	OperationDelete = "delete"
)

// Entry represents a single audit log entry
type Entry struct {
	Timestamp  time.Time     `json:"timestamp"`
	TraceID    string        `json:"trace_id"`
	SpanID     string        `json:"span_id,omitempty"`
	Operation  string        `json:"operation"`
	Alarm      string        `json:"alarm"`
	Bound      string        `json:"bound"`
	Metric     string        `json:"metric,omitempty"`
	Threshold  *float64      `json:"threshold,omitempty"`
	Comparison string        `json:"comparison,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"duration_ms"`
	ErrorCode  string        `json:"error_code,omitempty"`
	ErrorMsg   string        `json:"error_message,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	enabled bool
	dryRun  bool
	logger  *zap.Logger

	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates a new audit logger
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, 1000),
		maxEntries: 1000,
	}
}

// WithDryRun marks every subsequent entry as not sent to the backend
func (l *Logger) WithDryRun(dryRun bool) *Logger {
	l.dryRun = dryRun
	return l
}

// Log records an audit entry
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if !l.enabled {
		return
	}

	traceInfo := tracing.FromContext(ctx)
	if traceInfo.TraceID != "" {
		entry.TraceID = traceInfo.TraceID
	}
	if traceInfo.SpanID != "" {
		entry.SpanID = traceInfo.SpanID
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.DryRun = l.dryRun

	fields := []zap.Field{
		zap.Time("timestamp", entry.Timestamp),
		zap.String("trace_id", entry.TraceID),
		zap.String("operation", entry.Operation),
		zap.String("alarm", entry.Alarm),
		zap.String("bound", entry.Bound),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}

	if entry.SpanID != "" {
		fields = append(fields, zap.String("span_id", entry.SpanID))
	}
	if entry.Metric != "" {
		fields = append(fields, zap.String("metric", entry.Metric))
	}
	if entry.Threshold != nil {
		fields = append(fields, zap.Float64("threshold", *entry.Threshold))
	}
	if entry.Comparison != "" {
		fields = append(fields, zap.String("comparison", entry.Comparison))
	}
	if entry.DryRun {
		fields = append(fields, zap.Bool("dry_run", true))
	}
	if entry.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", entry.ErrorCode))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// LogAlarmPut records a put of one alarm
func (l *Logger) LogAlarmPut(ctx context.Context, alarm, bound, metric string, threshold float64, comparison string, duration time.Duration, err error) {
	entry := Entry{
		Operation:  OperationPut,
		Alarm:      alarm,
		Bound:      bound,
		Metric:     metric,
		Threshold:  &threshold,
		Comparison: comparison,
		Success:    err == nil,
		Duration:   duration,
	}
	setError(&entry, err)
	l.Log(ctx, entry)
}

// LogAlarmDelete records the deletion of one alarm
func (l *Logger) LogAlarmDelete(ctx context.Context, alarm, bound, metric string, duration time.Duration, err error) {
	entry := Entry{
		Operation: OperationDelete,
		Alarm:     alarm,
		Bound:     bound,
		Metric:    metric,
		Success:   err == nil,
		Duration:  duration,
	}
	setError(&entry, err)
	l.Log(ctx, entry)
}

func setError(entry *Entry, err error) {
	if err == nil {
		return
	}
	entry.ErrorMsg = security.SanitizeError(err)
	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		entry.ErrorCode = string(se.Code)
	}
}

// GetRecentEntries returns the most recent audit entries, newest first
func (l *Logger) GetRecentEntries(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	start := len(l.entries) - limit
	result := make([]Entry, limit)
	copy(result, l.entries[start:])

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result
}

// GetEntriesByTraceID returns all entries for a specific run, oldest first
func (l *Logger) GetEntriesByTraceID(traceID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for _, entry := range l.entries {
		if entry.TraceID == traceID {
			result = append(result, entry)
		}
	}

	return result
}

// GetStats returns statistics about audit entries
func (l *Logger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries:    len(l.entries),
		OperationCounts: make(map[string]int),
		BoundCounts:     make(map[string]int),
		ErrorCounts:     make(map[string]int),
	}

	var successCount int
	var totalDuration time.Duration

	for _, entry := range l.entries {
		stats.OperationCounts[entry.Operation]++
		stats.BoundCounts[entry.Bound]++

		if entry.Success {
			successCount++
		} else if entry.ErrorCode != "" {
			stats.ErrorCounts[entry.ErrorCode]++
		}

		totalDuration += entry.Duration
	}

	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}

	return stats
}

// Stats contains aggregated audit statistics
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration"`
	OperationCounts map[string]int `json:"operation_counts"`
	BoundCounts     map[string]int `json:"bound_counts"`
	ErrorCounts     map[string]int `json:"error_counts"`
}

// IsEnabled returns whether audit logging is enabled
func (l *Logger) IsEnabled() bool {
	return l.enabled
}

// LogStats logs aggregated statistics over the buffered entries
func (l *Logger) LogStats() {
	if !l.enabled {
		return
	}
	stats := l.GetStats()
	l.logger.Info("Audit statistics",
		zap.Int("total_entries", stats.TotalEntries),
		zap.Float64("success_rate_pct", stats.SuccessRate),
		zap.Duration("average_duration", stats.AverageDuration),
		zap.Any("operation_counts", stats.OperationCounts),
		zap.Any("error_counts", stats.ErrorCounts),
	)
}
