// Package monitoring defines the domain model shared by the reconciler components and the
// capability the monitoring backend must provide.
package monitoring

import (
	"sort"
	"strings"
	"time"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
)

// Dimension is a single name/value pair attached to a metric.
type Dimension struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Metric identifies one backend time series. Dimensions are an unordered set.
type Metric struct {
	Namespace  string      `json:"Namespace"`
	MetricName string      `json:"MetricName"`
	Dimensions []Dimension `json:"Dimensions"`
}

// SortedDimensions returns a copy of the dimensions ordered by name, then value.
func (m Metric) SortedDimensions() []Dimension {
	dims := make([]Dimension, len(m.Dimensions))
	copy(dims, m.Dimensions)
	sort.Slice(dims, func(i, j int) bool {
		if dims[i].Name != dims[j].Name {
			return dims[i].Name < dims[j].Name
		}
		return dims[i].Value < dims[j].Value
	})
	return dims
}

// Key returns a canonical identity string. Two metrics have the same key iff they have
// the same namespace, name and dimension set.
func (m Metric) Key() string {
	var b strings.Builder
	b.WriteString(m.Namespace)
	b.WriteByte('|')
	b.WriteString(m.MetricName)
	for _, d := range m.SortedDimensions() {
		b.WriteByte('|')
		b.WriteString(d.Name)
		b.WriteByte('=')
		b.WriteString(d.Value)
	}
	return b.String()
}

// Bound is the kind of control limit an alarm watches.
type Bound string

const (
	BoundHigh Bound = "AlarmHigh"
	BoundLow  Bound = "AlarmLow"
)

// BoundsMode selects which control-limit alarms are maintained.
type BoundsMode string

const (
	BoundsBoth BoundsMode = "Both"
	BoundsHigh BoundsMode = "AlarmHigh"
	BoundsLow  BoundsMode = "AlarmLow"
)

// ParseBoundsMode validates a configured bounds mode.
func ParseBoundsMode(s string) (BoundsMode, error) {
	switch mode := BoundsMode(s); mode {
	case BoundsBoth, BoundsHigh, BoundsLow:
		return mode, nil
	default:
		return "", apperrors.NewConfigurationError(
			"ALARM_BOUNDS %s unrecognized, must be one of AlarmHigh, AlarmLow, or Both", s)
	}
}

// ComparisonOperator is the alarm comparison applied to the threshold.
type ComparisonOperator string

const (
	GreaterThanThreshold       ComparisonOperator = "GreaterThanThreshold"
	LessThanThreshold          ComparisonOperator = "LessThanThreshold"
	LessThanOrEqualToThreshold ComparisonOperator = "LessThanOrEqualToThreshold"
)

// TreatMissingData is the backend policy for evaluation periods without datapoints.
type TreatMissingData string

const (
	TreatMissingBreaching    TreatMissingData = "breaching"
	TreatMissingNotBreaching TreatMissingData = "notBreaching"
	TreatMissingIgnore       TreatMissingData = "ignore"
	TreatMissingMissing      TreatMissingData = "missing"
)

// ParseTreatMissingData validates a configured treat-missing-data policy.
func ParseTreatMissingData(s string) (TreatMissingData, error) {
	switch policy := TreatMissingData(s); policy {
	case TreatMissingBreaching, TreatMissingNotBreaching, TreatMissingIgnore, TreatMissingMissing:
		return policy, nil
	default:
		return "", apperrors.NewConfigurationError(
			"TREAT_MISSING_DATA %s unrecognized, must be one of breaching, notBreaching, ignore, or missing", s)
	}
}

// AlarmSpec is the desired state of one backend alarm. It is computed fresh on every run
// and pushed with create-or-replace semantics keyed by Name.
type AlarmSpec struct {
	Name                    string
	Description             string
	Metric                  Metric
	Period                  int
	Statistic               string
	Unit                    string
	ComparisonOperator      ComparisonOperator
	Threshold               float64
	EvaluationPeriods       int
	DatapointsToAlarm       int
	TreatMissingData        TreatMissingData
	OKActions               []string
	AlarmActions            []string
	InsufficientDataActions []string
}

// MetricDataQuery describes one statistic series request.
type MetricDataQuery struct {
	Metric    Metric
	Period    int
	Statistic string
	Unit      string
	Start     time.Time
	End       time.Time
}
