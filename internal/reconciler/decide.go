package reconciler

import (
	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/stats"
)

// ActionKind is the backend write an Action performs.
type ActionKind string

const (
	ActionPut    ActionKind = "put"
	ActionDelete ActionKind = "delete"
)

// Action is one planned alarm write.
type Action struct {
	Kind       ActionKind
	Bound      monitoring.Bound
	Threshold  float64
	Comparison monitoring.ComparisonOperator
}

// LowThreshold clamps the low limit at zero. A clamped threshold of zero is compared with
// LessThanOrEqualToThreshold so the alarm still fires at the floor.
func LowThreshold(low float64) (float64, monitoring.ComparisonOperator) {
	if low > 0 {
		return low, monitoring.LessThanThreshold
	}
	return 0, monitoring.LessThanOrEqualToThreshold
}

// Decide maps a bounds mode and computed limits to the writes that converge the alarm set.
// A degenerate result yields deletes of both bounds regardless of mode. High actions come
// before low actions.
func Decide(mode monitoring.BoundsMode, result stats.Result) ([]Action, error) {
	if _, err := monitoring.ParseBoundsMode(string(mode)); err != nil {
		return nil, err
	}

	if result.Degenerate() {
		return []Action{
			{Kind: ActionDelete, Bound: monitoring.BoundHigh},
			{Kind: ActionDelete, Bound: monitoring.BoundLow},
		}, nil
	}

	high := Action{Kind: ActionPut, Bound: monitoring.BoundHigh, Threshold: result.High, Comparison: monitoring.GreaterThanThreshold}
	lowThreshold, lowCmp := LowThreshold(result.Low)
	low := Action{Kind: ActionPut, Bound: monitoring.BoundLow, Threshold: lowThreshold, Comparison: lowCmp}

	switch mode {
	case monitoring.BoundsBoth:
		return []Action{high, low}, nil
	case monitoring.BoundsHigh:
		return []Action{high, {Kind: ActionDelete, Bound: monitoring.BoundLow}}, nil
	case monitoring.BoundsLow:
		return []Action{{Kind: ActionDelete, Bound: monitoring.BoundHigh}, low}, nil
	default:
		return nil, apperrors.NewInternalError("unhandled bounds mode " + string(mode))
	}
}
