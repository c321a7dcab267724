package reconciler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
)

// BaseName returns the configured custom base name, or "stddev{k}" when none is set.
func BaseName(custom string, k int) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	return fmt.Sprintf("stddev%d", k)
}

// AlarmName returns the canonical alarm name for one bound of a metric:
//
//	{base}-{bound}-{namespace}/{metric}/{dimension values ordered by dimension name}
//
// A metric without dimensions keeps the trailing slash so existing alarms keep their names.
func AlarmName(base string, bound monitoring.Bound, m monitoring.Metric) string {
	dims := m.SortedDimensions()
	values := make([]string, len(dims))
	for i, d := range dims {
		values[i] = d.Value
	}
	return fmt.Sprintf("%s-%s-%s/%s/%s", base, bound, m.Namespace, m.MetricName, strings.Join(values, "/"))
}

// Description returns the human-readable alarm description.
func Description(bound monitoring.Bound, k int, m monitoring.Metric) string {
	dims, err := json.Marshal(m.SortedDimensions())
	if err != nil {
		dims = []byte("[]")
	}
	return fmt.Sprintf("%s %d Standard Deviations metric for %s/%s, dimensions %s",
		bound, k, m.Namespace, m.MetricName, dims)
}
