package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
)

func TestAlarmName(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		bound  monitoring.Bound
		metric monitoring.Metric
		want   string
	}{
		{
			name:  "single dimension",
			base:  "stddev3",
			bound: monitoring.BoundHigh,
			metric: monitoring.Metric{Namespace: "AWS/EC2", MetricName: "CPUUtilization",
				Dimensions: []monitoring.Dimension{{Name: "InstanceId", Value: "i-0abc"}}},
			want: "stddev3-AlarmHigh-AWS/EC2/CPUUtilization/i-0abc",
		},
		{
			name:  "values ordered by dimension name",
			base:  "orders",
			bound: monitoring.BoundLow,
			metric: monitoring.Metric{Namespace: "Shop", MetricName: "Orders",
				Dimensions: []monitoring.Dimension{{Name: "Region", Value: "eu"}, {Name: "Channel", Value: "web"}}},
			want: "orders-AlarmLow-Shop/Orders/web/eu",
		},
		{
			name:   "no dimensions keeps trailing slash",
			base:   "stddev2",
			bound:  monitoring.BoundHigh,
			metric: monitoring.Metric{Namespace: "Shop", MetricName: "Orders"},
			want:   "stddev2-AlarmHigh-Shop/Orders/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AlarmName(tt.base, tt.bound, tt.metric))
		})
	}
}

func TestAlarmNameIgnoresDimensionOrder(t *testing.T) {
	a := monitoring.Metric{Namespace: "N", MetricName: "M", Dimensions: []monitoring.Dimension{
		{Name: "A", Value: "1"}, {Name: "B", Value: "2"}, {Name: "C", Value: "3"}}}
	b := monitoring.Metric{Namespace: "N", MetricName: "M", Dimensions: []monitoring.Dimension{
		{Name: "C", Value: "3"}, {Name: "A", Value: "1"}, {Name: "B", Value: "2"}}}

	for _, bound := range []monitoring.Bound{monitoring.BoundHigh, monitoring.BoundLow} {
		assert.Equal(t, AlarmName("x", bound, a), AlarmName("x", bound, b))
	}
	assert.NotEqual(t, AlarmName("x", monitoring.BoundHigh, a), AlarmName("x", monitoring.BoundLow, a))
	assert.Equal(t, Description(monitoring.BoundHigh, 3, a), Description(monitoring.BoundHigh, 3, b))
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "stddev3", BaseName("", 3))
	assert.Equal(t, "stddev5", BaseName("   ", 5))
	assert.Equal(t, "queue-depth", BaseName("queue-depth", 3))
}

func TestDescription(t *testing.T) {
	m := monitoring.Metric{Namespace: "AWS/SQS", MetricName: "NumberOfMessagesSent",
		Dimensions: []monitoring.Dimension{{Name: "QueueName", Value: "orders"}}}

	assert.Equal(t,
		`AlarmLow 3 Standard Deviations metric for AWS/SQS/NumberOfMessagesSent, dimensions [{"Name":"QueueName","Value":"orders"}]`,
		Description(monitoring.BoundLow, 3, m))
}
