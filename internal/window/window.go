// Package window plans the historical sampling window and aggregation period for a run.
package window

import (
	"time"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
)

// Retention tiers of the monitoring backend. Data older than a tier's limit is only kept at
// the next tier's granularity.
const (
	MinuteTierDays = 15
	FiveMinuteDays = 63
	HourTierDays   = 455

	minutePeriod     = 60
	fiveMinutePeriod = 300
	hourPeriod       = 3600
)

// Window is the sampled interval and the aggregation period applied to it.
type Window struct {
	Start  time.Time
	End    time.Time
	Period int
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Plan derives the sampling window ending at now. The end is aligned down to the granularity
// the backend retains for a lookback of sampleDays, and the period is raised to at least that
// granularity.
func Plan(now time.Time, sampleDays, configuredPeriod int) (Window, error) {
	if sampleDays < 1 {
		return Window{}, apperrors.NewConfigurationError(
			"METRIC_SAMPLE_DAYS must be positive, got %d", sampleDays)
	}
	if configuredPeriod < 1 {
		return Window{}, apperrors.NewConfigurationError(
			"ALARM_PERIOD must be positive, got %d", configuredPeriod)
	}

	end := now.UTC().Truncate(time.Minute)
	var period int

	switch {
	case sampleDays <= MinuteTierDays:
		period = max(configuredPeriod, minutePeriod)
	case sampleDays <= FiveMinuteDays:
		period = max(configuredPeriod, fiveMinutePeriod)
		end = end.Add(-time.Duration(end.Minute()%5) * time.Minute)
	case sampleDays <= HourTierDays:
		period = max(configuredPeriod, hourPeriod)
		end = end.Add(-time.Duration(end.Minute()) * time.Minute)
	default:
		return Window{}, apperrors.NewConfigurationError(
			"METRIC_SAMPLE_DAYS %d exceeds the backend retention limit of %d days", sampleDays, HourTierDays).
			WithDetails(map[string]interface{}{"sample_days": sampleDays, "max": HourTierDays})
	}

	return Window{
		Start:  end.AddDate(0, 0, -sampleDays),
		End:    end,
		Period: period,
	}, nil
}
