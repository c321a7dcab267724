package monitoring

import "regexp"

var standardStatistics = map[string]struct{}{
	"SampleCount": {},
	"Average":     {},
	"Sum":         {},
	"Minimum":     {},
	"Maximum":     {},
}

// Percentiles (p99, p99.9), trimmed and windowed stats (tm90, wm99) and their range forms
// (TM(10%:90%), PR(:300)), plus IQM.
var extendedStatistic = regexp.MustCompile(
	`^(?:(?:p|tm|wm|tc|ts)\d{1,2}(?:\.\d+)?|(?:TM|WM|TC|TS|PR)\([^()]*:[^()]*\)|IQM)$`)

// IsStandardStatistic reports whether stat is one of the five basic statistics.
func IsStandardStatistic(stat string) bool {
	_, ok := standardStatistics[stat]
	return ok
}

// IsExtendedStatistic reports whether stat is a percentile or other extended statistic.
func IsExtendedStatistic(stat string) bool {
	return extendedStatistic.MatchString(stat)
}

// ValidStatistic reports whether stat can be used both to query data and to define an alarm.
func ValidStatistic(stat string) bool {
	return IsStandardStatistic(stat) || IsExtendedStatistic(stat)
}
