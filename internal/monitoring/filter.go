package monitoring

import (
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/tareqmamari/cloudwatch-stddev-alarms/internal/errors"
)

// DimensionFilter maps a dimension name to the pattern its value must contain.
type DimensionFilter map[string]*regexp.Regexp

// ParseDimensionFilter parses "name,regex;name,regex". Only the first comma of each pair
// separates name from pattern, so patterns may contain commas.
func ParseDimensionFilter(raw string) (DimensionFilter, error) {
	filter := DimensionFilter{}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, ",", 2)
		name := strings.TrimSpace(parts[0])
		if len(parts) != 2 || name == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, apperrors.NewConfigurationError(
				"METRIC_DIMENSIONS entry %q must be of the form name,regex", pair)
		}
		if _, dup := filter[name]; dup {
			return nil, apperrors.NewConfigurationError(
				"METRIC_DIMENSIONS names dimension %q more than once", name)
		}

		re, err := regexp.Compile(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, apperrors.NewConfigurationError(
				"METRIC_DIMENSIONS pattern for %q is not a valid regex", name).Wrap(err)
		}
		filter[name] = re
	}
	return filter, nil
}

// Matches reports whether dims satisfies the filter. An empty filter matches everything;
// otherwise the dimension-name set must equal the filter key set and every value must
// contain a match of its pattern.
func (f DimensionFilter) Matches(dims []Dimension) bool {
	if len(f) == 0 {
		return true
	}
	if len(dims) != len(f) {
		return false
	}

	seen := make(map[string]struct{}, len(dims))
	for _, d := range dims {
		re, ok := f[d.Name]
		if !ok {
			return false
		}
		if _, dup := seen[d.Name]; dup {
			return false
		}
		seen[d.Name] = struct{}{}

		if !re.MatchString(d.Value) {
			return false
		}
	}
	return true
}

// String renders the filter back in its configuration syntax, names sorted.
func (f DimensionFilter) String() string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+","+f[name].String())
	}
	return strings.Join(pairs, ";")
}
