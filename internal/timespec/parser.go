package timespec

import (
	"fmt"
	"strings"
	"time"
)

// Parse parses a slot start specification into a Unix timestamp (milliseconds).
// Supports three formats:
//   - RFC3339 timestamps: "2026-03-02T09:00:00Z"
//   - Clock time on the base day: "09:00", "14:30"
//   - Go duration prefixed with "+", relative to base: "+2h", "+1h30m"
//
// base supplies the day (and location) for clock times and the origin for offsets.
func Parse(spec string, base time.Time) (int64, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if strings.HasPrefix(spec, "+") {
		d, err := time.ParseDuration(spec[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid offset %q: %w", spec, err)
		}
		if d < 0 {
			return 0, fmt.Errorf("invalid offset %q: must not be negative", spec)
		}
		return base.Add(d).UnixMilli(), nil
	}

	if clock, err := time.Parse("15:04", spec); err == nil {
		y, m, d := base.Date()
		t := time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, base.Location())
		return t.UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use RFC3339 like '2026-03-02T09:00:00Z', a clock time like '09:00', or an offset like '+2h')", spec)
}

// ParseRange parses --from and --until flags into a range of slot starts.
// Zero values indicate "no bound" for that end of the range.
func ParseRange(from, until string, base time.Time) (int64, int64, error) {
	var fromMs, untilMs int64
	var err error

	if from != "" {
		fromMs, err = Parse(from, base)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --from: %w", err)
		}
	}

	if until != "" {
		untilMs, err = Parse(until, base)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if fromMs > 0 && untilMs > 0 && fromMs >= untilMs {
		return 0, 0, fmt.Errorf("--from must be before --until")
	}

	return fromMs, untilMs, nil
}
