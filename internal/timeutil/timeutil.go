// Package timeutil provides the pure duration arithmetic used by the agenda
// services and the time monitoring engine: planned-duration parsing,
// elapsed/planned ratio computation, and minute formatting with pluggable
// unit labels.
package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDuration is returned when a planned duration cannot be parsed or
// is not positive.
var ErrInvalidDuration = errors.New("timeutil: invalid duration")

// UnitLabeler supplies localized unit labels for formatted durations. The
// value parameter carries the numeric quantity so implementations can handle
// plural forms.
type UnitLabeler func(unit string, value int) string

// DefaultLabeler renders English unit labels. Deployments plug a localizer
// keyed by room language in its place.
func DefaultLabeler(unit string, value int) string {
	switch unit {
	case "hour":
		if value == 1 {
			return "hour"
		}
		return "hours"
	case "minute":
		if value == 1 {
			return "minute"
		}
		return "minutes"
	}
	return unit
}

// ParsePlannedMinutes parses a planned duration expressed as whole minutes
// ("15"), minute-suffixed ("90m"), hour-suffixed ("2h"), or combined
// ("1h30m"). An empty string yields the supplied default. Values that are
// malformed or not positive return ErrInvalidDuration.
func ParsePlannedMinutes(value string, defaultMinutes int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if defaultMinutes <= 0 {
			return 0, ErrInvalidDuration
		}
		return defaultMinutes, nil
	}

	if minutes, err := strconv.Atoi(trimmed); err == nil {
		if minutes <= 0 {
			return 0, ErrInvalidDuration
		}
		return minutes, nil
	}

	lower := strings.ToLower(trimmed)
	total := 0
	rest := lower
	if idx := strings.Index(rest, "h"); idx >= 0 {
		hours, err := strconv.Atoi(rest[:idx])
		if err != nil || hours < 0 {
			return 0, ErrInvalidDuration
		}
		total += hours * 60
		rest = rest[idx+1:]
	}
	if rest != "" {
		if !strings.HasSuffix(rest, "m") {
			return 0, ErrInvalidDuration
		}
		minutes, err := strconv.Atoi(strings.TrimSuffix(rest, "m"))
		if err != nil || minutes < 0 {
			return 0, ErrInvalidDuration
		}
		total += minutes
	}
	if total <= 0 {
		return 0, ErrInvalidDuration
	}
	return total, nil
}

// SplitMinutes decomposes a whole-minute total into hour and minute parts.
func SplitMinutes(total int) (hours, minutes int) {
	if total <= 0 {
		return 0, 0
	}
	return total / 60, total % 60
}

// FormatMinutes renders a whole-minute total using the supplied unit labeler.
// When labeler is nil the English defaults are used.
func FormatMinutes(total int, labeler UnitLabeler) string {
	if labeler == nil {
		labeler = DefaultLabeler
	}
	hours, minutes := SplitMinutes(total)
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%d %s %d %s", hours, labeler("hour", hours), minutes, labeler("minute", minutes))
	case hours > 0:
		return fmt.Sprintf("%d %s", hours, labeler("hour", hours))
	default:
		return fmt.Sprintf("%d %s", minutes, labeler("minute", minutes))
	}
}

// ElapsedMinutes reports the fractional minutes elapsed between start and
// now. Negative spans clamp to zero.
func ElapsedMinutes(start, now time.Time) float64 {
	if now.Before(start) {
		return 0
	}
	return now.Sub(start).Minutes()
}

// ActualMinutes reports the fractional minutes an item ran, from its start
// marker to its completion stamp.
func ActualMinutes(start, completedAt time.Time) float64 {
	return ElapsedMinutes(start, completedAt)
}

// Ratio computes elapsed over planned minutes. A non-positive plan yields
// zero so callers never divide by zero.
func Ratio(elapsedMinutes, plannedMinutes float64) float64 {
	if plannedMinutes <= 0 {
		return 0
	}
	return elapsedMinutes / plannedMinutes
}
