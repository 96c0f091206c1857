// Package timeparsing turns CLI time expressions into instants and
// durations.
//
// Instants are tried in layers:
//  1. Compact offset (+30m, -2h, +1d, +1w)
//  2. Natural language (tomorrow 06:00, next saturday at 22:00)
//  3. Absolute (RFC3339, "2006-01-02 15:04", date-only)
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// compactDurationRe matches [+-]?(\d+)(m|h|d|w). Cutover windows are
// planned in minutes, so m means minutes here.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)(m|h|d|w)$`)

// ParseCompactDuration applies a compact offset to now.
//
//   - "+30m" -> now + 30 minutes
//   - "-2h"  -> now - 2 hours
//   - "1d"   -> now + 1 day (no sign = positive)
//   - "+1w"  -> now + 7 days
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}
	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "m":
		return now.Add(time.Duration(amount) * time.Minute), nil
	case "h":
		return now.Add(time.Duration(amount) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, amount), nil
	default: // w
		return now.AddDate(0, 0, amount*7), nil
	}
}

// IsCompactDuration returns true if the string matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRelativeTime resolves s against now using the layers in the package
// doc. Absolute forms without a zone are read in now's location.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			return t, nil
		}
	}
	if t, err := ParseNaturalLanguage(s, now); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (try +2h, \"tomorrow 06:00\" or RFC3339)", s)
}

// ParseMinutes parses a planned duration into whole minutes. Accepts a bare
// integer ("90"), a Go duration ("1h30m") or hours with a suffix ("2h").
// Negative values are rejected.
func ParseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("duration must be >= 0, got %d", n)
		}
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: use minutes (90) or 1h30m", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0, got %s", s)
	}
	if d%time.Minute != 0 {
		return 0, fmt.Errorf("duration %q is not a whole number of minutes", s)
	}
	return int(d / time.Minute), nil
}
