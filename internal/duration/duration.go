// Package duration implements DurationCodec: parsing and formatting of
// compact duration strings like "1d2h30m" (days, hours, minutes, seconds,
// non-increasing unit order, no repeats, no negatives, no fractions).
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidFormat is returned for any syntactic violation of the grammar.
var ErrInvalidFormat = fmt.Errorf("invalid-format")

var segmentRe = regexp.MustCompile(`^(\d+)([dhms])`)

// unitOrder is the required non-increasing order of units.
var unitOrder = map[byte]int{'d': 0, 'h': 1, 'm': 2, 's': 3}

var unitMillis = map[byte]int64{
	'd': int64(24 * time.Hour / time.Millisecond),
	'h': int64(time.Hour / time.Millisecond),
	'm': int64(time.Minute / time.Millisecond),
	's': int64(time.Second / time.Millisecond),
}

// Parse parses a compact duration string into milliseconds. Segments must
// appear in non-increasing unit order (d, h, m, s), each unit at most once,
// digits only (no spaces, no signs, no fractions), and the string must be
// non-empty.
func Parse(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidFormat)
	}

	rest := s
	lastRank := -1
	var total int64
	for rest != "" {
		m := segmentRe.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		unit := m[2][0]
		rank, ok := unitOrder[unit]
		if !ok || rank <= lastRank {
			return 0, fmt.Errorf("%w: unit %q out of order or repeated in %q", ErrInvalidFormat, m[2], s)
		}
		lastRank = rank

		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
		}
		total += n * unitMillis[unit]
		rest = rest[len(m[0]):]
	}
	return total, nil
}

// Format renders milliseconds in canonical normalized form: zero units are
// omitted, units appear in d/h/m/s order, and carries are normalized (e.g.
// 60m becomes 1h). Zero duration formats as "0s".
func Format(ms int64) string {
	if ms <= 0 {
		return "0s"
	}

	days := ms / unitMillis['d']
	ms -= days * unitMillis['d']
	hours := ms / unitMillis['h']
	ms -= hours * unitMillis['h']
	minutes := ms / unitMillis['m']
	ms -= minutes * unitMillis['m']
	seconds := ms / unitMillis['s']

	out := ""
	if days > 0 {
		out += strconv.FormatInt(days, 10) + "d"
	}
	if hours > 0 {
		out += strconv.FormatInt(hours, 10) + "h"
	}
	if minutes > 0 {
		out += strconv.FormatInt(minutes, 10) + "m"
	}
	if seconds > 0 {
		out += strconv.FormatInt(seconds, 10) + "s"
	}
	return out
}

// ParseDuration is a convenience wrapper returning a time.Duration.
func ParseDuration(s string) (time.Duration, error) {
	ms, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// FormatDuration is a convenience wrapper accepting a time.Duration.
func FormatDuration(d time.Duration) string {
	return Format(d.Milliseconds())
}
