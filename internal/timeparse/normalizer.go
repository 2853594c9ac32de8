// Package timeparse turns the backend's heterogeneous timestamp encodings into
// a single canonical time.Time. The backend sends an ISO string where it can, a
// "M/D HH:MM" display string for message history, and legacy payloads carry a
// Korean half-day label ("오전 9:15" / "오후 2:30") with no date at all.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Raw is a timestamp as received from the wire: an optional canonical ISO form
// plus the display form. ISO wins when both are present.
type Raw struct {
	ISO     string
	Display string
}

// Normalize produces a canonical instant from a raw timestamp. It never fails:
// a value that matches no known encoding resolves to the current time, which is
// obviously wrong in a way silent misparsing of the hour would not be.
func Normalize(raw Raw) time.Time {
	return normalizeAt(raw, time.Now())
}

// NormalizeString is Normalize for callers that only have a single string.
func NormalizeString(s string) time.Time {
	return normalizeAt(Raw{Display: s}, time.Now())
}

func normalizeAt(raw Raw, now time.Time) time.Time {
	for _, p := range parsers {
		if t, ok := p.parse(strings.TrimSpace(raw.ISO), now); ok {
			return t
		}
	}
	for _, p := range parsers {
		if t, ok := p.parse(strings.TrimSpace(raw.Display), now); ok {
			return t
		}
	}
	return now
}

// parser is one named strategy. Strategies are tried in priority order and
// report failure explicitly instead of guessing.
type parser struct {
	name  string
	parse func(s string, now time.Time) (time.Time, bool)
}

var parsers = []parser{
	{name: "iso", parse: parseISO},
	{name: "half-day-label", parse: parseHalfDayLabel},
	{name: "short-date", parse: parseShortDate},
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseISO(s string, _ time.Time) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var halfDayRe = regexp.MustCompile(`^(오전|오후) (\d{1,2}):(\d{2})$`)

// parseHalfDayLabel handles "오전 9:15" / "오후 2:30". No date is carried, so
// the current local date is assumed.
func parseHalfDayLabel(s string, now time.Time) (time.Time, bool) {
	m := halfDayRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	hour, err := strconv.Atoi(m[2])
	if err != nil || hour < 1 || hour > 12 {
		return time.Time{}, false
	}
	minute, err := strconv.Atoi(m[3])
	if err != nil || minute > 59 {
		return time.Time{}, false
	}

	if m[1] == "오후" && hour != 12 {
		hour += 12
	} else if m[1] == "오전" && hour == 12 {
		hour = 0
	}

	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.Local), true
}

var shortDateRe = regexp.MustCompile(`^(\d{1,2})/(\d{1,2}) (\d{1,2}):(\d{2})$`)

// parseShortDate handles "M/D HH:MM" in 24-hour form. No year is carried, so
// the current year is assumed.
func parseShortDate(s string, now time.Time) (time.Time, bool) {
	m := shortDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute, _ := strconv.Atoi(m[4])
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	return time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, time.Local), true
}

// SameDay reports whether two instants fall on the same local calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
