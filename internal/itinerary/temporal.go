// Package itinerary holds the pure helpers shared by the reconstruction
// pipeline and the patch engine: local-time normalization, content
// fingerprints and comparison snapshots.
package itinerary

import (
	"strings"
	"time"
)

// LocalDateLayout is the canonical local date format.
const LocalDateLayout = "2006-01-02"

var timeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
}

// NormalizeLocalTime converts the accepted local time spellings to HH:MM.
// Returns "" and false if s is not a recognizable time of day.
func NormalizeLocalTime(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	upper := strings.ToUpper(strings.ReplaceAll(s, ".", ""))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}

// NormalizeLocalDate validates a YYYY-MM-DD date, tolerating a trailing
// time component.
func NormalizeLocalDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) > len(LocalDateLayout) {
		s = s[:len(LocalDateLayout)]
	}
	d, err := time.Parse(LocalDateLayout, s)
	if err != nil {
		return "", false
	}
	return d.Format(LocalDateLayout), true
}

// ToInstant resolves a local date, local time and IANA zone to an absolute
// instant. The second return is false when any component is missing or
// unresolvable.
func ToInstant(localDate, localTime, zone string) (time.Time, bool) {
	date, ok := NormalizeLocalDate(localDate)
	if !ok {
		return time.Time{}, false
	}
	clock, ok := NormalizeLocalTime(localTime)
	if !ok {
		return time.Time{}, false
	}
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return time.Time{}, false
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(LocalDateLayout+" 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// ResolveInstant prefers the local triple and falls back to an RFC3339
// timestamp supplied by the oracle.
func ResolveInstant(localDate, localTime, zone, iso string) *time.Time {
	if t, ok := ToInstant(localDate, localTime, zone); ok {
		return &t
	}
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// DaysBetween returns the absolute number of calendar days between two
// local dates, or -1 if either is invalid.
func DaysBetween(a, b string) int {
	ta, errA := time.Parse(LocalDateLayout, a)
	tb, errB := time.Parse(LocalDateLayout, b)
	if errA != nil || errB != nil {
		return -1
	}
	d := int(ta.Sub(tb).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
