package itinerary

import (
	"time"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// Diff returns the before-values of every content field that differs
// between before and after, keyed by the item's JSON field names.
func Diff(before, after *model.TripItem) map[string]any {
	out := map[string]any{}
	str := func(key, a, b string) {
		if a != b {
			out[key] = a
		}
	}
	str("kind", string(before.Kind), string(after.Kind))
	str("title", before.Title, after.Title)
	str("start_local_date", before.StartLocalDate, after.StartLocalDate)
	str("start_local_time", before.StartLocalTime, after.StartLocalTime)
	str("start_timezone", before.StartTimezone, after.StartTimezone)
	str("end_local_date", before.EndLocalDate, after.EndLocalDate)
	str("end_local_time", before.EndLocalTime, after.EndLocalTime)
	str("end_timezone", before.EndTimezone, after.EndTimezone)
	str("location_text", before.LocationText, after.LocationText)
	str("source_snippet", before.SourceSnippet, after.SourceSnippet)
	if !sameInstant(before.StartAt, after.StartAt) {
		out["start_at"] = instantValue(before.StartAt)
	}
	if !sameInstant(before.EndAt, after.EndAt) {
		out["end_at"] = instantValue(before.EndAt)
	}
	if before.IsInferred != after.IsInferred {
		out["is_inferred"] = before.IsInferred
	}
	if before.Confidence != after.Confidence {
		out["confidence"] = before.Confidence
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CopyContent copies the content fields of src onto dst, leaving identity,
// lifecycle and audit fields untouched.
func CopyContent(dst, src *model.TripItem) {
	dst.Kind = src.Kind
	dst.Title = src.Title
	dst.StartLocalDate = src.StartLocalDate
	dst.StartLocalTime = src.StartLocalTime
	dst.StartTimezone = src.StartTimezone
	dst.StartAt = src.StartAt
	dst.EndLocalDate = src.EndLocalDate
	dst.EndLocalTime = src.EndLocalTime
	dst.EndTimezone = src.EndTimezone
	dst.EndAt = src.EndAt
	dst.LocationText = src.LocationText
	dst.SourceSnippet = src.SourceSnippet
	dst.IsInferred = src.IsInferred
	dst.Confidence = src.Confidence
	dst.Fingerprint = src.Fingerprint
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func instantValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
