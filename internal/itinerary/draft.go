package itinerary

import (
	"strings"
	"time"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// TimePoint is a local date, time and zone as reported by the oracle, with
// an optional RFC3339 instant.
type TimePoint struct {
	LocalDate string `json:"localDate,omitempty" jsonschema:"YYYY-MM-DD in the local zone" validate:"omitempty,datetime=2006-01-02"`
	LocalTime string `json:"localTime,omitempty" jsonschema:"HH:MM, 24-hour, in the local zone"`
	Timezone  string `json:"timezone,omitempty" jsonschema:"IANA zone name, e.g. America/New_York" validate:"omitempty,timezone"`
	ISO       string `json:"iso,omitempty" jsonschema:"RFC3339 instant, only when the zone is known"`
}

// Problems reports local time and ISO values that cannot be normalized.
func (tp *TimePoint) Problems(path string) []structured.Issue {
	if tp == nil {
		return nil
	}
	var issues []structured.Issue
	if tp.LocalTime != "" {
		if _, ok := NormalizeLocalTime(tp.LocalTime); !ok {
			issues = append(issues, structured.Issue{Path: path + ".localTime", Message: "must be HH:MM, got " + tp.LocalTime})
		}
	}
	if tp.ISO != "" {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(tp.ISO)); err != nil {
			issues = append(issues, structured.Issue{Path: path + ".iso", Message: "must be RFC3339, got " + tp.ISO})
		}
	}
	return issues
}

func (tp *TimePoint) iso() string {
	if tp == nil {
		return ""
	}
	return tp.ISO
}

// ItemDraft is a complete item as the oracle describes it, before it has an
// identity in the store.
type ItemDraft struct {
	Kind          model.ItemKind `json:"kind" validate:"oneof=FLIGHT LODGING MEETING MEAL TRANSPORT ACTIVITY NOTE OTHER"`
	Title         string         `json:"title" validate:"required"`
	Start         *TimePoint     `json:"start,omitempty"`
	End           *TimePoint     `json:"end,omitempty"`
	LocationText  string         `json:"locationText,omitempty"`
	IsInferred    bool           `json:"isInferred"`
	Confidence    float64        `json:"confidence" validate:"gte=0,lte=1"`
	SourceSnippet string         `json:"sourceSnippet,omitempty"`
}

// Problems reports semantic issues the struct tags cannot express.
func (d *ItemDraft) Problems(path string) []structured.Issue {
	issues := d.Start.Problems(path + ".start")
	return append(issues, d.End.Problems(path+".end")...)
}

// NewItem builds an unsaved item from the draft with derived fields filled.
func (d *ItemDraft) NewItem(tripID string, source model.ItemSource) model.TripItem {
	it := model.TripItem{
		TripID: tripID,
		Source: source,
		State:  model.StateProposed,
	}
	d.ApplyTo(&it)
	return it
}

// ApplyTo overwrites the item's content fields with the draft. Lifecycle
// fields (state, source, metadata) are left alone.
func (d *ItemDraft) ApplyTo(it *model.TripItem) {
	it.Kind = d.Kind
	it.Title = strings.TrimSpace(d.Title)
	it.StartLocalDate, it.StartLocalTime, it.StartTimezone = d.Start.normalized()
	it.EndLocalDate, it.EndLocalTime, it.EndTimezone = d.End.normalized()
	it.LocationText = strings.TrimSpace(d.LocationText)
	it.SourceSnippet = d.SourceSnippet
	it.IsInferred = d.IsInferred
	it.Confidence = ClampConfidence(d.Confidence)
	RefreshISO(it, d.Start.iso(), d.End.iso())
}

func (tp *TimePoint) normalized() (date, clock, zone string) {
	if tp == nil {
		return "", "", ""
	}
	return normalizeOr(tp.LocalDate, NormalizeLocalDate),
		normalizeOr(tp.LocalTime, NormalizeLocalTime),
		strings.TrimSpace(tp.Timezone)
}

// normalizeOr returns the normalized form of s, or s trimmed when it does
// not parse.
func normalizeOr(s string, fn func(string) (string, bool)) string {
	if n, ok := fn(s); ok {
		return n
	}
	return strings.TrimSpace(s)
}

// ClampConfidence bounds a confidence to [0, 1].
func ClampConfidence(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
