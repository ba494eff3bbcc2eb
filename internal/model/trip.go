package model

import "time"

// ItemKind classifies an itinerary entry.
type ItemKind string

const (
	KindFlight    ItemKind = "FLIGHT"
	KindLodging   ItemKind = "LODGING"
	KindMeeting   ItemKind = "MEETING"
	KindMeal      ItemKind = "MEAL"
	KindTransport ItemKind = "TRANSPORT"
	KindActivity  ItemKind = "ACTIVITY"
	KindNote      ItemKind = "NOTE"
	KindOther     ItemKind = "OTHER"
)

// ItemKinds lists every valid kind in display order.
var ItemKinds = []ItemKind{
	KindFlight, KindLodging, KindMeeting, KindMeal,
	KindTransport, KindActivity, KindNote, KindOther,
}

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	for _, v := range ItemKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ItemSource records where an item came from.
type ItemSource string

const (
	SourceAI       ItemSource = "AI"
	SourceUser     ItemSource = "USER"
	SourceCalendar ItemSource = "CALENDAR"
	SourceEmail    ItemSource = "EMAIL"
)

// ItemState is the lifecycle state of an itinerary item.
type ItemState string

const (
	StateProposed  ItemState = "PROPOSED"
	StateConfirmed ItemState = "CONFIRMED"
	StateDismissed ItemState = "DISMISSED"
	StateCancelled ItemState = "CANCELLED"
)

// Valid reports whether s is a known state.
func (s ItemState) Valid() bool {
	switch s {
	case StateProposed, StateConfirmed, StateDismissed, StateCancelled:
		return true
	}
	return false
}

// Trip is the minimal owner record items, runs and pending actions hang off.
type Trip struct {
	ID        string    `json:"id" yaml:"id"`
	UserID    string    `json:"user_id" yaml:"user_id"`
	Title     string    `json:"title" yaml:"title"`
	Timezone  string    `json:"timezone" yaml:"timezone"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// TripItem is one itinerary entry. Fingerprint is unique within a trip and
// is the only deduplication key.
type TripItem struct {
	ID     string   `json:"id" yaml:"id"`
	TripID string   `json:"trip_id" yaml:"trip_id"`
	Kind   ItemKind `json:"kind" yaml:"kind"`
	Title  string   `json:"title" yaml:"title"`

	StartLocalDate string     `json:"start_local_date,omitempty" yaml:"start_local_date,omitempty"`
	StartLocalTime string     `json:"start_local_time,omitempty" yaml:"start_local_time,omitempty"`
	StartTimezone  string     `json:"start_timezone,omitempty" yaml:"start_timezone,omitempty"`
	StartAt        *time.Time `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	EndLocalDate   string     `json:"end_local_date,omitempty" yaml:"end_local_date,omitempty"`
	EndLocalTime   string     `json:"end_local_time,omitempty" yaml:"end_local_time,omitempty"`
	EndTimezone    string     `json:"end_timezone,omitempty" yaml:"end_timezone,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty" yaml:"end_at,omitempty"`

	LocationText  string `json:"location_text,omitempty" yaml:"location_text,omitempty"`
	SourceSnippet string `json:"source_snippet,omitempty" yaml:"source_snippet,omitempty"`

	Source     ItemSource `json:"source" yaml:"source"`
	IsInferred bool       `json:"is_inferred" yaml:"is_inferred"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	State      ItemState  `json:"state" yaml:"state"`

	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Metadata keys written by the reconciliation engine.
const (
	MetaPrevious       = "previous"
	MetaLastUpdatedRun = "lastUpdatedByRunId"
)

// StampRun records runID as the last writer of the item.
func (it *TripItem) StampRun(runID string) {
	if it.Metadata == nil {
		it.Metadata = map[string]any{}
	}
	it.Metadata[MetaLastUpdatedRun] = runID
}

// RecordPrevious merges prior field values into metadata.previous. Fields
// not in prev keep their entries; a field overwritten again replaces its
// entry, so each key holds the value from just before its latest change.
func (it *TripItem) RecordPrevious(prev map[string]any) {
	if len(prev) == 0 {
		return
	}
	if it.Metadata == nil {
		it.Metadata = map[string]any{}
	}
	merged, _ := it.Metadata[MetaPrevious].(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range prev {
		merged[k] = v
	}
	it.Metadata[MetaPrevious] = merged
}

// HasLocalTiming reports whether both a start date and time are known.
func (it *TripItem) HasLocalTiming() bool {
	return it.StartLocalDate != "" && it.StartLocalTime != ""
}
