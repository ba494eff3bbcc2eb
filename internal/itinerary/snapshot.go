package itinerary

import "github.com/hsiehdog/travel-coordination-back/internal/model"

// Snapshot is the reduced view of an item used for candidate scoring and
// for compact oracle prompts.
type Snapshot struct {
	ID        string          `json:"id"`
	Kind      model.ItemKind  `json:"kind"`
	Title     string          `json:"title"`
	LocalDate string          `json:"localDate,omitempty"`
	LocalTime string          `json:"localTime,omitempty"`
	Timezone  string          `json:"timezone,omitempty"`
	Location  string          `json:"locationText,omitempty"`
	State     model.ItemState `json:"state"`
	Inferred  bool            `json:"isInferred"`
}

// SnapshotOf reduces an item to its comparison snapshot.
func SnapshotOf(it model.TripItem) Snapshot {
	return Snapshot{
		ID:        it.ID,
		Kind:      it.Kind,
		Title:     it.Title,
		LocalDate: it.StartLocalDate,
		LocalTime: it.StartLocalTime,
		Timezone:  it.StartTimezone,
		Location:  it.LocationText,
		State:     it.State,
		Inferred:  it.IsInferred,
	}
}

// Snapshots reduces items, skipping dismissed ones.
func Snapshots(items []model.TripItem) []Snapshot {
	out := make([]Snapshot, 0, len(items))
	for _, it := range items {
		if it.State == model.StateDismissed {
			continue
		}
		out = append(out, SnapshotOf(it))
	}
	return out
}
