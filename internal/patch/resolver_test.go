package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

func snap(id string, kind model.ItemKind, title, date, clock, loc string) itinerary.Snapshot {
	return itinerary.Snapshot{ID: id, Kind: kind, Title: title, LocalDate: date, LocalTime: clock, Location: loc, State: model.StateProposed}
}

func scored(id string, score float64) Scored {
	return Scored{Snapshot: itinerary.Snapshot{ID: id}, Score: score}
}

func TestDisambiguate_GapWithinThresholdIsAmbiguous(t *testing.T) {
	t.Parallel()

	res := Disambiguate([]Scored{scored("a", 0.70), scored("b", 0.62)})
	assert.Nil(t, res.Target)
	assert.True(t, res.Ambiguous)
	assert.Len(t, res.Candidates, 2)
}

func TestDisambiguate_ClearGapPicksTarget(t *testing.T) {
	t.Parallel()

	res := Disambiguate([]Scored{scored("a", 0.70), scored("b", 0.50)})
	require.NotNil(t, res.Target)
	assert.Equal(t, "a", res.Target.ID)
	assert.False(t, res.Ambiguous)
}

func TestDisambiguate_ExactGapIsAmbiguous(t *testing.T) {
	t.Parallel()

	res := Disambiguate([]Scored{scored("a", 0.75), scored("b", 0.65)})
	assert.Nil(t, res.Target)
	assert.True(t, res.Ambiguous)
}

func TestDisambiguate_CapsCandidates(t *testing.T) {
	t.Parallel()

	var ranked []Scored
	for i := 0; i < 8; i++ {
		ranked = append(ranked, scored(string(rune('a'+i)), 0.6))
	}
	res := Disambiguate(ranked)
	assert.Len(t, res.Candidates, maxCandidates)
}

func TestResolve_Scoring(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{
		snap("flight", model.KindFlight, "UA123 JFK to SFO", "2025-03-12", "19:35", "JFK Terminal 7"),
		snap("dinner", model.KindMeal, "Dinner at Zuni", "2025-03-12", "19:00", "Zuni Cafe"),
	}
	hints := TargetHints{
		Kind:             model.KindFlight,
		LocalDate:        "2025-03-12",
		LocalTime:        "7:35 PM",
		TitleKeywords:    []string{"UA123", "jfk", "sfo"},
		LocationKeywords: []string{"terminal"},
	}
	res := Resolve(hints, snaps, "the flight is delayed")
	require.NotNil(t, res.Target)
	assert.Equal(t, "flight", res.Target.ID)
	// 0.30 + 0.25 + 0.15 + min(0.30, 0.20) + 0.10
	assert.InDelta(t, 1.0, res.Target.Score, 1e-9)
	assert.Len(t, res.Candidates, 1)
	assert.Contains(t, res.Target.Candidate().Reason, "kind match")
}

func TestResolve_BelowFloorFallsBackToRankedCandidates(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{
		snap("a", model.KindMeal, "Lunch", "2025-03-12", "12:00", ""),
		snap("b", model.KindMeal, "Dinner", "2025-03-12", "19:00", ""),
	}
	res := Resolve(TargetHints{Kind: model.KindMeal}, snaps, "change the meal")
	assert.Nil(t, res.Target)
	assert.False(t, res.Ambiguous)
	assert.Len(t, res.Candidates, 2)
}

func TestResolve_NoHints(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{snap("a", model.KindNote, "Note", "", "", "")}
	res := Resolve(TargetHints{}, snaps, "something")
	assert.Nil(t, res.Target)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, 0.0, res.Candidates[0].Score)
}

func TestResolve_RelativeDateWindow(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{snap("dinner", model.KindMeal, "Dinner at Nopa", "2025-03-13", "19:00", "")}
	hints := TargetHints{Kind: model.KindMeal, LocalDate: "2025-03-12", TitleKeywords: []string{"dinner"}}

	strict := Resolve(hints, snaps, "push the dinner to 8")
	assert.Nil(t, strict.Target)
	assert.Empty(t, strict.Candidates)

	relative := Resolve(hints, snaps, "push tomorrow's dinner to 8")
	require.NotNil(t, relative.Target)
	assert.Equal(t, "dinner", relative.Target.ID)
	// kind 0.30 + date within a day 0.25 + title 0.10
	assert.InDelta(t, 0.65, relative.Target.Score, 1e-9)
	assert.Contains(t, relative.Target.Reasons, "date within a day")

	far := []itinerary.Snapshot{snap("dinner", model.KindMeal, "Dinner at Nopa", "2025-03-14", "19:00", "")}
	outside := Resolve(hints, far, "push tomorrow's dinner to 8")
	assert.Nil(t, outside.Target)
	assert.Empty(t, outside.Candidates)
}

func TestResolve_RelativeWindowPrefersExactDate(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{
		snap("exact", model.KindMeal, "Dinner at Zuni", "2025-03-12", "19:00", ""),
		snap("near", model.KindMeal, "Dinner at Nopa", "2025-03-13", "19:00", ""),
	}
	hints := TargetHints{Kind: model.KindMeal, LocalDate: "2025-03-12", TitleKeywords: []string{"dinner"}}

	// Both earn the same points, so the window makes the match ambiguous
	// rather than silently picking one.
	res := Resolve(hints, snaps, "tonight's dinner is at 8")
	assert.Nil(t, res.Target)
	assert.True(t, res.Ambiguous)
	assert.Len(t, res.Candidates, 2)
}

func TestResolve_MealActivityCrossMatch(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{
		snap("tasting", model.KindActivity, "Wine tasting dinner", "2025-03-12", "18:00", "Napa"),
		snap("hike", model.KindActivity, "Hike", "2025-03-12", "09:00", "Muir Woods"),
	}
	hints := TargetHints{
		Kind:             model.KindMeal,
		LocalDate:        "2025-03-12",
		TitleKeywords:    []string{"dinner", "wine"},
		LocationKeywords: []string{"napa"},
	}
	res := Resolve(hints, snaps, "cancel the wine dinner in napa")
	require.NotNil(t, res.Target)
	assert.Equal(t, "tasting", res.Target.ID)
	assert.Len(t, res.Candidates, 1)
	// date 0.25 + two title hits 0.20 + location 0.10, no kind points
	assert.InDelta(t, 0.55, res.Target.Score, 1e-9)
}

func TestResolve_KindFilterWithoutCrossMatch(t *testing.T) {
	t.Parallel()

	snaps := []itinerary.Snapshot{snap("hotel", model.KindLodging, "Hotel Zetta", "2025-03-12", "", "")}
	res := Resolve(TargetHints{Kind: model.KindFlight, LocalDate: "2025-03-12"}, snaps, "x")
	assert.Nil(t, res.Target)
	assert.Empty(t, res.Candidates)
}

func TestResolve_SkipsDismissed(t *testing.T) {
	t.Parallel()

	s := snap("gone", model.KindFlight, "UA1", "2025-03-12", "", "")
	s.State = model.StateDismissed
	res := Resolve(TargetHints{Kind: model.KindFlight, LocalDate: "2025-03-12"}, []itinerary.Snapshot{s}, "x")
	assert.Nil(t, res.Target)
	assert.Empty(t, res.Candidates)
}

func TestHasRelativeDate(t *testing.T) {
	t.Parallel()

	assert.True(t, HasRelativeDate("see you Tomorrow"))
	assert.True(t, HasRelativeDate("on friday"))
	assert.True(t, HasRelativeDate("dinner tonight"))
	assert.False(t, HasRelativeDate("March 12 at 7pm"))
	assert.False(t, HasRelativeDate("Sundayville"))
}
