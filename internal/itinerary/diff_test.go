package itinerary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 12, 23, 35, 0, 0, time.UTC)
	before := &model.TripItem{Kind: model.KindFlight, Title: "UA123", StartLocalTime: "19:35", StartAt: &start, Confidence: 0.8}
	after := *before
	assert.Nil(t, Diff(before, &after))

	later := start.Add(40 * time.Minute)
	after.StartLocalTime = "20:15"
	after.StartAt = &later
	after.Confidence = 0.95

	got := Diff(before, &after)
	assert.Equal(t, map[string]any{
		"start_local_time": "19:35",
		"start_at":         "2025-03-12T23:35:00Z",
		"confidence":       0.8,
	}, got)
}

func TestCopyContent_KeepsLifecycle(t *testing.T) {
	t.Parallel()

	dst := &model.TripItem{ID: "i1", TripID: "t1", State: model.StateConfirmed, Source: model.SourceUser, Title: "old"}
	src := &model.TripItem{ID: "other", State: model.StateProposed, Source: model.SourceAI, Title: "new", Fingerprint: "fp"}
	CopyContent(dst, src)

	assert.Equal(t, "i1", dst.ID)
	assert.Equal(t, model.StateConfirmed, dst.State)
	assert.Equal(t, model.SourceUser, dst.Source)
	assert.Equal(t, "new", dst.Title)
	assert.Equal(t, "fp", dst.Fingerprint)
}
