package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func reconstructReq(tripID string) ReconstructRequest {
	return ReconstructRequest{
		TripID:   tripID,
		Text:     "Flight UA123 JFK→SFO, Mar 12, 7:35 PM",
		Timezone: "America/New_York",
		Now:      testNow,
	}
}

func TestReconstruct_CreatesItems(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	trip := newTestTrip(t, st)
	gw := &queueGateway{responses: []string{flightReconstruction}}

	res, err := NewReconstructor(st, newTestValidator(gw)).Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Updated)

	items, err := st.ListItems(ctx, trip.ID, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, model.KindFlight, it.Kind)
	assert.Equal(t, model.StateProposed, it.State)
	assert.Equal(t, model.SourceAI, it.Source)
	assert.False(t, it.IsInferred)
	assert.GreaterOrEqual(t, it.Confidence, 0.9)
	require.NotNil(t, it.StartAt)
	assert.Equal(t, time.Date(2025, 3, 12, 23, 35, 0, 0, time.UTC), *it.StartAt)
	assert.Equal(t, res.Run.ID, it.Metadata[model.MetaLastUpdatedRun])

	run, err := st.GetRun(ctx, res.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSuccess, run.Status)
	assert.Equal(t, model.RunKindReconstruct, run.Kind)

	var out Reconstruction
	require.NoError(t, json.Unmarshal(run.Output, &out))
	assert.Equal(t, 1, out.SourceStats.RecognizedItemCount)
	assert.Equal(t, "New York to San Francisco", out.TripTitle)
	assert.Contains(t, gw.prompts[0], "America/New_York")
	assert.Contains(t, gw.prompts[0], "UA123")
}

func TestReconstruct_IdempotentReingestion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	trip := newTestTrip(t, st)
	gw := &queueGateway{}
	r := NewReconstructor(st, newTestValidator(gw))

	gw.push(flightReconstruction)
	first, err := r.Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)

	gw.push(strings.Replace(flightReconstruction, `"confidence": 0.95`, `"confidence": 0.9`, 1))
	second, err := r.Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Updated)

	items, err := st.ListItems(ctx, trip.ID, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.Items[0].ID, items[0].ID)
	assert.Equal(t, 0.9, items[0].Confidence)
	assert.Equal(t, second.Run.ID, items[0].Metadata[model.MetaLastUpdatedRun])

	prev, ok := items[0].Metadata[model.MetaPrevious].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.95, prev["confidence"])
}

func TestReconstruct_KeepsLifecycleState(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	trip := newTestTrip(t, st)
	gw := &queueGateway{}
	r := NewReconstructor(st, newTestValidator(gw))

	gw.push(flightReconstruction)
	first, err := r.Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)

	confirmed := first.Items[0]
	confirmed.State = model.StateConfirmed
	require.NoError(t, st.UpdateItem(ctx, &confirmed))

	gw.push(flightReconstruction)
	_, err = r.Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)

	got, err := st.GetItem(ctx, trip.ID, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, got.State)
}

func TestReconstruct_CollapsesDuplicateFingerprints(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	trip := newTestTrip(t, st)

	dup := strings.Replace(flightReconstruction, `"sourceSnippet": "Flight UA123 JFK→SFO, Mar 12, 7:35 PM"}`,
		`"sourceSnippet": "first"},
      {"kind": "FLIGHT", "title": "ua123  jfk to sfo",
       "start": {"localDate": "2025-03-12", "localTime": "7:35 PM", "timezone": "America/New_York"},
       "locationText": "jfk", "isInferred": false, "confidence": 0.97, "sourceSnippet": "second"}`, 1)
	gw := &queueGateway{responses: []string{dup}}

	res, err := NewReconstructor(st, newTestValidator(gw)).Reconstruct(ctx, reconstructReq(trip.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	items, err := st.ListItems(ctx, trip.ID, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].SourceSnippet)
}

func TestReconstruct_FailureRecordsBoundedRun(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	trip := newTestTrip(t, st)

	huge := `{"tripTitle": "` + strings.Repeat("x", MaxDebugChars+500) + `"}`
	gw := &queueGateway{responses: []string{huge, huge, flightReconstruction}}

	_, err := NewReconstructor(st, newTestValidator(gw)).Reconstruct(ctx, reconstructReq(trip.ID))
	require.Error(t, err)
	assert.ErrorIs(t, err, structured.ErrSchemaValidationFailed)
	assert.Equal(t, 2, gw.calls())

	runs, err := st.ListRuns(ctx, store.RunFilter{TripID: trip.ID})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "Flight UA123 JFK→SFO, Mar 12, 7:35 PM", runs[0].RawInput)

	var out failureOutput
	require.NoError(t, json.Unmarshal(runs[0].Output, &out))
	require.Len(t, out.Attempts, 2)
	for _, a := range out.Attempts {
		assert.Len(t, []rune(a.Raw), MaxDebugChars)
		assert.NotEmpty(t, a.Issues)
	}

	items, err := st.ListItems(ctx, trip.ID, store.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
	assert.Equal(t, "→→", truncate("→→→", 2))
	assert.Equal(t, "→→→", truncate("→→→", 3))
}
