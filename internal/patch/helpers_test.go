package patch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/config"
	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// queueGateway returns canned completions in order and fails when empty.
type queueGateway struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (g *queueGateway) Complete(_ context.Context, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.responses) == 0 {
		return "", eris.New("queueGateway: no response queued")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

func (g *queueGateway) push(responses ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append(g.responses, responses...)
}

func (g *queueGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fixture struct {
	ctx    context.Context
	store  store.Store
	gw     *queueGateway
	engine *Engine
	trip   *model.Trip
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "patch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	trip := &model.Trip{UserID: "user-1", Title: "SF trip", Timezone: "America/New_York"}
	require.NoError(t, st.CreateTrip(ctx, trip))

	gw := &queueGateway{}
	eng := NewEngine(st, gw, config.PatchConfig{MaxPatchChars: 2000, PendingTTLHours: 72})
	return &fixture{ctx: ctx, store: st, gw: gw, engine: eng, trip: trip}
}

func (f *fixture) seed(t *testing.T, it model.TripItem) model.TripItem {
	t.Helper()
	it.TripID = f.trip.ID
	if it.Source == "" {
		it.Source = model.SourceUser
	}
	if it.State == "" {
		it.State = model.StateProposed
	}
	itinerary.Refresh(&it)
	require.NoError(t, f.store.InsertItem(f.ctx, &it))
	return it
}

func (f *fixture) item(t *testing.T, id string) *model.TripItem {
	t.Helper()
	it, err := f.store.GetItem(f.ctx, f.trip.ID, id)
	require.NoError(t, err)
	return it
}

func (f *fixture) ingest(text string) (*Result, error) {
	return f.engine.Ingest(f.ctx, IngestRequest{TripID: f.trip.ID, Text: text, Now: testNow})
}

func dinner(title, date, clock string, state model.ItemState) model.TripItem {
	return model.TripItem{
		Kind:           model.KindMeal,
		Title:          title,
		StartLocalDate: date,
		StartLocalTime: clock,
		StartTimezone:  "America/Los_Angeles",
		Confidence:     0.9,
		State:          state,
	}
}

const flightReconstruction = `{
  "tripTitle": "New York to San Francisco",
  "executiveSummary": "A one-way flight from JFK to SFO on March 12.",
  "destinationSummary": "San Francisco",
  "dateRange": {"startDate": "2025-03-12", "endDate": "2025-03-12"},
  "days": [{"date": "2025-03-12", "items": [
    {"kind": "FLIGHT", "title": "UA123 JFK to SFO",
     "start": {"localDate": "2025-03-12", "localTime": "19:35", "timezone": "America/New_York"},
     "locationText": "JFK", "isInferred": false, "confidence": 0.95}
  ]}],
  "risks": [],
  "assumptions": [],
  "missingInfo": ["Lodging"],
  "sourceStats": {"recognizedItemCount": 1, "inferredItemCount": 0}
}`

const refreshedDiagnostics = `{
  "executiveSummary": "Flight UA123 departs JFK at 8:15 PM on March 12.",
  "destinationSummary": "San Francisco",
  "risks": [],
  "assumptions": [],
  "missingInfo": ["Lodging"]
}`
