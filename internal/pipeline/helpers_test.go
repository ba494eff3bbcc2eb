package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// queueGateway returns canned completions in order.
type queueGateway struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
}

func (g *queueGateway) Complete(_ context.Context, _, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, user)
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

func (g *queueGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestTrip(t *testing.T, st store.Store) *model.Trip {
	t.Helper()
	trip := &model.Trip{UserID: "user-1", Title: "SF trip", Timezone: "America/New_York"}
	require.NoError(t, st.CreateTrip(context.Background(), trip))
	return trip
}

func newTestValidator(gw *queueGateway) *structured.Validator {
	return structured.NewValidator(gw)
}

const flightReconstruction = `{
  "tripTitle": "New York to San Francisco",
  "executiveSummary": "A one-way flight from JFK to SFO on March 12.",
  "destinationSummary": "San Francisco",
  "dateRange": {"startDate": "2025-03-12", "endDate": "2025-03-12"},
  "days": [
    {"date": "2025-03-12", "items": [
      {"kind": "FLIGHT", "title": "UA123 JFK to SFO",
       "start": {"localDate": "2025-03-12", "localTime": "19:35", "timezone": "America/New_York"},
       "locationText": "JFK", "isInferred": false, "confidence": 0.95,
       "sourceSnippet": "Flight UA123 JFK→SFO, Mar 12, 7:35 PM"}
    ]}
  ],
  "risks": [],
  "assumptions": ["Times are local to the departure airport."],
  "missingInfo": ["Lodging in San Francisco"],
  "sourceStats": {"recognizedItemCount": 1, "inferredItemCount": 0}
}`
