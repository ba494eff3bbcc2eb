// Package monitoring summarizes the run audit log into health metrics.
package monitoring

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

// Failure classes for FAILED runs.
const (
	FailureModelOutput = "model_output"
	FailureOracle      = "oracle"
)

// KindStats counts runs of one kind.
type KindStats struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// Snapshot is a point-in-time view of reconciliation health.
type Snapshot struct {
	TripID         string                      `json:"trip_id,omitempty"`
	Total          int                         `json:"total"`
	Success        int                         `json:"success"`
	Failed         int                         `json:"failed"`
	FailRate       float64                     `json:"fail_rate"`
	Clarifications int                         `json:"clarifications"`
	ByKind         map[model.RunKind]KindStats `json:"by_kind"`
	FailureClasses map[string]int              `json:"failure_classes"`
	OpenPending    int                         `json:"open_pending"`
	CollectedAt    time.Time                   `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Queries
	limit int
}

// NewCollector creates a collector that inspects at most limit runs, newest
// first.
func NewCollector(st store.Queries, limit int) *Collector {
	if limit <= 0 {
		limit = 10000
	}
	return &Collector{store: st, limit: limit}
}

// Collect summarizes the runs of one trip.
func (c *Collector) Collect(ctx context.Context, tripID string) (*Snapshot, error) {
	runs, err := c.store.ListRuns(ctx, store.RunFilter{TripID: tripID, Limit: c.limit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap := Summarize(runs)
	snap.TripID = tripID

	pending, err := c.store.ListPending(ctx, tripID)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list pending")
	}
	snap.OpenPending = len(pending)
	return snap, nil
}

// runOutput holds the fields of a run payload the collector reads.
type runOutput struct {
	Status   string            `json:"status"`
	Attempts []json.RawMessage `json:"attempts"`
}

// Summarize aggregates runs without touching the store.
func Summarize(runs []model.ReconstructRun) *Snapshot {
	snap := &Snapshot{
		Total:          len(runs),
		ByKind:         map[model.RunKind]KindStats{},
		FailureClasses: map[string]int{},
		CollectedAt:    time.Now().UTC(),
	}
	for _, r := range runs {
		ks := snap.ByKind[r.Kind]
		ks.Total++

		var out runOutput
		if len(r.Output) > 0 {
			_ = json.Unmarshal(r.Output, &out)
		}

		switch r.Status {
		case model.RunStatusSuccess:
			snap.Success++
			if out.Status == "NEEDS_CLARIFICATION" {
				snap.Clarifications++
			}
		case model.RunStatusFailed:
			snap.Failed++
			ks.Failed++
			if len(out.Attempts) > 0 {
				snap.FailureClasses[FailureModelOutput]++
			} else {
				snap.FailureClasses[FailureOracle]++
			}
		}
		snap.ByKind[r.Kind] = ks
	}
	if snap.Total > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
	}
	return snap
}
