package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// ErrNoReconstruction means the trip has no successful reconstruction to
// refresh.
var ErrNoReconstruction = eris.New("pipeline: no reconstruction to refresh")

// DiagnosticsRefresher recomputes the narrative fields of a trip's latest
// reconstruction without touching its items.
type DiagnosticsRefresher struct {
	store     store.Store
	validator *structured.Validator
}

// NewDiagnosticsRefresher creates a DiagnosticsRefresher.
func NewDiagnosticsRefresher(st store.Store, v *structured.Validator) *DiagnosticsRefresher {
	return &DiagnosticsRefresher{store: st, validator: v}
}

// RefreshRequest identifies the trip and the update that triggered the
// refresh.
type RefreshRequest struct {
	TripID   string
	Trigger  string
	Timezone string
	Now      time.Time
}

// Refresh regenerates diagnostics for the trip and merges them onto the
// latest RECONSTRUCT run, with source stats recounted from current items.
func (d *DiagnosticsRefresher) Refresh(ctx context.Context, req RefreshRequest) (*Diagnostics, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	log := zap.L().With(zap.String("trip_id", req.TripID))

	latest, err := d.store.LatestRun(ctx, req.TripID, model.RunKindReconstruct)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoReconstruction
	}
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load latest reconstruction")
	}

	var rec Reconstruction
	if err := json.Unmarshal(latest.Output, &rec); err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode reconstruction run %s", latest.ID)
	}

	items, err := d.store.ListItems(ctx, req.TripID, store.ExcludeDismissed())
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list items for diagnostics")
	}
	snaps := itinerary.Snapshots(items)

	tz := req.Timezone
	if tz == "" {
		tz = latest.Timezone
	}
	prompt, err := buildDiagnosticsPrompt(snaps, rec.Diagnostics(), tz, req.Now)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: build diagnostics prompt")
	}

	run := &model.ReconstructRun{
		ID:       uuid.NewString(),
		TripID:   req.TripID,
		Kind:     model.RunKindDiagnostics,
		Timezone: tz,
		Now:      req.Now.UTC(),
		RawInput: req.Trigger,
	}

	gen, err := structured.Generate(ctx, d.validator, structured.Request{
		System:  diagnosticsSystemPrompt,
		User:    prompt,
		Purpose: "diagnostics",
	}, diagnosticsSchema)
	if err != nil {
		if recErr := RecordFailure(ctx, d.store, run, err); recErr != nil {
			log.Error("pipeline: record failed diagnostics run", zap.String("run_id", run.ID), zap.Error(recErr))
		}
		return nil, err
	}

	rec.SetDiagnostics(*gen.Value)
	rec.SourceStats = sourceStats(snapshotItems(items))
	merged, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: marshal refreshed reconstruction")
	}

	run.Status = model.RunStatusSuccess
	run.Output = gen.JSON
	err = d.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.UpdateRunOutput(ctx, latest.ID, merged); err != nil {
			return err
		}
		return tx.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: persist diagnostics for trip %s", req.TripID)
	}

	log.Info("pipeline: diagnostics refreshed",
		zap.String("run_id", run.ID),
		zap.String("reconstruct_run_id", latest.ID),
		zap.Int("items", len(snaps)),
	)
	return gen.Value, nil
}

// snapshotItems drops dismissed items so the counts match the prompt.
func snapshotItems(items []model.TripItem) []model.TripItem {
	out := make([]model.TripItem, 0, len(items))
	for _, it := range items {
		if it.State != model.StateDismissed {
			out = append(out, it)
		}
	}
	return out
}
