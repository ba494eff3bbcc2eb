// Package pipeline turns raw trip text into persisted itinerary state via
// the oracle: full reconstruction of a trip and the narrative refresh that
// follows a patch.
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

// Reconstructor runs the full-trip reconstruction flow.
type Reconstructor struct {
	store     store.Store
	validator *structured.Validator
}

// NewReconstructor creates a Reconstructor.
func NewReconstructor(st store.Store, v *structured.Validator) *Reconstructor {
	return &Reconstructor{store: st, validator: v}
}

// ReconstructRequest is one raw-text dump to reconstruct.
type ReconstructRequest struct {
	TripID   string
	Text     string
	Timezone string
	Now      time.Time
}

// ReconstructResult is a persisted reconstruction.
type ReconstructResult struct {
	Run            *model.ReconstructRun `json:"run"`
	Reconstruction *Reconstruction       `json:"reconstruction"`
	Items          []model.TripItem      `json:"items"`
	Created        int                   `json:"created"`
	Updated        int                   `json:"updated"`
}

// Reconstruct asks the oracle for a full reconstruction of req.Text and
// upserts its items by fingerprint. A failed generation is recorded as a
// FAILED run and its error returned.
func (r *Reconstructor) Reconstruct(ctx context.Context, req ReconstructRequest) (*ReconstructResult, error) {
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	log := zap.L().With(zap.String("trip_id", req.TripID))

	run := &model.ReconstructRun{
		ID:       uuid.NewString(),
		TripID:   req.TripID,
		Kind:     model.RunKindReconstruct,
		Timezone: req.Timezone,
		Now:      req.Now.UTC(),
		RawInput: req.Text,
	}

	gen, err := structured.Generate(ctx, r.validator, structured.Request{
		System:  reconstructSystemPrompt,
		User:    buildReconstructPrompt(req.Text, req.Timezone, req.Now),
		Purpose: "reconstruct",
	}, reconstructionSchema)
	if err != nil {
		log.Warn("pipeline: reconstruction generation failed", zap.String("run_id", run.ID), zap.Error(err))
		if recErr := RecordFailure(ctx, r.store, run, err); recErr != nil {
			log.Error("pipeline: record failed run", zap.String("run_id", run.ID), zap.Error(recErr))
		}
		return nil, err
	}

	var result *ReconstructResult
	err = store.RetryOnConflict(ctx, func(ctx context.Context) error {
		res, err := r.persist(ctx, run, gen.Value)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: persist reconstruction for trip %s", req.TripID)
	}

	log.Info("pipeline: reconstruction persisted",
		zap.String("run_id", run.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

func (r *Reconstructor) persist(ctx context.Context, template *model.ReconstructRun, rec *Reconstruction) (*ReconstructResult, error) {
	run := *template
	res := &ReconstructResult{Run: &run, Reconstruction: rec}

	err := r.store.InTx(ctx, func(tx store.Tx) error {
		for _, candidate := range collapseDrafts(run.TripID, rec) {
			existing, err := tx.FindItemByFingerprint(ctx, run.TripID, candidate.Fingerprint)
			switch {
			case errors.Is(err, store.ErrNotFound):
				candidate.StampRun(run.ID)
				if err := tx.InsertItem(ctx, &candidate); err != nil {
					return err
				}
				res.Items = append(res.Items, candidate)
				res.Created++
			case err != nil:
				return err
			default:
				existing.RecordPrevious(itinerary.Diff(existing, &candidate))
				itinerary.CopyContent(existing, &candidate)
				existing.StampRun(run.ID)
				if err := tx.UpdateItem(ctx, existing); err != nil {
					return err
				}
				res.Items = append(res.Items, *existing)
				res.Updated++
			}
		}

		rec.SourceStats = sourceStats(res.Items)
		out, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrap(err, "pipeline: marshal reconstruction")
		}
		run.Status = model.RunStatusSuccess
		run.Output = out
		return tx.CreateRun(ctx, &run)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// collapseDrafts flattens the days into unsaved items, keeping one item per
// fingerprint. A later duplicate replaces an earlier one in place.
func collapseDrafts(tripID string, rec *Reconstruction) []model.TripItem {
	var items []model.TripItem
	index := map[string]int{}
	for _, day := range rec.Days {
		for _, d := range day.Items {
			it := d.NewItem(tripID, model.SourceAI)
			if i, ok := index[it.Fingerprint]; ok {
				items[i] = it
				continue
			}
			index[it.Fingerprint] = len(items)
			items = append(items, it)
		}
	}
	return items
}

func sourceStats(items []model.TripItem) SourceStats {
	stats := SourceStats{RecognizedItemCount: len(items)}
	for _, it := range items {
		if it.IsInferred {
			stats.InferredItemCount++
		}
	}
	return stats
}
