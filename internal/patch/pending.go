package patch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

// ResolveRequest binds a pending action to the item a human selected.
type ResolveRequest struct {
	TripID         string    `json:"-"`
	PendingID      string    `json:"-"`
	SelectedItemID string    `json:"selectedItemId" validate:"required"`
	Timezone       string    `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Now            time.Time `json:"now,omitempty"`
}

// ResolvePending applies the stored operation of a pending action to the
// selected item, skipping resolution and policy, and deletes the pending
// action in the same transaction.
func (e *Engine) ResolvePending(ctx context.Context, req ResolveRequest) (*Result, error) {
	unlock := e.locks.lock(req.TripID)
	defer unlock()

	trip, err := e.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	pa, err := e.store.GetPending(ctx, trip.ID, req.PendingID)
	if err != nil {
		return nil, err
	}
	if !pa.HasCandidate(req.SelectedItemID) {
		return nil, eris.Wrapf(ErrInvalidSelection, "item %s for pending action %s", req.SelectedItemID, pa.ID)
	}

	wire, err := DecodeStored(pa.Operation)
	if err != nil {
		return nil, err
	}
	op, err := resolvableOp(wire)
	if err != nil {
		return nil, err
	}

	if req.Timezone == "" {
		req.Timezone = trip.Timezone
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	runID := uuid.NewString()
	applied, err := e.applyBatch(ctx, Batch{
		RunID:     runID,
		TripID:    trip.ID,
		Kind:      model.RunKindResolve,
		RawText:   pa.RawText,
		Timezone:  req.Timezone,
		Now:       req.Now,
		Ops:       []Resolved{{Op: op, TargetID: req.SelectedItemID}},
		PendingID: pa.ID,
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("patch: pending action resolved",
		zap.String("trip_id", trip.ID),
		zap.String("pending_id", pa.ID),
		zap.String("item_id", req.SelectedItemID),
		zap.String("run_id", runID),
	)

	return &Result{
		Status:      StatusApplied,
		RunID:       runID,
		Applied:     applied,
		Diagnostics: e.refreshDiagnostics(ctx, trip.ID, pa.RawText, req.Timezone, req.Now),
	}, nil
}

// DiscardPending deletes a pending action without applying anything. It is
// the way out for actions no selection can satisfy, such as one stored with
// no candidates. The discard is recorded as a RESOLVE run.
func (e *Engine) DiscardPending(ctx context.Context, tripID, pendingID string) (*Result, error) {
	unlock := e.locks.lock(tripID)
	defer unlock()

	trip, err := e.store.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	pa, err := e.store.GetPending(ctx, trip.ID, pendingID)
	if err != nil {
		return nil, err
	}

	audit := auditPayload{
		Type:       model.RunKindResolve,
		Status:     StatusDiscarded,
		TextSHA256: textHash(pa.RawText),
		PendingID:  pa.ID,
	}
	if w, err := DecodeStored(pa.Operation); err == nil {
		audit.Ops = []auditOp{{Type: w.OpType, Confidence: w.Confidence, Reason: w.Reason}}
	}
	out, err := json.Marshal(audit)
	if err != nil {
		return nil, eris.Wrap(err, "patch: marshal discard audit")
	}
	run := &model.ReconstructRun{
		ID:       uuid.NewString(),
		TripID:   trip.ID,
		Kind:     model.RunKindResolve,
		Status:   model.RunStatusSuccess,
		Timezone: trip.Timezone,
		Now:      time.Now().UTC(),
		RawInput: pa.RawText,
		Output:   out,
	}

	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.DeletePending(ctx, pa.ID); err != nil {
			return err
		}
		return tx.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "patch: discard pending action %s", pa.ID)
	}
	zap.L().Info("patch: pending action discarded",
		zap.String("trip_id", trip.ID),
		zap.String("pending_id", pa.ID),
		zap.String("run_id", run.ID),
	)
	return &Result{Status: StatusDiscarded, RunID: run.ID}, nil
}

// ListPending returns the trip's open pending actions.
func (e *Engine) ListPending(ctx context.Context, tripID string) ([]model.PendingAction, error) {
	if _, err := e.store.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return e.store.ListPending(ctx, tripID)
}

// resolvableOp decodes a stored operation for application. A clarification
// request carrying updates is applied as an update of the selected item.
func resolvableOp(w WireOp) (Operation, error) {
	if w.OpType == OpNeedClarification {
		if w.Updates.Empty() {
			return nil, eris.Wrap(ErrOperationDataMissing, "clarification request has no updates to apply")
		}
		w.OpType = OpUpdateItem
	}
	return w.Decode()
}
