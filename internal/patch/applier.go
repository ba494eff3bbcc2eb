package patch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

// Resolved is an operation bound to its target. TargetID is empty for
// CreateItem.
type Resolved struct {
	Op       Operation
	TargetID string
}

// Batch is everything one transactional apply needs.
type Batch struct {
	RunID     string
	TripID    string
	Kind      model.RunKind
	RawText   string
	Timezone  string
	Now       time.Time
	Ops       []Resolved
	PendingID string
}

// AppliedOp reports what one operation did.
type AppliedOp struct {
	OpType   OpType `json:"opType"`
	TargetID string `json:"targetId,omitempty"`
	ItemID   string `json:"itemId,omitempty"`
}

type auditOp struct {
	Type       OpType  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type auditPayload struct {
	Type        model.RunKind `json:"type"`
	Status      Status        `json:"status"`
	TextSHA256  string        `json:"textSha256"`
	Ops         []auditOp     `json:"ops"`
	Resolutions []AppliedOp   `json:"resolutions"`
	PendingID   string        `json:"pendingId,omitempty"`
}

// Apply executes every operation in b on tx and writes the batch's single
// audit run. Any failure aborts the batch; the caller's transaction rolls
// everything back.
func Apply(ctx context.Context, tx store.Tx, b Batch) ([]AppliedOp, error) {
	applied := make([]AppliedOp, 0, len(b.Ops))
	audit := auditPayload{Type: b.Kind, Status: StatusApplied, TextSHA256: textHash(b.RawText), PendingID: b.PendingID}

	for _, r := range b.Ops {
		meta := r.Op.Meta()
		audit.Ops = append(audit.Ops, auditOp{Type: r.Op.Type(), Confidence: meta.Confidence, Reason: meta.Reason})

		res, err := applyOne(ctx, tx, b, r)
		if err != nil {
			return nil, eris.Wrapf(err, "patch: apply %s", r.Op.Type())
		}
		applied = append(applied, res)
	}
	audit.Resolutions = applied

	out, err := json.Marshal(audit)
	if err != nil {
		return nil, eris.Wrap(err, "patch: marshal audit payload")
	}
	run := &model.ReconstructRun{
		ID:       b.RunID,
		TripID:   b.TripID,
		Kind:     b.Kind,
		Status:   model.RunStatusSuccess,
		Timezone: b.Timezone,
		Now:      b.Now.UTC(),
		RawInput: b.RawText,
		Output:   out,
	}
	if err := tx.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if b.PendingID != "" {
		if err := tx.DeletePending(ctx, b.PendingID); err != nil {
			return nil, err
		}
	}
	return applied, nil
}

func applyOne(ctx context.Context, tx store.Tx, b Batch, r Resolved) (AppliedOp, error) {
	res := AppliedOp{OpType: r.Op.Type(), TargetID: r.TargetID}

	switch op := r.Op.(type) {
	case CreateItem:
		it, err := upsertDraft(ctx, tx, b, op.Draft)
		if err != nil {
			return res, err
		}
		res.ItemID = it.ID

	case UpdateItem:
		target, err := loadTarget(ctx, tx, b.TripID, r.TargetID)
		if err != nil {
			return res, err
		}
		merged := *target
		op.Updates.MergeInto(&merged)
		// Timing that was entirely unknown and is now stated is no longer a guess.
		if target.StartLocalDate == "" && target.StartLocalTime == "" && op.Updates.SuppliesTiming() {
			merged.IsInferred = false
			if merged.Confidence < 0.9 {
				merged.Confidence = 0.9
			}
		}
		if target.State == model.StateConfirmed {
			merged.RecordPrevious(itinerary.Diff(target, &merged))
		}
		merged.StampRun(b.RunID)
		if err := tx.UpdateItem(ctx, &merged); err != nil {
			return res, err
		}
		res.ItemID = merged.ID

	case CancelItem:
		it, err := setState(ctx, tx, b, r.TargetID, model.StateCancelled)
		if err != nil {
			return res, err
		}
		res.ItemID = it.ID

	case DismissItem:
		it, err := setState(ctx, tx, b, r.TargetID, model.StateDismissed)
		if err != nil {
			return res, err
		}
		res.ItemID = it.ID

	case ReplaceItem:
		if _, err := setState(ctx, tx, b, r.TargetID, model.StateCancelled); err != nil {
			return res, err
		}
		it := op.Replacement.NewItem(b.TripID, model.SourceUser)
		it.StampRun(b.RunID)
		if err := tx.InsertItem(ctx, &it); err != nil {
			return res, err
		}
		res.ItemID = it.ID

	case NeedClarification:
		return res, eris.Wrap(ErrOperationDataMissing, "clarification requests cannot be applied")

	default:
		return res, eris.Wrapf(ErrOperationDataMissing, "unsupported operation %T", r.Op)
	}
	return res, nil
}

// upsertDraft inserts a user-sourced item, or updates the existing item
// with the same fingerprint in place.
func upsertDraft(ctx context.Context, tx store.Tx, b Batch, d itinerary.ItemDraft) (*model.TripItem, error) {
	it := d.NewItem(b.TripID, model.SourceUser)
	existing, err := tx.FindItemByFingerprint(ctx, b.TripID, it.Fingerprint)
	switch {
	case errors.Is(err, store.ErrNotFound):
		it.StampRun(b.RunID)
		if err := tx.InsertItem(ctx, &it); err != nil {
			return nil, err
		}
		return &it, nil
	case err != nil:
		return nil, err
	}

	if existing.State == model.StateConfirmed {
		existing.RecordPrevious(itinerary.Diff(existing, &it))
	}
	itinerary.CopyContent(existing, &it)
	existing.StampRun(b.RunID)
	if err := tx.UpdateItem(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func setState(ctx context.Context, tx store.Tx, b Batch, itemID string, state model.ItemState) (*model.TripItem, error) {
	it, err := loadTarget(ctx, tx, b.TripID, itemID)
	if err != nil {
		return nil, err
	}
	it.State = state
	it.StampRun(b.RunID)
	if err := tx.UpdateItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func loadTarget(ctx context.Context, tx store.Tx, tripID, itemID string) (*model.TripItem, error) {
	if itemID == "" {
		return nil, eris.Wrap(ErrTargetNotFound, "operation has no target")
	}
	it, err := tx.GetItem(ctx, tripID, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrTargetNotFound, "item %s", itemID)
	}
	return it, err
}

func textHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
