// Package patch reconciles free-text trip updates against the stored
// itinerary. It resolves each operation the oracle proposes to a concrete
// item, applies it when policy allows and otherwise defers the whole batch
// to a human as a pending action.
package patch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/config"
	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/oracle"
	"github.com/hsiehdog/travel-coordination-back/internal/pipeline"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// ErrEmptyText is returned for an ingest with no update text.
var ErrEmptyText = eris.New("patch: update text is empty")

// Status is the outcome of an ingest or resolution.
type Status string

const (
	StatusApplied            Status = "APPLIED"
	StatusNeedsClarification Status = "NEEDS_CLARIFICATION"
	StatusReconstructed      Status = "RECONSTRUCTED"
	StatusDiscarded          Status = "DISCARDED"
)

// Mode forces an ingest down one path.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeReconstruct Mode = "reconstruct"
	ModePatch       Mode = "patch"
)

// IngestRequest is one free-text update for a trip.
type IngestRequest struct {
	TripID   string    `json:"-"`
	Text     string    `json:"text" validate:"required"`
	Timezone string    `json:"timezone,omitempty" validate:"omitempty,timezone"`
	Now      time.Time `json:"now,omitempty"`
	Mode     Mode      `json:"mode,omitempty" validate:"omitempty,oneof=auto reconstruct patch"`
}

// Result is the outcome of Ingest or ResolvePending. Failures are returned
// as errors, never as a Result.
type Result struct {
	Status         Status                      `json:"status"`
	RunID          string                      `json:"runId,omitempty"`
	Applied        []AppliedOp                 `json:"applied,omitempty"`
	Pending        *model.PendingAction        `json:"pending,omitempty"`
	Reconstruction *pipeline.ReconstructResult `json:"reconstruction,omitempty"`
	Diagnostics    *pipeline.Diagnostics       `json:"diagnostics,omitempty"`
}

// Engine routes updates to reconstruction or patching and owns the
// per-trip serialization of both.
type Engine struct {
	store         store.Store
	validator     *structured.Validator
	reconstructor *pipeline.Reconstructor
	refresher     *pipeline.DiagnosticsRefresher
	maxPatchChars int
	pendingTTL    time.Duration
	locks         tripLocks
}

// NewEngine wires an Engine around one oracle gateway.
func NewEngine(st store.Store, gw oracle.Gateway, cfg config.PatchConfig) *Engine {
	v := structured.NewValidator(gw)
	maxChars := cfg.MaxPatchChars
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Engine{
		store:         st,
		validator:     v,
		reconstructor: pipeline.NewReconstructor(st, v),
		refresher:     pipeline.NewDiagnosticsRefresher(st, v),
		maxPatchChars: maxChars,
		pendingTTL:    time.Duration(cfg.PendingTTLHours) * time.Hour,
	}
}

// Ingest reconciles req.Text with the trip. Trips without items, long
// dumps and ModeReconstruct go through full reconstruction; everything
// else is treated as a patch.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	unlock := e.locks.lock(req.TripID)
	defer unlock()

	trip, err := e.store.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if req.Timezone == "" {
		req.Timezone = trip.Timezone
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}

	items, err := e.store.ListItems(ctx, trip.ID, store.ExcludeDismissed())
	if err != nil {
		return nil, eris.Wrap(err, "patch: list items")
	}

	if e.shouldReconstruct(req, len(items)) {
		rr, err := e.reconstructor.Reconstruct(ctx, pipeline.ReconstructRequest{
			TripID:   trip.ID,
			Text:     req.Text,
			Timezone: req.Timezone,
			Now:      req.Now,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusReconstructed, RunID: rr.Run.ID, Reconstruction: rr}, nil
	}
	return e.patch(ctx, req, items)
}

func (e *Engine) shouldReconstruct(req IngestRequest, itemCount int) bool {
	switch req.Mode {
	case ModeReconstruct:
		return true
	case ModePatch:
		return false
	}
	return itemCount == 0 || len([]rune(req.Text)) >= e.maxPatchChars
}

func (e *Engine) patch(ctx context.Context, req IngestRequest, items []model.TripItem) (*Result, error) {
	runID := uuid.NewString()
	log := zap.L().With(zap.String("trip_id", req.TripID), zap.String("run_id", runID))

	prompt, err := buildPatchPrompt(itinerary.Snapshots(items), req.Text, req.Timezone, req.Now)
	if err != nil {
		return nil, eris.Wrap(err, "patch: build prompt")
	}
	gen, err := structured.Generate(ctx, e.validator, structured.Request{
		System:  patchSystemPrompt,
		User:    prompt,
		Purpose: "patch",
	}, intentSchema)
	if err != nil {
		run := &model.ReconstructRun{
			ID: runID, TripID: req.TripID, Kind: model.RunKindPatch,
			Timezone: req.Timezone, Now: req.Now.UTC(), RawInput: req.Text,
		}
		if recErr := pipeline.RecordFailure(ctx, e.store, run, err); recErr != nil {
			log.Error("patch: record failed run", zap.Error(recErr))
		}
		return nil, err
	}

	ops := make([]Operation, 0, len(gen.Value.Ops))
	for _, w := range gen.Value.Ops {
		op, err := w.Decode()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	p := planOps(ops, items, req.Text)
	if p.clarify != nil {
		log.Info("patch: deferring to clarification",
			zap.String("op_type", string(p.clarify.op.Type())),
			zap.String("reason", p.clarify.reason),
			zap.Int("candidates", len(p.clarify.candidates)),
		)
		return e.deferBatch(ctx, runID, req, ops, p.clarify)
	}

	batch := Batch{
		RunID:    runID,
		TripID:   req.TripID,
		Kind:     model.RunKindPatch,
		RawText:  req.Text,
		Timezone: req.Timezone,
		Now:      req.Now,
		Ops:      p.ops,
	}
	applied, err := e.applyBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	log.Info("patch: applied", zap.Int("ops", len(applied)))

	return &Result{
		Status:      StatusApplied,
		RunID:       runID,
		Applied:     applied,
		Diagnostics: e.refreshDiagnostics(ctx, req.TripID, req.Text, req.Timezone, req.Now),
	}, nil
}

// applyBatch runs Apply in a transaction, retrying once on a fingerprint
// conflict.
func (e *Engine) applyBatch(ctx context.Context, b Batch) ([]AppliedOp, error) {
	var applied []AppliedOp
	err := store.RetryOnConflict(ctx, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(tx store.Tx) error {
			var err error
			applied, err = Apply(ctx, tx, b)
			return err
		})
	})
	return applied, err
}

// plan is either every operation bound to its target, or the first
// operation that needs a human.
type plan struct {
	ops     []Resolved
	clarify *clarification
}

type clarification struct {
	op         Operation
	candidates []Scored
	reason     string
}

func planOps(ops []Operation, items []model.TripItem, rawText string) plan {
	snaps := itinerary.Snapshots(items)
	byID := make(map[string]*model.TripItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	var p plan
	for _, op := range ops {
		if _, ok := op.(CreateItem); ok {
			p.ops = append(p.ops, Resolved{Op: op})
			continue
		}

		res := Resolve(op.Meta().Hints, snaps, rawText)
		if _, ok := op.(NeedClarification); ok {
			reason := op.Meta().Reason
			if reason == "" {
				reason = "the update needs clarification"
			}
			return plan{clarify: &clarification{op: op, candidates: res.Candidates, reason: reason}}
		}
		if res.Target == nil {
			reason := "no item matches the update"
			if res.Ambiguous {
				reason = "several items match the update"
			}
			return plan{clarify: &clarification{op: op, candidates: res.Candidates, reason: reason}}
		}

		v := Evaluate(op, byID[res.Target.ID], rawText)
		if !v.Allowed {
			return plan{clarify: &clarification{op: op, candidates: res.Candidates, reason: v.Reason}}
		}
		p.ops = append(p.ops, Resolved{Op: op, TargetID: res.Target.ID})
	}
	return p
}

// deferBatch stores a pending action for c and an audit run recording that
// nothing was applied.
func (e *Engine) deferBatch(ctx context.Context, runID string, req IngestRequest, ops []Operation, c *clarification) (*Result, error) {
	wire, err := json.Marshal(c.op.Meta().Wire())
	if err != nil {
		return nil, eris.Wrap(err, "patch: marshal pending operation")
	}
	candidates := make([]model.Candidate, len(c.candidates))
	for i, s := range c.candidates {
		candidates[i] = s.Candidate()
	}
	pa := &model.PendingAction{
		ID:         uuid.NewString(),
		TripID:     req.TripID,
		IntentType: c.op.Type().IntentType(),
		RawText:    req.Text,
		Candidates: candidates,
		Operation:  wire,
		Reason:     c.reason,
	}
	if e.pendingTTL > 0 {
		exp := req.Now.Add(e.pendingTTL).UTC()
		pa.ExpiresAt = &exp
	}

	audit := auditPayload{
		Type:       model.RunKindPatch,
		Status:     StatusNeedsClarification,
		TextSHA256: textHash(req.Text),
		PendingID:  pa.ID,
	}
	for _, op := range ops {
		m := op.Meta()
		audit.Ops = append(audit.Ops, auditOp{Type: op.Type(), Confidence: m.Confidence, Reason: m.Reason})
	}
	out, err := json.Marshal(audit)
	if err != nil {
		return nil, eris.Wrap(err, "patch: marshal audit payload")
	}
	run := &model.ReconstructRun{
		ID:       runID,
		TripID:   req.TripID,
		Kind:     model.RunKindPatch,
		Status:   model.RunStatusSuccess,
		Timezone: req.Timezone,
		Now:      req.Now.UTC(),
		RawInput: req.Text,
		Output:   out,
	}

	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreatePending(ctx, pa); err != nil {
			return err
		}
		return tx.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, eris.Wrap(err, "patch: store pending action")
	}
	return &Result{Status: StatusNeedsClarification, RunID: runID, Pending: pa}, nil
}

// refreshDiagnostics is best-effort: failures are logged, never returned.
func (e *Engine) refreshDiagnostics(ctx context.Context, tripID, trigger, tz string, now time.Time) *pipeline.Diagnostics {
	d, err := e.refresher.Refresh(ctx, pipeline.RefreshRequest{
		TripID:   tripID,
		Trigger:  trigger,
		Timezone: tz,
		Now:      now,
	})
	switch {
	case errors.Is(err, pipeline.ErrNoReconstruction):
		zap.L().Debug("patch: no reconstruction to refresh", zap.String("trip_id", tripID))
	case err != nil:
		zap.L().Warn("patch: diagnostics refresh failed", zap.String("trip_id", tripID), zap.Error(err))
	}
	return d
}

// ConfirmItem marks an item CONFIRMED.
func (e *Engine) ConfirmItem(ctx context.Context, tripID, itemID string) (*model.TripItem, error) {
	unlock := e.locks.lock(tripID)
	defer unlock()

	var confirmed *model.TripItem
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		it, err := tx.GetItem(ctx, tripID, itemID)
		if err != nil {
			return err
		}
		it.State = model.StateConfirmed
		if err := tx.UpdateItem(ctx, it); err != nil {
			return err
		}
		confirmed = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}
