package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

var (
	// ErrNotFound is returned when a trip, item, run or pending action does
	// not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a write hits the (trip_id, fingerprint)
	// unique constraint. Callers may retry.
	ErrConflict = eris.New("store: fingerprint conflict")
)

// ItemFilter narrows ListItems. An empty States slice returns every item.
type ItemFilter struct {
	States []model.ItemState `json:"states,omitempty"`
}

// ExcludeDismissed is the filter used for resolution and snapshots.
func ExcludeDismissed() ItemFilter {
	return ItemFilter{States: []model.ItemState{
		model.StateProposed, model.StateConfirmed, model.StateCancelled,
	}}
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	TripID string        `json:"trip_id,omitempty"`
	Kind   model.RunKind `json:"kind,omitempty"`
	Limit  int           `json:"limit,omitempty"`
	Offset int           `json:"offset,omitempty"`
}

// Queries is the read/write surface available both on the store and inside
// a transaction.
type Queries interface {
	// Trips
	CreateTrip(ctx context.Context, trip *model.Trip) error
	GetTrip(ctx context.Context, tripID string) (*model.Trip, error)

	// Items
	ListItems(ctx context.Context, tripID string, filter ItemFilter) ([]model.TripItem, error)
	GetItem(ctx context.Context, tripID, itemID string) (*model.TripItem, error)
	FindItemByFingerprint(ctx context.Context, tripID, fingerprint string) (*model.TripItem, error)
	InsertItem(ctx context.Context, item *model.TripItem) error
	UpdateItem(ctx context.Context, item *model.TripItem) error

	// Runs
	CreateRun(ctx context.Context, run *model.ReconstructRun) error
	GetRun(ctx context.Context, runID string) (*model.ReconstructRun, error)
	LatestRun(ctx context.Context, tripID string, kind model.RunKind) (*model.ReconstructRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconstructRun, error)
	UpdateRunOutput(ctx context.Context, runID string, output json.RawMessage) error

	// Pending actions
	CreatePending(ctx context.Context, p *model.PendingAction) error
	GetPending(ctx context.Context, tripID, pendingID string) (*model.PendingAction, error)
	ListPending(ctx context.Context, tripID string) ([]model.PendingAction, error)
	DeletePending(ctx context.Context, pendingID string) error
}

// Tx is a Queries bound to one database transaction.
type Tx interface {
	Queries
}

// Store defines the persistence interface for the reconciliation engine.
type Store interface {
	Queries

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}
