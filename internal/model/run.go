package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the outcome of one oracle invocation.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// RunKind distinguishes the flow that produced a run.
type RunKind string

const (
	RunKindReconstruct RunKind = "RECONSTRUCT"
	RunKindPatch       RunKind = "PATCH"
	RunKindDiagnostics RunKind = "DIAGNOSTICS"
	RunKindResolve     RunKind = "RESOLVE"
)

// ReconstructRun is the append-only audit record of one oracle invocation.
// Output holds the structured result on success or debug diagnostics on
// failure.
type ReconstructRun struct {
	ID        string          `json:"id" yaml:"id"`
	TripID    string          `json:"trip_id,omitempty" yaml:"trip_id,omitempty"`
	Kind      RunKind         `json:"kind" yaml:"kind"`
	Status    RunStatus       `json:"status" yaml:"status"`
	Timezone  string          `json:"timezone" yaml:"timezone"`
	Now       time.Time       `json:"now" yaml:"now"`
	RawInput  string          `json:"raw_input" yaml:"raw_input"`
	Output    json.RawMessage `json:"output,omitempty" yaml:"-"`
	CreatedAt time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" yaml:"updated_at"`
}
