package model

import (
	"encoding/json"
	"time"
)

// IntentType summarizes what a deferred operation wanted to do.
type IntentType string

const (
	IntentUpdate  IntentType = "UPDATE"
	IntentCancel  IntentType = "CANCEL"
	IntentReplace IntentType = "REPLACE"
	IntentUnknown IntentType = "UNKNOWN"
)

// Candidate is one item a human may pick to resolve a pending action.
type Candidate struct {
	ItemID    string   `json:"itemId" yaml:"item_id"`
	Kind      ItemKind `json:"kind" yaml:"kind"`
	Title     string   `json:"title" yaml:"title"`
	LocalDate string   `json:"localDate,omitempty" yaml:"local_date,omitempty"`
	LocalTime string   `json:"localTime,omitempty" yaml:"local_time,omitempty"`
	Location  string   `json:"locationText,omitempty" yaml:"location_text,omitempty"`
	Score     float64  `json:"score" yaml:"score"`
	Reason    string   `json:"reason" yaml:"reason"`
}

// PendingAction is a durable clarification request. Operation holds the
// original unresolved operation exactly as the oracle produced it.
type PendingAction struct {
	ID         string          `json:"id" yaml:"id"`
	TripID     string          `json:"trip_id" yaml:"trip_id"`
	IntentType IntentType      `json:"intent_type" yaml:"intent_type"`
	RawText    string          `json:"raw_text" yaml:"raw_text"`
	Candidates []Candidate     `json:"candidates" yaml:"candidates"`
	Operation  json.RawMessage `json:"operation" yaml:"-"`
	Reason     string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	CreatedAt  time.Time       `json:"created_at" yaml:"created_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// HasCandidate reports whether itemID is among the stored candidates.
func (p *PendingAction) HasCandidate(itemID string) bool {
	for _, c := range p.Candidates {
		if c.ItemID == itemID {
			return true
		}
	}
	return false
}
