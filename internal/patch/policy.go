package patch

import (
	"regexp"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// Confidence floors below which an operation without explicit phrasing is
// deferred to a human.
const (
	DestructiveMinConfidence = 0.85
	UpdateMinConfidence      = 0.65
)

var destructiveRe = regexp.MustCompile(`(?i)\b(cancel(?:led|ed|lation)?|moved to|changed to|new reservation|replaced by|instead|rescheduled)\b`)

// HasDestructivePhrasing reports whether text explicitly asks for an item
// to be cancelled, moved or replaced.
func HasDestructivePhrasing(text string) bool {
	return destructiveRe.MatchString(text)
}

// Verdict is the policy decision for one resolved operation.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Evaluate decides whether op may be applied to target without asking.
// target is nil for operations that do not touch an existing item.
func Evaluate(op Operation, target *model.TripItem, rawText string) Verdict {
	if HasDestructivePhrasing(rawText) {
		return Verdict{Allowed: true}
	}
	conf := op.Meta().Confidence
	switch {
	case Destructive(op) && target != nil && target.State == model.StateConfirmed:
		return Verdict{Reason: "target is confirmed and the update does not explicitly cancel, move or replace it"}
	case Destructive(op) && conf < DestructiveMinConfidence:
		return Verdict{Reason: "destructive change with low confidence"}
	case op.Type() == OpUpdateItem && conf < UpdateMinConfidence:
		return Verdict{Reason: "update with low confidence"}
	}
	return Verdict{Allowed: true}
}
