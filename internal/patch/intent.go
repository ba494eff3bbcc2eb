package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// OpType is the wire tag of a patch operation.
type OpType string

const (
	OpCreateItem        OpType = "CREATE_ITEM"
	OpUpdateItem        OpType = "UPDATE_ITEM"
	OpCancelItem        OpType = "CANCEL_ITEM"
	OpDismissItem       OpType = "DISMISS_ITEM"
	OpReplaceItem       OpType = "REPLACE_ITEM"
	OpNeedClarification OpType = "NEED_CLARIFICATION"
)

// IntentType maps an operation to the coarse intent stored on a pending
// action.
func (t OpType) IntentType() model.IntentType {
	switch t {
	case OpUpdateItem:
		return model.IntentUpdate
	case OpCancelItem, OpDismissItem:
		return model.IntentCancel
	case OpReplaceItem:
		return model.IntentReplace
	default:
		return model.IntentUnknown
	}
}

// TargetHints describe which existing item an operation refers to.
type TargetHints struct {
	Kind             model.ItemKind `json:"kind,omitempty" validate:"omitempty,oneof=FLIGHT LODGING MEETING MEAL TRANSPORT ACTIVITY NOTE OTHER"`
	LocalDate        string         `json:"localDate,omitempty" jsonschema:"YYYY-MM-DD of the referenced item" validate:"omitempty,datetime=2006-01-02"`
	LocalTime        string         `json:"localTime,omitempty" jsonschema:"HH:MM of the referenced item as it is currently scheduled"`
	TitleKeywords    []string       `json:"titleKeywords,omitempty"`
	LocationKeywords []string       `json:"locationKeywords,omitempty"`
}

// ItemUpdates is a partial item. Nil fields keep their current value.
type ItemUpdates struct {
	Kind         *model.ItemKind      `json:"kind,omitempty" validate:"omitempty,oneof=FLIGHT LODGING MEETING MEAL TRANSPORT ACTIVITY NOTE OTHER"`
	Title        *string              `json:"title,omitempty"`
	Start        *itinerary.TimePoint `json:"start,omitempty"`
	End          *itinerary.TimePoint `json:"end,omitempty"`
	LocationText *string              `json:"locationText,omitempty"`
	IsInferred   *bool                `json:"isInferred,omitempty"`
	Confidence   *float64             `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// Empty reports whether no field is supplied.
func (u *ItemUpdates) Empty() bool {
	return u == nil || (u.Kind == nil && u.Title == nil && u.Start == nil && u.End == nil &&
		u.LocationText == nil && u.IsInferred == nil && u.Confidence == nil)
}

// SuppliesTiming reports whether the updates carry both a start date and a
// start time.
func (u *ItemUpdates) SuppliesTiming() bool {
	return u != nil && u.Start != nil &&
		strings.TrimSpace(u.Start.LocalDate) != "" && strings.TrimSpace(u.Start.LocalTime) != ""
}

// MergeInto overwrites the supplied fields of it and recomputes its derived
// fields. A time point the updates leave alone keeps its instant when its
// local values cannot produce one, so an instant that only came from an
// RFC3339 string survives unrelated edits.
func (u *ItemUpdates) MergeInto(it *model.TripItem) {
	prevStart, prevEnd := it.StartAt, it.EndAt
	if u.Kind != nil {
		it.Kind = *u.Kind
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) != "" {
		it.Title = strings.TrimSpace(*u.Title)
	}
	mergePoint(u.Start, &it.StartLocalDate, &it.StartLocalTime, &it.StartTimezone)
	mergePoint(u.End, &it.EndLocalDate, &it.EndLocalTime, &it.EndTimezone)
	if u.LocationText != nil {
		it.LocationText = strings.TrimSpace(*u.LocationText)
	}
	if u.IsInferred != nil {
		it.IsInferred = *u.IsInferred
	}
	if u.Confidence != nil {
		it.Confidence = itinerary.ClampConfidence(*u.Confidence)
	}
	var startISO, endISO string
	if u.Start != nil {
		startISO = u.Start.ISO
	}
	if u.End != nil {
		endISO = u.End.ISO
	}
	itinerary.RefreshISO(it, startISO, endISO)
	kept := false
	if u.Start == nil && it.StartAt == nil && prevStart != nil {
		it.StartAt, kept = prevStart, true
	}
	if u.End == nil && it.EndAt == nil && prevEnd != nil {
		it.EndAt, kept = prevEnd, true
	}
	if kept {
		it.Fingerprint = itinerary.ItemFingerprint(it)
	}
}

func mergePoint(tp *itinerary.TimePoint, date, clock, zone *string) {
	if tp == nil {
		return
	}
	if v := strings.TrimSpace(tp.LocalDate); v != "" {
		if n, ok := itinerary.NormalizeLocalDate(v); ok {
			v = n
		}
		*date = v
	}
	if v := strings.TrimSpace(tp.LocalTime); v != "" {
		if n, ok := itinerary.NormalizeLocalTime(v); ok {
			v = n
		}
		*clock = v
	}
	if v := strings.TrimSpace(tp.Timezone); v != "" {
		*zone = v
	}
}

// draft turns updates into a full item when they name at least a kind and
// a title.
func (u *ItemUpdates) draft() (itinerary.ItemDraft, bool) {
	if u == nil || u.Kind == nil || u.Title == nil || strings.TrimSpace(*u.Title) == "" {
		return itinerary.ItemDraft{}, false
	}
	d := itinerary.ItemDraft{Kind: *u.Kind, Title: *u.Title, Start: u.Start, End: u.End, Confidence: 1}
	if u.LocationText != nil {
		d.LocationText = *u.LocationText
	}
	if u.IsInferred != nil {
		d.IsInferred = *u.IsInferred
	}
	if u.Confidence != nil {
		d.Confidence = *u.Confidence
	}
	return d, true
}

// WireOp is one operation exactly as the oracle returns it.
type WireOp struct {
	OpType      OpType               `json:"opType" validate:"oneof=CREATE_ITEM UPDATE_ITEM CANCEL_ITEM DISMISS_ITEM REPLACE_ITEM NEED_CLARIFICATION"`
	TargetHints *TargetHints         `json:"targetHints,omitempty"`
	Updates     *ItemUpdates         `json:"updates,omitempty" jsonschema:"fields to change (UPDATE_ITEM, NEED_CLARIFICATION) or the new item (CREATE_ITEM)"`
	Replacement *itinerary.ItemDraft `json:"replacement,omitempty" jsonschema:"the new item (REPLACE_ITEM, CREATE_ITEM)"`
	Confidence  float64              `json:"confidence" validate:"gte=0,lte=1"`
	Reason      string               `json:"reason" validate:"max=500"`
}

// Intent is the oracle's reading of a free-text update.
type Intent struct {
	Ops []WireOp `json:"ops" validate:"min=1,max=6,dive"`
}

// Operation is a decoded patch operation. The set of implementations is
// closed: CreateItem, UpdateItem, CancelItem, DismissItem, ReplaceItem and
// NeedClarification.
type Operation interface {
	Type() OpType
	Meta() OpMeta
	operation()
}

// OpMeta is shared by every operation.
type OpMeta struct {
	Hints      TargetHints
	Confidence float64
	Reason     string
	wire       WireOp
}

// Meta returns the shared fields.
func (m OpMeta) Meta() OpMeta { return m }

// Wire returns the operation as received, for storage on a pending action.
func (m OpMeta) Wire() WireOp { return m.wire }

// CreateItem adds a new item.
type CreateItem struct {
	OpMeta
	Draft itinerary.ItemDraft
}

// UpdateItem changes fields of an existing item.
type UpdateItem struct {
	OpMeta
	Updates ItemUpdates
}

// CancelItem marks an existing item CANCELLED.
type CancelItem struct{ OpMeta }

// DismissItem marks an existing item DISMISSED.
type DismissItem struct{ OpMeta }

// ReplaceItem cancels an existing item and creates its replacement.
type ReplaceItem struct {
	OpMeta
	Replacement itinerary.ItemDraft
}

// NeedClarification is the oracle declining to act without a human.
type NeedClarification struct {
	OpMeta
	Updates *ItemUpdates
}

func (CreateItem) Type() OpType        { return OpCreateItem }
func (UpdateItem) Type() OpType        { return OpUpdateItem }
func (CancelItem) Type() OpType        { return OpCancelItem }
func (DismissItem) Type() OpType       { return OpDismissItem }
func (ReplaceItem) Type() OpType       { return OpReplaceItem }
func (NeedClarification) Type() OpType { return OpNeedClarification }

func (CreateItem) operation()        {}
func (UpdateItem) operation()        {}
func (CancelItem) operation()        {}
func (DismissItem) operation()       {}
func (ReplaceItem) operation()       {}
func (NeedClarification) operation() {}

// Destructive reports whether op cancels, dismisses or replaces an item.
func Destructive(op Operation) bool {
	switch op.(type) {
	case CancelItem, DismissItem, ReplaceItem:
		return true
	}
	return false
}

// Decode validates the type-specific payload of w and returns the matching
// Operation.
func (w WireOp) Decode() (Operation, error) {
	meta := OpMeta{Confidence: w.Confidence, Reason: w.Reason, wire: w}
	if w.TargetHints != nil {
		meta.Hints = *w.TargetHints
	}

	switch w.OpType {
	case OpCreateItem:
		if w.Replacement != nil {
			return CreateItem{OpMeta: meta, Draft: *w.Replacement}, nil
		}
		if d, ok := w.Updates.draft(); ok {
			return CreateItem{OpMeta: meta, Draft: d}, nil
		}
		return nil, eris.Wrap(ErrOperationDataMissing, "CREATE_ITEM needs replacement or updates with kind and title")
	case OpUpdateItem:
		if w.Updates.Empty() {
			return nil, eris.Wrap(ErrOperationDataMissing, "UPDATE_ITEM needs updates")
		}
		return UpdateItem{OpMeta: meta, Updates: *w.Updates}, nil
	case OpCancelItem:
		return CancelItem{OpMeta: meta}, nil
	case OpDismissItem:
		return DismissItem{OpMeta: meta}, nil
	case OpReplaceItem:
		if w.Replacement == nil {
			return nil, eris.Wrap(ErrOperationDataMissing, "REPLACE_ITEM needs replacement")
		}
		return ReplaceItem{OpMeta: meta, Replacement: *w.Replacement}, nil
	case OpNeedClarification:
		return NeedClarification{OpMeta: meta, Updates: w.Updates}, nil
	default:
		return nil, eris.Wrapf(ErrOperationDataMissing, "unknown op type %q", w.OpType)
	}
}

// DecodeStored decodes an operation saved on a pending action.
func DecodeStored(raw json.RawMessage) (WireOp, error) {
	var w WireOp
	if err := json.Unmarshal(raw, &w); err != nil {
		return WireOp{}, eris.Wrap(err, "patch: decode stored operation")
	}
	return w, nil
}

func checkIntent(in *Intent) []structured.Issue {
	var issues []structured.Issue
	for i, w := range in.Ops {
		path := fmt.Sprintf("ops[%d]", i)
		if _, err := w.Decode(); err != nil {
			issues = append(issues, structured.Issue{Path: path, Message: err.Error()})
		}
		if w.Updates != nil {
			issues = append(issues, w.Updates.Start.Problems(path+".updates.start")...)
			issues = append(issues, w.Updates.End.Problems(path+".updates.end")...)
		}
		if w.Replacement != nil {
			issues = append(issues, w.Replacement.Problems(path+".replacement")...)
		}
		if h := w.TargetHints; h != nil && h.LocalTime != "" {
			if _, ok := itinerary.NormalizeLocalTime(h.LocalTime); !ok {
				issues = append(issues, structured.Issue{Path: path + ".targetHints.localTime", Message: "must be HH:MM, got " + h.LocalTime})
			}
		}
	}
	return issues
}

var intentSchema = structured.MustSchema("patch_intent", checkIntent)
