package patch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

func strp(s string) *string { return &s }

func TestWireOp_Decode(t *testing.T) {
	t.Parallel()

	kind := model.KindMeal
	draft := &itinerary.ItemDraft{Kind: model.KindMeal, Title: "Dinner at Zuni"}
	tests := []struct {
		name string
		in   WireOp
		want OpType
	}{
		{"create from replacement", WireOp{OpType: OpCreateItem, Replacement: draft}, OpCreateItem},
		{"create from updates", WireOp{OpType: OpCreateItem, Updates: &ItemUpdates{Kind: &kind, Title: strp("Lunch")}}, OpCreateItem},
		{"update", WireOp{OpType: OpUpdateItem, Updates: &ItemUpdates{Title: strp("x")}}, OpUpdateItem},
		{"cancel", WireOp{OpType: OpCancelItem}, OpCancelItem},
		{"dismiss", WireOp{OpType: OpDismissItem}, OpDismissItem},
		{"replace", WireOp{OpType: OpReplaceItem, Replacement: draft}, OpReplaceItem},
		{"clarify", WireOp{OpType: OpNeedClarification}, OpNeedClarification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := tt.in.Decode()
			require.NoError(t, err)
			assert.Equal(t, tt.want, op.Type())
		})
	}
}

func TestWireOp_DecodeMissingData(t *testing.T) {
	t.Parallel()

	tests := []WireOp{
		{OpType: OpCreateItem},
		{OpType: OpCreateItem, Updates: &ItemUpdates{Title: strp("no kind")}},
		{OpType: OpUpdateItem},
		{OpType: OpUpdateItem, Updates: &ItemUpdates{}},
		{OpType: OpReplaceItem},
		{OpType: "MERGE_ITEMS"},
	}
	for _, w := range tests {
		t.Run(string(w.OpType), func(t *testing.T) {
			_, err := w.Decode()
			assert.ErrorIs(t, err, ErrOperationDataMissing)
		})
	}
}

func TestWireOp_DecodeCarriesMeta(t *testing.T) {
	t.Parallel()

	w := WireOp{
		OpType:      OpCancelItem,
		TargetHints: &TargetHints{Kind: model.KindMeal, TitleKeywords: []string{"dinner"}},
		Confidence:  0.95,
		Reason:      "user cancelled",
	}
	op, err := w.Decode()
	require.NoError(t, err)
	assert.Equal(t, model.KindMeal, op.Meta().Hints.Kind)
	assert.Equal(t, 0.95, op.Meta().Confidence)
	assert.Equal(t, w, op.Meta().Wire())
	assert.True(t, Destructive(op))
}

func TestOpType_IntentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.IntentUpdate, OpUpdateItem.IntentType())
	assert.Equal(t, model.IntentCancel, OpCancelItem.IntentType())
	assert.Equal(t, model.IntentCancel, OpDismissItem.IntentType())
	assert.Equal(t, model.IntentReplace, OpReplaceItem.IntentType())
	assert.Equal(t, model.IntentUnknown, OpNeedClarification.IntentType())
	assert.Equal(t, model.IntentUnknown, OpCreateItem.IntentType())
}

func TestItemUpdates_MergeInto(t *testing.T) {
	t.Parallel()

	it := &model.TripItem{
		Kind:           model.KindFlight,
		Title:          "UA123 JFK to SFO",
		StartLocalDate: "2025-03-12",
		StartLocalTime: "19:35",
		StartTimezone:  "America/New_York",
		LocationText:   "JFK",
	}
	itinerary.Refresh(it)
	before := it.Fingerprint

	u := ItemUpdates{Start: &itinerary.TimePoint{LocalTime: "8:15 PM"}}
	u.MergeInto(it)

	assert.Equal(t, "2025-03-12", it.StartLocalDate)
	assert.Equal(t, "20:15", it.StartLocalTime)
	assert.Equal(t, "America/New_York", it.StartTimezone)
	assert.Equal(t, "UA123 JFK to SFO", it.Title)
	assert.NotEqual(t, before, it.Fingerprint)
	assert.Equal(t, itinerary.ItemFingerprint(it), it.Fingerprint)
}

func TestItemUpdates_MergeIntoKeepsUntouchedInstant(t *testing.T) {
	t.Parallel()

	it := &model.TripItem{
		Kind:           model.KindFlight,
		Title:          "UA123 JFK to SFO",
		StartLocalDate: "2025-03-12",
		StartLocalTime: "19:35",
		EndLocalDate:   "2025-03-12",
		EndLocalTime:   "23:05",
		LocationText:   "JFK",
	}
	itinerary.RefreshISO(it, "2025-03-12T19:35:00-04:00", "2025-03-12T23:05:00-07:00")
	require.NotNil(t, it.StartAt)
	require.NotNil(t, it.EndAt)
	start, end, fp := *it.StartAt, *it.EndAt, it.Fingerprint

	conf := 0.97
	u := ItemUpdates{Confidence: &conf}
	u.MergeInto(it)

	require.NotNil(t, it.StartAt)
	require.NotNil(t, it.EndAt)
	assert.Equal(t, start, *it.StartAt)
	assert.Equal(t, end, *it.EndAt)
	assert.Equal(t, fp, it.Fingerprint)
	assert.Equal(t, 0.97, it.Confidence)
}

func TestIntentSchema(t *testing.T) {
	t.Parallel()

	valid := `{"ops":[{"opType":"UPDATE_ITEM","targetHints":{"kind":"FLIGHT","localDate":"2025-03-12"},
		"updates":{"start":{"localTime":"20:15"}},"confidence":0.9,"reason":"time changed"}]}`
	in, issues, err := intentSchema.Validate(valid)
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, in.Ops, 1)

	_, issues, err = intentSchema.Validate(`{"ops":[]}`)
	require.NoError(t, err)
	assert.NotEmpty(t, issues)

	_, issues, err = intentSchema.Validate(`{"ops":[{"opType":"UPDATE_ITEM","confidence":0.9,"reason":"x"}]}`)
	require.NoError(t, err)
	require.NotEmpty(t, issues)
	assert.Equal(t, "ops[0]", issues[0].Path)

	_, issues, err = intentSchema.Validate(`{"ops":[{"opType":"UPDATE_ITEM","updates":{"start":{"localTime":"late"}},"confidence":0.9,"reason":"x"}]}`)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "ops[0].updates.start.localTime", issues[0].Path)

	tooMany := `{"ops":[` + repeatOp(7) + `]}`
	_, issues, err = intentSchema.Validate(tooMany)
	require.NoError(t, err)
	assert.NotEmpty(t, issues)
}

func repeatOp(n int) string {
	op := `{"opType":"CANCEL_ITEM","confidence":0.9,"reason":"x"}`
	out := op
	for i := 1; i < n; i++ {
		out += "," + op
	}
	return out
}

func TestDecodeStored(t *testing.T) {
	t.Parallel()

	w := WireOp{OpType: OpCancelItem, Confidence: 0.5, Reason: "r"}
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	got, err := DecodeStored(raw)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	_, err = DecodeStored([]byte("{"))
	assert.Error(t, err)
}
