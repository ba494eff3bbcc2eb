package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

func TestEvaluate_NoAlerts(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Total: 10, Success: 10, ByKind: map[model.RunKind]KindStats{}}
	assert.Empty(t, Evaluate(snap, DefaultThresholds()))
}

func TestEvaluate_FailureRate(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Total: 10, Failed: 4, FailRate: 0.4, ByKind: map[model.RunKind]KindStats{}}
	alerts := Evaluate(snap, DefaultThresholds())
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertFailureRate, alerts[0].Type)
		assert.Equal(t, "high", alerts[0].Severity)
	}

	// Too few runs to judge.
	snap = &Snapshot{Total: 2, Failed: 2, FailRate: 1, ByKind: map[model.RunKind]KindStats{}}
	assert.Empty(t, Evaluate(snap, DefaultThresholds()))
}

func TestEvaluate_PendingBacklogAndClarifications(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{
		Total:          6,
		Success:        6,
		OpenPending:    12,
		Clarifications: 4,
		ByKind:         map[model.RunKind]KindStats{model.RunKindPatch: {Total: 6}},
	}
	alerts := Evaluate(snap, DefaultThresholds())
	types := make([]AlertType, 0, len(alerts))
	for _, a := range alerts {
		types = append(types, a.Type)
	}
	assert.ElementsMatch(t, []AlertType{AlertPendingBacklog, AlertClarifyingRatio}, types)
}

func TestEvaluate_DisabledThresholds(t *testing.T) {
	t.Parallel()

	snap := &Snapshot{Total: 100, Failed: 100, FailRate: 1, OpenPending: 100, ByKind: map[model.RunKind]KindStats{}}
	assert.Empty(t, Evaluate(snap, Thresholds{}))
}
