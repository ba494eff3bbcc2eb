package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate     AlertType = "failure_rate"
	AlertPendingBacklog  AlertType = "pending_backlog"
	AlertClarifyingRatio AlertType = "clarification_ratio"
)

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Thresholds configures Evaluate. Zero values disable a check.
type Thresholds struct {
	FailureRate        float64
	MinRuns            int
	PendingBacklog     int
	ClarificationRatio float64
}

// DefaultThresholds returns the thresholds used by the CLI.
func DefaultThresholds() Thresholds {
	return Thresholds{FailureRate: 0.25, MinRuns: 5, PendingBacklog: 10, ClarificationRatio: 0.5}
}

// Evaluate checks the snapshot against th and returns any alerts.
func Evaluate(snap *Snapshot, th Thresholds) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if th.FailureRate > 0 && snap.Total >= th.MinRuns && snap.FailRate > th.FailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("run failure rate %.1f%% exceeds %.1f%%",
				snap.FailRate*100, th.FailureRate*100),
			Details: map[string]any{
				"failed":          snap.Failed,
				"total":           snap.Total,
				"failure_classes": snap.FailureClasses,
			},
			Timestamp: now,
		})
	}

	if th.PendingBacklog > 0 && snap.OpenPending >= th.PendingBacklog {
		alerts = append(alerts, Alert{
			Type:      AlertPendingBacklog,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d pending actions await a human", snap.OpenPending),
			Details:   map[string]any{"open_pending": snap.OpenPending},
			Timestamp: now,
		})
	}

	patchRuns := snap.ByKind[model.RunKindPatch]
	patches := patchRuns.Total - patchRuns.Failed
	if th.ClarificationRatio > 0 && patches >= th.MinRuns {
		ratio := float64(snap.Clarifications) / float64(patches)
		if ratio > th.ClarificationRatio {
			alerts = append(alerts, Alert{
				Type:     AlertClarifyingRatio,
				Severity: "low",
				Message: fmt.Sprintf("%.1f%% of patches needed clarification (threshold %.1f%%)",
					ratio*100, th.ClarificationRatio*100),
				Details:   map[string]any{"clarifications": snap.Clarifications, "patches": patches},
				Timestamp: now,
			})
		}
	}

	for _, a := range alerts {
		zap.L().Warn("monitoring: alert",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("trip_id", snap.TripID),
			zap.String("message", a.Message),
		)
	}
	return alerts
}
