package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
	"github.com/hsiehdog/travel-coordination-back/internal/structured"
)

// MaxDebugChars bounds each raw output and issue list stored on a FAILED
// run.
const MaxDebugChars = 20000

type debugAttempt struct {
	Raw        string `json:"raw"`
	ParseError string `json:"parseError,omitempty"`
	Issues     string `json:"issues,omitempty"`
}

type failureOutput struct {
	Type     string         `json:"type"`
	Error    string         `json:"error"`
	Schema   string         `json:"schema,omitempty"`
	Attempts []debugAttempt `json:"attempts,omitempty"`
}

// failurePayload builds the bounded debug output for a failed generation.
func failurePayload(kind model.RunKind, genErr error) (json.RawMessage, error) {
	out := failureOutput{Type: string(kind), Error: truncate(genErr.Error(), MaxDebugChars)}
	if ge, ok := structured.IsGenerationError(genErr); ok {
		out.Schema = ge.Schema
		for _, a := range ge.Attempts {
			issues := make([]string, len(a.Issues))
			for i, is := range a.Issues {
				issues[i] = is.String()
			}
			out.Attempts = append(out.Attempts, debugAttempt{
				Raw:        truncate(a.Raw, MaxDebugChars),
				ParseError: truncate(a.ParseError, MaxDebugChars),
				Issues:     truncate(strings.Join(issues, "\n"), MaxDebugChars),
			})
		}
	}
	b, err := json.Marshal(out)
	return b, eris.Wrap(err, "pipeline: marshal failure payload")
}

// RecordFailure writes a FAILED run for genErr. It runs detached from ctx
// cancellation so a timed-out request is still recorded.
func RecordFailure(ctx context.Context, st store.Queries, run *model.ReconstructRun, genErr error) error {
	payload, err := failurePayload(run.Kind, genErr)
	if err != nil {
		return err
	}
	failed := *run
	failed.Status = model.RunStatusFailed
	failed.Output = payload
	return st.CreateRun(context.WithoutCancel(ctx), &failed)
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
