package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
)

const reconstructSystemPrompt = `You are a meticulous travel coordinator. You turn messy trip notes, confirmation emails and chat snippets into a structured itinerary.

Rules:
- Only include items that are stated or strongly implied by the text. Never invent bookings, times or places.
- kind is one of FLIGHT, LODGING, MEETING, MEAL, TRANSPORT, ACTIVITY, NOTE, OTHER.
- Dates are YYYY-MM-DD and times are HH:MM (24-hour) in the local time of the place where the event happens.
- Set timezone to an IANA zone when it is stated or can be inferred from an airport or city. Leave it empty otherwise. Only fill iso when timezone is known.
- Set isInferred to true when any part of the item (date, time, place) was guessed rather than stated, and lower confidence accordingly.
- confidence is between 0 and 1 and reflects how certain the item is as written.
- Resolve relative dates ("tomorrow", "Friday") against the client's current time and timezone.
- risks flag tight connections, overlaps, missing lodging and similar problems, with severity LOW, MEDIUM or HIGH.
- executiveSummary is 2-3 sentences.

Return only a JSON object. No prose, no Markdown.`

const reconstructUserPrompt = `Client timezone: %s
Current time: %s

Reconstruct the itinerary from the following text.

--- BEGIN TEXT ---
%s
--- END TEXT ---`

const diagnosticsSystemPrompt = `You are a travel coordinator reviewing an itinerary that was just edited. Refresh only the narrative fields: executiveSummary (2-3 sentences), destinationSummary, risks (severity LOW, MEDIUM or HIGH), assumptions and missingInfo. Base them strictly on the items provided. Return only a JSON object. No prose, no Markdown.`

const diagnosticsUserPrompt = `Client timezone: %s
Current time: %s

Current items:
%s

Previous diagnostics:
%s

Produce refreshed diagnostics.`

func formatNow(now time.Time, tz string) string {
	if loc, err := time.LoadLocation(tz); err == nil && tz != "" {
		now = now.In(loc)
	}
	return now.Format(time.RFC3339)
}

func buildReconstructPrompt(text, tz string, now time.Time) string {
	return fmt.Sprintf(reconstructUserPrompt, tz, formatNow(now, tz), text)
}

func buildDiagnosticsPrompt(snaps []itinerary.Snapshot, prev Diagnostics, tz string, now time.Time) (string, error) {
	items, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return "", err
	}
	previous, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(diagnosticsUserPrompt, tz, formatNow(now, tz), items, previous), nil
}
