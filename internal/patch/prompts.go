package patch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hsiehdog/travel-coordination-back/internal/itinerary"
)

const patchSystemPrompt = `You are a travel coordinator applying a short update to an existing itinerary. Translate the update into between 1 and 6 operations.

Operations (opType):
- CREATE_ITEM: a new item not in the itinerary. Put the full item in replacement.
- UPDATE_ITEM: change fields of one existing item. Put only the changed fields in updates.
- CANCEL_ITEM: the item will no longer happen.
- DISMISS_ITEM: the item was never real or is irrelevant.
- REPLACE_ITEM: the item is superseded by a different booking. Put the new item in replacement.
- NEED_CLARIFICATION: you cannot tell which item is meant or what should change.

For every operation except CREATE_ITEM fill targetHints so the existing item can be found: its kind, its current localDate and localTime, and distinctive title and location keywords. Describe the item as it is now, not as it will be.

Dates are YYYY-MM-DD and times are HH:MM (24-hour) local to the event. Resolve relative dates against the client's current time.
confidence (0-1) is how sure you are that the operation is what the user wants. reason is one short sentence.
Never invent details that are not in the update or the itinerary.

Return only a JSON object of the form {"ops": [...]}. No prose, no Markdown.`

const patchUserPrompt = `Client timezone: %s
Current time: %s

Current itinerary items:
%s

Update:
--- BEGIN UPDATE ---
%s
--- END UPDATE ---`

func buildPatchPrompt(snaps []itinerary.Snapshot, text, tz string, now time.Time) (string, error) {
	items, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return "", err
	}
	if loc, lerr := time.LoadLocation(tz); lerr == nil && tz != "" {
		now = now.In(loc)
	}
	return fmt.Sprintf(patchUserPrompt, tz, now.Format(time.RFC3339), items, text), nil
}
