package store

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// Column lists shared by both dialects. Scan order matches.
const (
	tripColumns = `id, user_id, title, timezone, created_at`

	itemColumns = `id, trip_id, kind, title,
	start_local_date, start_local_time, start_timezone, start_at,
	end_local_date, end_local_time, end_timezone, end_at,
	location_text, source_snippet, source, is_inferred, confidence, state,
	fingerprint, metadata, created_at, updated_at`

	runColumns = `id, trip_id, kind, status, timezone, client_now, raw_input, output, created_at, updated_at`

	pendingColumns = `id, trip_id, intent_type, raw_text, candidates, operation, reason, created_at, expires_at`
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Scan errors are returned unwrapped so callers can test for no-rows with
// their driver's sentinel.

func scanTrip(row rowScanner) (*model.Trip, error) {
	var t model.Trip
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Timezone, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanItem(row rowScanner) (*model.TripItem, error) {
	var it model.TripItem
	var metadata []byte
	err := row.Scan(
		&it.ID, &it.TripID, &it.Kind, &it.Title,
		&it.StartLocalDate, &it.StartLocalTime, &it.StartTimezone, &it.StartAt,
		&it.EndLocalDate, &it.EndLocalTime, &it.EndTimezone, &it.EndAt,
		&it.LocationText, &it.SourceSnippet, &it.Source, &it.IsInferred, &it.Confidence, &it.State,
		&it.Fingerprint, &metadata, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &it.Metadata); err != nil {
			return nil, eris.Wrapf(err, "store: unmarshal metadata for item %s", it.ID)
		}
	}
	it.StartAt = utcPtr(it.StartAt)
	it.EndAt = utcPtr(it.EndAt)
	return &it, nil
}

func scanRun(row rowScanner) (*model.ReconstructRun, error) {
	var r model.ReconstructRun
	var output []byte
	err := row.Scan(&r.ID, &r.TripID, &r.Kind, &r.Status, &r.Timezone, &r.Now,
		&r.RawInput, &output, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(output) > 0 {
		r.Output = json.RawMessage(output)
	}
	return &r, nil
}

func scanPending(row rowScanner) (*model.PendingAction, error) {
	var p model.PendingAction
	var candidates, operation []byte
	err := row.Scan(&p.ID, &p.TripID, &p.IntentType, &p.RawText, &candidates,
		&operation, &p.Reason, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candidates, &p.Candidates); err != nil {
		return nil, eris.Wrapf(err, "store: unmarshal candidates for pending %s", p.ID)
	}
	if len(operation) > 0 {
		p.Operation = json.RawMessage(operation)
	}
	return &p, nil
}

// itemJSON marshals the JSON-backed columns of an item.
func itemJSON(it *model.TripItem) ([]byte, error) {
	if it.Metadata == nil {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(it.Metadata)
	return b, eris.Wrapf(err, "store: marshal metadata for item %s", it.ID)
}

func pendingJSON(p *model.PendingAction) (candidates, operation []byte, err error) {
	cands := p.Candidates
	if cands == nil {
		cands = []model.Candidate{}
	}
	candidates, err = json.Marshal(cands)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal candidates")
	}
	operation = p.Operation
	if len(operation) == 0 {
		operation = []byte(`{}`)
	}
	return candidates, operation, nil
}

func runOutput(r *model.ReconstructRun) []byte {
	if len(r.Output) == 0 {
		return []byte(`{}`)
	}
	return []byte(r.Output)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// stampNew fills timestamps on insert, keeping a caller-supplied created time.
func stampNew(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}
