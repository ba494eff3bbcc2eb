package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	sqlQueries
	db *sql.DB
}

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode, foreign keys and immediate write transactions.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{sqlQueries: sqlQueries{q: db}, db: db}, nil
}

func sqliteDSN(dsn string) string {
	var params []string
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_txlock=immediate")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	timezone   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trip_items (
	id               TEXT PRIMARY KEY,
	trip_id          TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	kind             TEXT NOT NULL,
	title            TEXT NOT NULL,
	start_local_date TEXT NOT NULL DEFAULT '',
	start_local_time TEXT NOT NULL DEFAULT '',
	start_timezone   TEXT NOT NULL DEFAULT '',
	start_at         DATETIME,
	end_local_date   TEXT NOT NULL DEFAULT '',
	end_local_time   TEXT NOT NULL DEFAULT '',
	end_timezone     TEXT NOT NULL DEFAULT '',
	end_at           DATETIME,
	location_text    TEXT NOT NULL DEFAULT '',
	source_snippet   TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	is_inferred      INTEGER NOT NULL DEFAULT 0,
	confidence       REAL NOT NULL DEFAULT 0,
	state            TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	metadata         TEXT NOT NULL DEFAULT '{}',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (trip_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip_state ON trip_items(trip_id, state);

CREATE TABLE IF NOT EXISTS reconstruct_runs (
	id         TEXT PRIMARY KEY,
	trip_id    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	timezone   TEXT NOT NULL DEFAULT '',
	client_now DATETIME NOT NULL,
	raw_input  TEXT NOT NULL DEFAULT '',
	output     TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reconstruct_runs_trip_kind ON reconstruct_runs(trip_id, kind, created_at);

CREATE TABLE IF NOT EXISTS pending_actions (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	intent_type TEXT NOT NULL,
	raw_text    TEXT NOT NULL,
	candidates  TEXT NOT NULL DEFAULT '[]',
	operation   TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	expires_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pending_actions_trip ON pending_actions(trip_id, created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqlQueries{q: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// sqlRunner is the statement surface shared by *sql.DB and *sql.Tx.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlQueries implements Queries against either the database or an open tx.
type sqlQueries struct {
	q sqlRunner
}

func isSQLiteUnique(err error) bool {
	var sqErr *sqlite.Error
	return errors.As(err, &sqErr) && sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func (s *sqlQueries) CreateTrip(ctx context.Context, trip *model.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO trips (id, user_id, title, timezone, created_at) VALUES (?, ?, ?, ?, ?)`,
		trip.ID, trip.UserID, trip.Title, trip.Timezone, trip.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert trip %s", trip.ID)
}

func (s *sqlQueries) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	t, err := scanTrip(s.q.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = ?`, tripID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("trip", tripID)
	}
	return t, eris.Wrapf(err, "sqlite: get trip %s", tripID)
}

func (s *sqlQueries) ListItems(ctx context.Context, tripID string, filter ItemFilter) ([]model.TripItem, error) {
	query := `SELECT ` + itemColumns + ` FROM trip_items WHERE trip_id = ?`
	args := []any{tripID}
	if len(filter.States) > 0 {
		marks := make([]string, len(filter.States))
		for i, st := range filter.States {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND state IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY start_at ASC NULLS LAST, start_local_date ASC, created_at ASC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list items for trip %s", tripID)
	}
	defer rows.Close()

	var items []model.TripItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: list items iterate")
}

func (s *sqlQueries) GetItem(ctx context.Context, tripID, itemID string) (*model.TripItem, error) {
	it, err := scanItem(s.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM trip_items WHERE trip_id = ? AND id = ?`, tripID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("item", itemID)
	}
	return it, eris.Wrapf(err, "sqlite: get item %s", itemID)
}

func (s *sqlQueries) FindItemByFingerprint(ctx context.Context, tripID, fingerprint string) (*model.TripItem, error) {
	it, err := scanItem(s.q.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM trip_items WHERE trip_id = ? AND fingerprint = ?`, tripID, fingerprint))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("fingerprint", fingerprint)
	}
	return it, eris.Wrapf(err, "sqlite: find item by fingerprint %s", fingerprint)
}

func (s *sqlQueries) InsertItem(ctx context.Context, it *model.TripItem) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	stampNew(&it.CreatedAt, &it.UpdatedAt)
	metadata, err := itemJSON(it)
	if err != nil {
		return err
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO trip_items (`+itemColumns+`) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.TripID, string(it.Kind), it.Title,
		it.StartLocalDate, it.StartLocalTime, it.StartTimezone, utcPtr(it.StartAt),
		it.EndLocalDate, it.EndLocalTime, it.EndTimezone, utcPtr(it.EndAt),
		it.LocationText, it.SourceSnippet, string(it.Source), it.IsInferred, it.Confidence, string(it.State),
		it.Fingerprint, string(metadata), it.CreatedAt, it.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "sqlite: insert item %s", it.Fingerprint)
	}
	return eris.Wrapf(err, "sqlite: insert item %s", it.ID)
}

func (s *sqlQueries) UpdateItem(ctx context.Context, it *model.TripItem) error {
	it.UpdatedAt = time.Now().UTC()
	metadata, err := itemJSON(it)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE trip_items SET kind = ?, title = ?,
			start_local_date = ?, start_local_time = ?, start_timezone = ?, start_at = ?,
			end_local_date = ?, end_local_time = ?, end_timezone = ?, end_at = ?,
			location_text = ?, source_snippet = ?, source = ?, is_inferred = ?,
			confidence = ?, state = ?, fingerprint = ?, metadata = ?, updated_at = ?
		WHERE trip_id = ? AND id = ?`,
		string(it.Kind), it.Title,
		it.StartLocalDate, it.StartLocalTime, it.StartTimezone, utcPtr(it.StartAt),
		it.EndLocalDate, it.EndLocalTime, it.EndTimezone, utcPtr(it.EndAt),
		it.LocationText, it.SourceSnippet, string(it.Source), it.IsInferred,
		it.Confidence, string(it.State), it.Fingerprint, string(metadata), it.UpdatedAt,
		it.TripID, it.ID,
	)
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "sqlite: update item %s", it.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: update item %s", it.ID)
	}
	return checkRowsAffected(res, "item", it.ID)
}

func (s *sqlQueries) CreateRun(ctx context.Context, run *model.ReconstructRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	stampNew(&run.CreatedAt, &run.UpdatedAt)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO reconstruct_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TripID, string(run.Kind), string(run.Status), run.Timezone, run.Now.UTC(),
		run.RawInput, string(runOutput(run)), run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *sqlQueries) GetRun(ctx context.Context, runID string) (*model.ReconstructRun, error) {
	r, err := scanRun(s.q.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM reconstruct_runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	return r, eris.Wrapf(err, "sqlite: get run %s", runID)
}

func (s *sqlQueries) LatestRun(ctx context.Context, tripID string, kind model.RunKind) (*model.ReconstructRun, error) {
	r, err := scanRun(s.q.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM reconstruct_runs
		 WHERE trip_id = ? AND kind = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		tripID, string(kind), string(model.RunStatusSuccess)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", string(kind))
	}
	return r, eris.Wrapf(err, "sqlite: latest %s run for trip %s", kind, tripID)
}

func (s *sqlQueries) ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconstructRun, error) {
	query := `SELECT ` + runColumns + ` FROM reconstruct_runs WHERE 1=1`
	var args []any

	if filter.TripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, filter.TripID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.ReconstructRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *sqlQueries) UpdateRunOutput(ctx context.Context, runID string, output json.RawMessage) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE reconstruct_runs SET output = ?, updated_at = ? WHERE id = ?`,
		string(output), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run output %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *sqlQueries) CreatePending(ctx context.Context, pa *model.PendingAction) error {
	if pa.ID == "" {
		pa.ID = uuid.New().String()
	}
	if pa.CreatedAt.IsZero() {
		pa.CreatedAt = time.Now().UTC()
	}
	candidates, operation, err := pendingJSON(pa)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO pending_actions (`+pendingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pa.ID, pa.TripID, string(pa.IntentType), pa.RawText, string(candidates), string(operation),
		pa.Reason, pa.CreatedAt, utcPtr(pa.ExpiresAt),
	)
	return eris.Wrapf(err, "sqlite: insert pending action %s", pa.ID)
}

func (s *sqlQueries) GetPending(ctx context.Context, tripID, pendingID string) (*model.PendingAction, error) {
	pa, err := scanPending(s.q.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE trip_id = ? AND id = ?`, tripID, pendingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("pending action", pendingID)
	}
	return pa, eris.Wrapf(err, "sqlite: get pending action %s", pendingID)
}

func (s *sqlQueries) ListPending(ctx context.Context, tripID string) ([]model.PendingAction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE trip_id = ? ORDER BY created_at ASC`, tripID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list pending actions for trip %s", tripID)
	}
	defer rows.Close()

	var out []model.PendingAction
	for rows.Next() {
		pa, err := scanPending(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pending action")
		}
		out = append(out, *pa)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pending actions iterate")
}

func (s *sqlQueries) DeletePending(ctx context.Context, pendingID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, pendingID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete pending action %s", pendingID)
	}
	return checkRowsAffected(res, "pending action", pendingID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
