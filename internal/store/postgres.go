package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/db"
	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pgQueries
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool), nil
}

func newPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{q: pool}, pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	timezone   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trip_items (
	id               TEXT PRIMARY KEY,
	trip_id          TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	kind             TEXT NOT NULL,
	title            TEXT NOT NULL,
	start_local_date TEXT NOT NULL DEFAULT '',
	start_local_time TEXT NOT NULL DEFAULT '',
	start_timezone   TEXT NOT NULL DEFAULT '',
	start_at         TIMESTAMPTZ,
	end_local_date   TEXT NOT NULL DEFAULT '',
	end_local_time   TEXT NOT NULL DEFAULT '',
	end_timezone     TEXT NOT NULL DEFAULT '',
	end_at           TIMESTAMPTZ,
	location_text    TEXT NOT NULL DEFAULT '',
	source_snippet   TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL,
	is_inferred      BOOLEAN NOT NULL DEFAULT false,
	confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
	state            TEXT NOT NULL,
	fingerprint      TEXT NOT NULL,
	metadata         JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT trip_items_trip_fingerprint_key UNIQUE (trip_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_trip_items_trip_state ON trip_items(trip_id, state);

CREATE TABLE IF NOT EXISTS reconstruct_runs (
	id         TEXT PRIMARY KEY,
	trip_id    TEXT NOT NULL DEFAULT '',
	kind       TEXT NOT NULL,
	status     TEXT NOT NULL,
	timezone   TEXT NOT NULL DEFAULT '',
	client_now TIMESTAMPTZ NOT NULL,
	raw_input  TEXT NOT NULL DEFAULT '',
	output     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reconstruct_runs_trip_kind ON reconstruct_runs(trip_id, kind, created_at DESC);

CREATE TABLE IF NOT EXISTS pending_actions (
	id          TEXT PRIMARY KEY,
	trip_id     TEXT NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
	intent_type TEXT NOT NULL,
	raw_text    TEXT NOT NULL,
	candidates  JSONB NOT NULL DEFAULT '[]'::jsonb,
	operation   JSONB NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pending_actions_trip ON pending_actions(trip_id, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err, "") {
			return eris.Wrap(ErrConflict, "postgres: commit tx")
		}
		return eris.Wrap(err, "postgres: commit tx")
	}
	return nil
}

// pgQueries implements Queries against either the pool or an open tx.
type pgQueries struct {
	q db.Querier
}

func (p *pgQueries) CreateTrip(ctx context.Context, trip *model.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = time.Now().UTC()
	}
	_, err := p.q.Exec(ctx,
		`INSERT INTO trips (id, user_id, title, timezone, created_at) VALUES ($1, $2, $3, $4, $5)`,
		trip.ID, trip.UserID, trip.Title, trip.Timezone, trip.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert trip %s", trip.ID)
}

func (p *pgQueries) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	t, err := scanTrip(p.q.QueryRow(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE id = $1`, tripID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("trip", tripID)
	}
	return t, eris.Wrapf(err, "postgres: get trip %s", tripID)
}

func (p *pgQueries) ListItems(ctx context.Context, tripID string, filter ItemFilter) ([]model.TripItem, error) {
	query := `SELECT ` + itemColumns + ` FROM trip_items WHERE trip_id = $1`
	args := []any{tripID}
	if len(filter.States) > 0 {
		states := make([]string, len(filter.States))
		for i, st := range filter.States {
			states[i] = string(st)
		}
		query += ` AND state = ANY($2)`
		args = append(args, states)
	}
	query += ` ORDER BY start_at ASC NULLS LAST, start_local_date ASC, created_at ASC`

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list items for trip %s", tripID)
	}
	defer rows.Close()

	var items []model.TripItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: list items iterate")
}

func (p *pgQueries) GetItem(ctx context.Context, tripID, itemID string) (*model.TripItem, error) {
	it, err := scanItem(p.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM trip_items WHERE trip_id = $1 AND id = $2`, tripID, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("item", itemID)
	}
	return it, eris.Wrapf(err, "postgres: get item %s", itemID)
}

func (p *pgQueries) FindItemByFingerprint(ctx context.Context, tripID, fingerprint string) (*model.TripItem, error) {
	it, err := scanItem(p.q.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM trip_items WHERE trip_id = $1 AND fingerprint = $2`, tripID, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("fingerprint", fingerprint)
	}
	return it, eris.Wrapf(err, "postgres: find item by fingerprint %s", fingerprint)
}

func (p *pgQueries) InsertItem(ctx context.Context, it *model.TripItem) error {
	if it.ID == "" {
		it.ID = uuid.New().String()
	}
	stampNew(&it.CreatedAt, &it.UpdatedAt)
	metadata, err := itemJSON(it)
	if err != nil {
		return err
	}

	_, err = p.q.Exec(ctx,
		`INSERT INTO trip_items (`+itemColumns+`) VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		it.ID, it.TripID, string(it.Kind), it.Title,
		it.StartLocalDate, it.StartLocalTime, it.StartTimezone, utcPtr(it.StartAt),
		it.EndLocalDate, it.EndLocalTime, it.EndTimezone, utcPtr(it.EndAt),
		it.LocationText, it.SourceSnippet, string(it.Source), it.IsInferred, it.Confidence, string(it.State),
		it.Fingerprint, metadata, it.CreatedAt, it.UpdatedAt,
	)
	if db.IsUniqueViolation(err, "") {
		return eris.Wrapf(ErrConflict, "postgres: insert item %s", it.Fingerprint)
	}
	return eris.Wrapf(err, "postgres: insert item %s", it.ID)
}

func (p *pgQueries) UpdateItem(ctx context.Context, it *model.TripItem) error {
	it.UpdatedAt = time.Now().UTC()
	metadata, err := itemJSON(it)
	if err != nil {
		return err
	}

	tag, err := p.q.Exec(ctx,
		`UPDATE trip_items SET kind = $1, title = $2,
			start_local_date = $3, start_local_time = $4, start_timezone = $5, start_at = $6,
			end_local_date = $7, end_local_time = $8, end_timezone = $9, end_at = $10,
			location_text = $11, source_snippet = $12, source = $13, is_inferred = $14,
			confidence = $15, state = $16, fingerprint = $17, metadata = $18, updated_at = $19
		WHERE trip_id = $20 AND id = $21`,
		string(it.Kind), it.Title,
		it.StartLocalDate, it.StartLocalTime, it.StartTimezone, utcPtr(it.StartAt),
		it.EndLocalDate, it.EndLocalTime, it.EndTimezone, utcPtr(it.EndAt),
		it.LocationText, it.SourceSnippet, string(it.Source), it.IsInferred,
		it.Confidence, string(it.State), it.Fingerprint, metadata, it.UpdatedAt,
		it.TripID, it.ID,
	)
	if db.IsUniqueViolation(err, "") {
		return eris.Wrapf(ErrConflict, "postgres: update item %s", it.ID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: update item %s", it.ID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("item", it.ID)
	}
	return nil
}

func (p *pgQueries) CreateRun(ctx context.Context, run *model.ReconstructRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	stampNew(&run.CreatedAt, &run.UpdatedAt)
	_, err := p.q.Exec(ctx,
		`INSERT INTO reconstruct_runs (`+runColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.TripID, string(run.Kind), string(run.Status), run.Timezone, run.Now.UTC(),
		run.RawInput, runOutput(run), run.CreatedAt, run.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (p *pgQueries) GetRun(ctx context.Context, runID string) (*model.ReconstructRun, error) {
	r, err := scanRun(p.q.QueryRow(ctx,
		`SELECT `+runColumns+` FROM reconstruct_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", runID)
	}
	return r, eris.Wrapf(err, "postgres: get run %s", runID)
}

func (p *pgQueries) LatestRun(ctx context.Context, tripID string, kind model.RunKind) (*model.ReconstructRun, error) {
	r, err := scanRun(p.q.QueryRow(ctx,
		`SELECT `+runColumns+` FROM reconstruct_runs
		 WHERE trip_id = $1 AND kind = $2 AND status = $3
		 ORDER BY created_at DESC LIMIT 1`,
		tripID, string(kind), string(model.RunStatusSuccess)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("run", string(kind))
	}
	return r, eris.Wrapf(err, "postgres: latest %s run for trip %s", kind, tripID)
}

func (p *pgQueries) ListRuns(ctx context.Context, filter RunFilter) ([]model.ReconstructRun, error) {
	query := `SELECT ` + runColumns + ` FROM reconstruct_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TripID != "" {
		query += fmt.Sprintf(` AND trip_id = $%d`, argIdx)
		args = append(args, filter.TripID)
		argIdx++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.ReconstructRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (p *pgQueries) UpdateRunOutput(ctx context.Context, runID string, output json.RawMessage) error {
	tag, err := p.q.Exec(ctx,
		`UPDATE reconstruct_runs SET output = $1, updated_at = $2 WHERE id = $3`,
		[]byte(output), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run output %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("run", runID)
	}
	return nil
}

func (p *pgQueries) CreatePending(ctx context.Context, pa *model.PendingAction) error {
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
	_, err = p.q.Exec(ctx,
		`INSERT INTO pending_actions (`+pendingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pa.ID, pa.TripID, string(pa.IntentType), pa.RawText, candidates, operation,
		pa.Reason, pa.CreatedAt, utcPtr(pa.ExpiresAt),
	)
	return eris.Wrapf(err, "postgres: insert pending action %s", pa.ID)
}

func (p *pgQueries) GetPending(ctx context.Context, tripID, pendingID string) (*model.PendingAction, error) {
	pa, err := scanPending(p.q.QueryRow(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE trip_id = $1 AND id = $2`, tripID, pendingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("pending action", pendingID)
	}
	return pa, eris.Wrapf(err, "postgres: get pending action %s", pendingID)
}

func (p *pgQueries) ListPending(ctx context.Context, tripID string) ([]model.PendingAction, error) {
	rows, err := p.q.Query(ctx,
		`SELECT `+pendingColumns+` FROM pending_actions WHERE trip_id = $1 ORDER BY created_at ASC`, tripID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list pending actions for trip %s", tripID)
	}
	defer rows.Close()

	var out []model.PendingAction
	for rows.Next() {
		pa, err := scanPending(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pending action")
		}
		out = append(out, *pa)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pending actions iterate")
}

func (p *pgQueries) DeletePending(ctx context.Context, pendingID string) error {
	tag, err := p.q.Exec(ctx, `DELETE FROM pending_actions WHERE id = $1`, pendingID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete pending action %s", pendingID)
	}
	if tag.RowsAffected() == 0 {
		return notFound("pending action", pendingID)
	}
	return nil
}
