package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock), mock
}

var itemColumnNames = []string{
	"id", "trip_id", "kind", "title",
	"start_local_date", "start_local_time", "start_timezone", "start_at",
	"end_local_date", "end_local_time", "end_timezone", "end_at",
	"location_text", "source_snippet", "source", "is_inferred", "confidence", "state",
	"fingerprint", "metadata", "created_at", "updated_at",
}

func TestPostgresStore_GetTrip_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, user_id, title, timezone, created_at FROM trips WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetTrip(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetItem_Scans(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 12, 23, 35, 0, 0, time.UTC)

	rows := pgxmock.NewRows(itemColumnNames).AddRow(
		"item-1", "trip-1", "FLIGHT", "UA123",
		"2025-03-12", "19:35", "America/New_York", &start,
		"", "", "", nil,
		"JFK", "Flight UA123", "AI", false, 0.95, "CONFIRMED",
		"fp-1", []byte(`{"lastUpdatedByRunId":"run-1"}`), now, now,
	)
	mock.ExpectQuery(`FROM trip_items WHERE trip_id = \$1 AND id = \$2`).
		WithArgs("trip-1", "item-1").
		WillReturnRows(rows)

	it, err := s.GetItem(context.Background(), "trip-1", "item-1")
	require.NoError(t, err)
	assert.Equal(t, model.KindFlight, it.Kind)
	assert.Equal(t, model.StateConfirmed, it.State)
	require.NotNil(t, it.StartAt)
	assert.Equal(t, start, *it.StartAt)
	assert.Nil(t, it.EndAt)
	assert.Equal(t, "run-1", it.Metadata[model.MetaLastUpdatedRun])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListItems_StateFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM trip_items WHERE trip_id = \$1 AND state = ANY\(\$2\) ORDER BY start_at`).
		WithArgs("trip-1", []string{"PROPOSED", "CONFIRMED", "CANCELLED"}).
		WillReturnRows(pgxmock.NewRows(itemColumnNames))

	items, err := s.ListItems(context.Background(), "trip-1", ExcludeDismissed())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertItem_UniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO trip_items`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "trip_items_trip_fingerprint_key"})

	it := &model.TripItem{TripID: "trip-1", Kind: model.KindMeal, Title: "Dinner", Fingerprint: "fp-1",
		Source: model.SourceAI, State: model.StateProposed}
	err := s.InsertItem(context.Background(), it)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotEmpty(t, it.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateItem_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE trip_items SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateItem(context.Background(), &model.TripItem{ID: "item-9", TripID: "trip-1"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_Commit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO reconstruct_runs`).
		WithArgs("run-1", "trip-1", "PATCH", "SUCCESS", "UTC", pgxmock.AnyArg(), "move dinner",
			[]byte(`{"type":"PATCH"}`), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM pending_actions WHERE id = \$1`).
		WithArgs("pending-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx Tx) error {
		if err := tx.CreateRun(context.Background(), &model.ReconstructRun{
			ID: "run-1", TripID: "trip-1", Kind: model.RunKindPatch, Status: model.RunStatusSuccess,
			Timezone: "UTC", Now: time.Now(), RawInput: "move dinner",
			Output: json.RawMessage(`{"type":"PATCH"}`),
		}); err != nil {
			return err
		}
		return tx.DeletePending(context.Background(), "pending-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_RollbackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM pending_actions`).
		WithArgs("pending-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.DeletePending(context.Background(), "pending-1")
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "trip_id", "kind", "status", "timezone", "client_now",
		"raw_input", "output", "created_at", "updated_at"}).
		AddRow("run-1", "trip-1", "RECONSTRUCT", "SUCCESS", "UTC", now, "raw", []byte(`{"tripTitle":"SF"}`), now, now)
	mock.ExpectQuery(`FROM reconstruct_runs\s+WHERE trip_id = \$1 AND kind = \$2 AND status = \$3`).
		WithArgs("trip-1", "RECONSTRUCT", "SUCCESS").
		WillReturnRows(rows)

	run, err := s.LatestRun(context.Background(), "trip-1", model.RunKindReconstruct)
	require.NoError(t, err)
	assert.Equal(t, model.RunKindReconstruct, run.Kind)
	assert.JSONEq(t, `{"tripTitle":"SF"}`, string(run.Output))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM reconstruct_runs WHERE true AND trip_id = \$1 AND kind = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("trip-1", "PATCH", 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "trip_id", "kind", "status", "timezone", "client_now",
			"raw_input", "output", "created_at", "updated_at"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{TripID: "trip-1", Kind: model.RunKindPatch, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS trip_items`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
