package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Save_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cp := sampleCheckpoint("run-1", time.Now(), "k")

	mock.ExpectExec(`INSERT INTO run_checkpoints .* ON CONFLICT \(run_id\) DO UPDATE`).
		WithArgs("run-1", "classifying", pgxmock.AnyArg(), cp.LastUpdated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Save(context.Background(), cp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO run_checkpoints`).
		WillReturnError(errors.New("connection reset"))

	err := s.Save(context.Background(), sampleCheckpoint("run-1", time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save checkpoint")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cp := sampleCheckpoint("run-1", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "a", "b")
	data, err := json.Marshal(cp)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT data FROM run_checkpoints WHERE run_id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.Load(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"a", "b"}, got.Keys())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM run_checkpoints`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	newer, _ := json.Marshal(sampleCheckpoint("newer", base.Add(time.Hour)))
	older, _ := json.Marshal(sampleCheckpoint("older", base))

	mock.ExpectQuery(`SELECT data FROM run_checkpoints ORDER BY updated_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(newer).AddRow(older))

	all, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS run_checkpoints`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
