package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// SQLiteStore keeps checkpoints in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_checkpoints (
	run_id     TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_checkpoints_updated_at ON run_checkpoints(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, cp *model.RunCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal checkpoint")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_checkpoints (run_id, stage, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET stage = excluded.stage, data = excluded.data, updated_at = excluded.updated_at`,
		cp.RunID, string(cp.Stage), string(data), cp.LastUpdated.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", cp.RunID)
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM run_checkpoints WHERE run_id = ?`, runID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load checkpoint %s", runID)
	}
	return decode([]byte(data))
}

func (s *SQLiteStore) List(ctx context.Context) ([]*model.RunCheckpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM run_checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list checkpoints")
	}
	defer rows.Close()

	var out []*model.RunCheckpoint
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan checkpoint")
		}
		cp, err := decode([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate checkpoints")
}

func decode(data []byte) (*model.RunCheckpoint, error) {
	var cp model.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrap(err, "checkpoint: decode")
	}
	return &cp, nil
}
