package checkpoint

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock pools satisfy it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore keeps checkpoints in Postgres.
type PostgresStore struct {
	pool Pool
}

// NewPostgres connects to dsn and pings it.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS run_checkpoints (
	run_id     TEXT PRIMARY KEY,
	stage      TEXT NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_run_checkpoints_updated_at ON run_checkpoints(updated_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, cp *model.RunCheckpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal checkpoint")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_checkpoints (run_id, stage, data, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_id) DO UPDATE SET stage = $2, data = $3, updated_at = $4`,
		cp.RunID, string(cp.Stage), data, cp.LastUpdated,
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", cp.RunID)
}

func (s *PostgresStore) Load(ctx context.Context, runID string) (*model.RunCheckpoint, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM run_checkpoints WHERE run_id = $1`, runID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: load checkpoint %s", runID)
	}
	return decode(data)
}

func (s *PostgresStore) List(ctx context.Context) ([]*model.RunCheckpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM run_checkpoints ORDER BY updated_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list checkpoints")
	}
	defer rows.Close()

	var out []*model.RunCheckpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan checkpoint")
		}
		cp, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate checkpoints")
}
