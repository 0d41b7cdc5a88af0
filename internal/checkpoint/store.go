// Package checkpoint persists run progress so an interrupted run can resume
// without reprocessing leads.
package checkpoint

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// Store persists run checkpoints.
type Store interface {
	Save(ctx context.Context, cp *model.RunCheckpoint) error
	// Load returns nil, nil when runID has no checkpoint.
	Load(ctx context.Context, runID string) (*model.RunCheckpoint, error)
	// List returns every checkpoint, most recently updated first.
	List(ctx context.Context) ([]*model.RunCheckpoint, error)
	Close() error
}

// Dedup scopes for SeedKeys.
const (
	ScopeAll = "all"
	ScopeRun = "run"
)

// Open creates the store for driver: "file" (dir), "sqlite" (dsn, or a
// database inside dir) or "postgres" (dsn).
func Open(ctx context.Context, driver, dir, dsn string) (Store, error) {
	switch driver {
	case "", "file":
		return NewFileStore(dir)
	case "sqlite":
		if dsn == "" {
			dsn = dir + "/checkpoints.db"
		}
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("checkpoint: unknown driver %q", driver)
	}
}

// SeedKeys returns the processed keys a run must treat as already seen. With
// ScopeAll that is every checkpoint's keys; with ScopeRun only runID's.
func SeedKeys(ctx context.Context, s Store, runID, scope string) ([]string, error) {
	if scope == ScopeRun {
		cp, err := s.Load(ctx, runID)
		if err != nil || cp == nil {
			return nil, err
		}
		return cp.Keys(), nil
	}

	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, cp := range all {
		for k := range cp.ProcessedIdentityKeys {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func sortByUpdated(cps []*model.RunCheckpoint) {
	sort.SliceStable(cps, func(i, j int) bool {
		return cps[i].LastUpdated.After(cps[j].LastUpdated)
	})
}
