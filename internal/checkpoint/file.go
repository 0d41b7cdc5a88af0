package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

// FileStore keeps one JSON file per run. Writes go to a temp file in the same
// directory, are fsynced, and renamed over the target, so readers see either
// the old or the new checkpoint. A lock file serializes writers across
// processes.
type FileStore struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileStore creates dir if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, eris.New("checkpoint: directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: create %s", dir)
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

func (s *FileStore) path(runID string) (string, error) {
	if runID == "" || runID != filepath.Base(runID) || strings.HasPrefix(runID, ".") {
		return "", eris.Errorf("checkpoint: invalid run id %q", runID)
	}
	return filepath.Join(s.dir, runID+".json"), nil
}

func (s *FileStore) Save(ctx context.Context, cp *model.RunCheckpoint) error {
	target, err := s.path(cp.RunID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "checkpoint: marshal")
	}

	// flock is per file descriptor, so goroutines of this process queue on mu.
	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, 20*time.Millisecond)
	if err != nil {
		return eris.Wrap(err, "checkpoint: acquire lock")
	}
	if !locked {
		return eris.New("checkpoint: lock not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	tmp, err := os.CreateTemp(s.dir, "."+cp.RunID+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "checkpoint: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}
	if err := os.Rename(tmpName, target); err != nil {
		return eris.Wrapf(err, "checkpoint: replace %s", target)
	}
	syncDir(s.dir)
	return nil
}

// syncDir flushes the rename to disk where the platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func (s *FileStore) Load(_ context.Context, runID string) (*model.RunCheckpoint, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	return readFile(p)
}

func readFile(p string) (*model.RunCheckpoint, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read %s", p)
	}
	var cp model.RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: decode %s", p)
	}
	return &cp, nil
}

func (s *FileStore) List(_ context.Context) ([]*model.RunCheckpoint, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: list")
	}
	out := make([]*model.RunCheckpoint, 0, len(matches))
	for _, m := range matches {
		cp, err := readFile(m)
		if err != nil {
			return nil, err
		}
		if cp != nil {
			out = append(out, cp)
		}
	}
	sortByUpdated(out)
	return out, nil
}

func (s *FileStore) Close() error { return nil }
