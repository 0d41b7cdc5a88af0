package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/pipeline"
)

// jsonSink journals every record as a JSON line while the run is going, then
// on Close merges the journal into the output file as one ranked JSON array.
// Records are keyed by identity key, so a resumed run updates the file from
// an earlier attempt instead of duplicating it. A journal left behind by a
// crash is merged by the next Close.
type jsonSink struct {
	path    string
	mu      sync.Mutex
	journal *os.File
}

func journalPath(path string) string {
	return path + ".partial"
}

func newJSONSink(path string) (*jsonSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sink: create %s", dir)
		}
	}
	f, err := os.OpenFile(journalPath(path), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, eris.Wrap(err, "sink: open journal")
	}
	return &jsonSink{path: path, journal: f}, nil
}

func (s *jsonSink) Emit(_ context.Context, rec model.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sink: encode record")
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return eris.New("sink: closed")
	}
	if _, err := s.journal.Write(data); err != nil {
		return eris.Wrap(err, "sink: write journal")
	}
	return eris.Wrap(s.journal.Sync(), "sink: sync journal")
}

func (s *jsonSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Close(); err != nil {
		return eris.Wrap(err, "sink: close journal")
	}
	s.journal = nil

	byKey := make(map[string]model.Record)
	existing, err := readRecords(s.path)
	if err != nil {
		return err
	}
	for _, r := range existing {
		byKey[r.Lead.IdentityKey] = r
	}
	journaled, err := readJournal(journalPath(s.path))
	if err != nil {
		return err
	}
	for _, r := range journaled {
		byKey[r.Lead.IdentityKey] = r
	}

	records := make([]model.Record, 0, len(byKey))
	for _, r := range byKey {
		records = append(records, r)
	}
	pipeline.Rank(records)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return eris.Wrap(err, "sink: encode output")
	}
	if err := writeAtomic(s.path, append(data, '\n')); err != nil {
		return err
	}
	if err := os.Remove(journalPath(s.path)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrap(err, "sink: remove journal")
	}
	zap.L().Info("sink: wrote records", zap.String("path", s.path), zap.Int("records", len(records)))
	return nil
}

func readRecords(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sink: read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out []model.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "sink: parse %s", path)
	}
	return out, nil
}

// readJournal parses journal lines. A torn last line from a crash is skipped.
func readJournal(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sink: open journal")
	}
	defer f.Close() //nolint:errcheck

	var out []model.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r model.Record
		if err := json.Unmarshal(line, &r); err != nil {
			zap.L().Warn("sink: skipping unreadable journal line", zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, eris.Wrap(sc.Err(), "sink: scan journal")
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "sink: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "sink: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "sink: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "sink: close temp file")
	}
	return eris.Wrap(os.Rename(tmp.Name(), path), "sink: replace output")
}
