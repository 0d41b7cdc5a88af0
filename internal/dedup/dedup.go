// Package dedup tracks which identity keys a run has already seen.
package dedup

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	// ErrDuplicate means the key was seen before, in this run from the same
	// source or in a prior run.
	ErrDuplicate = eris.New("dedup: duplicate lead")

	// ErrDuplicateConflict means another source already claimed the key in
	// this run. The first lead is kept.
	ErrDuplicateConflict = eris.New("dedup: identity key claimed by another source")
)

// Set is the deduplicator. It is safe for concurrent use.
type Set struct {
	mu    sync.Mutex
	prior map[string]struct{}
	run   map[string]model.Source
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		prior: make(map[string]struct{}),
		run:   make(map[string]model.Source),
	}
}

// SeedPrior marks keys processed by earlier runs.
func (s *Set) SeedPrior(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.prior[k] = struct{}{}
	}
}

// SeedRun marks leads already admitted by this run, such as the pending
// leads of a resumed checkpoint.
func (s *Set) SeedRun(leads ...model.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range leads {
		if _, ok := s.run[l.IdentityKey]; !ok {
			s.run[l.IdentityKey] = l.Source
		}
	}
}

// IsNew reports whether key has not been seen.
func (s *Set) IsNew(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNewLocked(key)
}

func (s *Set) isNewLocked(key string) bool {
	if _, ok := s.prior[key]; ok {
		return false
	}
	_, ok := s.run[key]
	return !ok
}

// Admit records lead if its key is new. The existing claim is never
// overwritten.
func (s *Set) Admit(lead model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if src, ok := s.run[lead.IdentityKey]; ok {
		if src != lead.Source {
			return eris.Wrapf(ErrDuplicateConflict, "dedup: %s from %s already claimed by %s", lead.IdentityKey, lead.Source, src)
		}
		return ErrDuplicate
	}
	if _, ok := s.prior[lead.IdentityKey]; ok {
		return ErrDuplicate
	}
	s.run[lead.IdentityKey] = lead.Source
	return nil
}

// Len is the number of leads admitted in this run.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.run)
}
