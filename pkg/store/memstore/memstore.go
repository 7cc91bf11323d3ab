// Package memstore is an in-memory deps.Store. Nothing survives Close; use
// it in tests and for dry runs.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/dependents/pkg/deps"
)

// Store holds every relation in mutex-guarded maps.
type Store struct {
	mu          sync.RWMutex
	edges       map[deps.Edge]struct{}
	resolutions map[deps.FileIdentifier]int
	skipped     map[deps.FileIdentifier]deps.SkippedFile
}

// New returns an empty store.
func New() *Store {
	return &Store{
		edges:       make(map[deps.Edge]struct{}),
		resolutions: make(map[deps.FileIdentifier]int),
		skipped:     make(map[deps.FileIdentifier]deps.SkippedFile),
	}
}

func (s *Store) UpsertEdge(_ context.Context, e deps.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[e] = struct{}{}
	return nil
}

func (s *Store) UpsertFileResolution(_ context.Context, id deps.FileIdentifier, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[id] = count
	return nil
}

func (s *Store) UpsertSkipped(_ context.Context, f deps.SkippedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[f.ID()] = f
	return nil
}

func (s *Store) DeleteSkipped(_ context.Context, id deps.FileIdentifier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.skipped, id)
	return nil
}

func (s *Store) CountEdges(_ context.Context, id deps.FileIdentifier) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for e := range s.edges {
		if e.File() == id {
			n++
		}
	}
	return n, nil
}

// FindEdge returns the edge with the lowest dependency file id when a file
// depends on several files of the same project.
func (s *Store) FindEdge(_ context.Context, id deps.FileIdentifier, dependencyProjectID int64) (*deps.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *deps.Edge
	for e := range s.edges {
		if e.File() != id || e.DependencyProjectID != dependencyProjectID {
			continue
		}
		if found == nil || e.DependencyFileID < found.DependencyFileID {
			e := e
			found = &e
		}
	}
	return found, nil
}

func (s *Store) FindFileResolution(_ context.Context, id deps.FileIdentifier) (*deps.FileResolution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, ok := s.resolutions[id]
	if !ok {
		return nil, nil
	}
	return &deps.FileResolution{ProjectID: id.ProjectID, FileID: id.FileID, DependencyCount: count}, nil
}

// ListSkipped returns matching rows ordered by project and file id.
func (s *Store) ListSkipped(_ context.Context, f deps.SkippedFilter) ([]deps.SkippedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []deps.SkippedFile
	for _, row := range s.skipped {
		if f.Matches(row) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b deps.SkippedFile) int {
		return compareIDs(a.ID(), b.ID())
	})
	return out, nil
}

// ListDependents returns edges ordered by declaring file, then dependency
// file id.
func (s *Store) ListDependents(_ context.Context, dependencyProjectID int64) ([]deps.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []deps.Edge
	for e := range s.edges {
		if e.DependencyProjectID == dependencyProjectID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b deps.Edge) int {
		if c := compareIDs(a.File(), b.File()); c != 0 {
			return c
		}
		return cmp.Compare(a.DependencyFileID, b.DependencyFileID)
	})
	return out, nil
}

func (s *Store) Close() error { return nil }

func compareIDs(a, b deps.FileIdentifier) int {
	if c := cmp.Compare(a.ProjectID, b.ProjectID); c != 0 {
		return c
	}
	return cmp.Compare(a.FileID, b.FileID)
}

var _ deps.Store = (*Store)(nil)
