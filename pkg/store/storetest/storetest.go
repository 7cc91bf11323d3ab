// Package storetest checks that a deps.Store implementation behaves like
// the reference in-memory store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/dependents/pkg/deps"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) deps.Store

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, deps.Store)
	}{
		{"EdgeUpsertIsIdempotent", testEdgeUpsert},
		{"FindEdge", testFindEdge},
		{"FileResolutionLastWriterWins", testFileResolution},
		{"SkippedUpsertAndDelete", testSkipped},
		{"ListSkippedFilters", testListSkippedFilters},
		{"ListDependents", testListDependents},
		{"ConcurrentWrites", testConcurrentWrites},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testEdgeUpsert(t *testing.T, s deps.Store) {
	ctx := context.Background()
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}

	n, err := s.CountEdges(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)

	e1 := deps.Edge{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10}
	e2 := deps.Edge{ProjectID: 100, FileID: 200, DependencyProjectID: 2, DependencyFileID: 20}
	for range 3 {
		require.NoError(t, s.UpsertEdge(ctx, e1))
	}
	require.NoError(t, s.UpsertEdge(ctx, e2))

	n, err = s.CountEdges(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	other, err := s.CountEdges(ctx, deps.FileIdentifier{ProjectID: 100, FileID: 201})
	require.NoError(t, err)
	assert.Zero(t, other)
}

func testFindEdge(t *testing.T, s deps.Store) {
	ctx := context.Background()
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}

	got, err := s.FindEdge(ctx, id, 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	want := deps.Edge{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10}
	require.NoError(t, s.UpsertEdge(ctx, want))

	got, err = s.FindEdge(ctx, id, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	got, err = s.FindEdge(ctx, id, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testFileResolution(t *testing.T, s deps.Store) {
	ctx := context.Background()
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}

	got, err := s.FindFileResolution(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.UpsertFileResolution(ctx, id, 3))
	require.NoError(t, s.UpsertFileResolution(ctx, id, 2))

	got, err = s.FindFileResolution(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, deps.FileResolution{ProjectID: 100, FileID: 200, DependencyCount: 2}, *got)

	require.NoError(t, s.UpsertFileResolution(ctx, deps.FileIdentifier{ProjectID: 7, FileID: 8}, 0))
	zero, err := s.FindFileResolution(ctx, deps.FileIdentifier{ProjectID: 7, FileID: 8})
	require.NoError(t, err)
	require.NotNil(t, zero)
	assert.Zero(t, zero.DependencyCount)
}

func testSkipped(t *testing.T, s deps.Store) {
	ctx := context.Background()
	id := deps.FileIdentifier{ProjectID: 100, FileID: 201}

	first := deps.SkippedFile{ProjectID: 100, FileID: 201, Reason: deps.DownloadError, Timestamp: 1000, URL: "https://cdn/a/pack.zip"}
	second := deps.SkippedFile{ProjectID: 100, FileID: 201, Reason: deps.FileParsingError, Timestamp: 2000, URL: "https://cdn/b/pack.zip"}
	require.NoError(t, s.UpsertSkipped(ctx, first))
	require.NoError(t, s.UpsertSkipped(ctx, second))

	all, err := s.ListSkipped(ctx, deps.SkippedFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, second, all[0])

	require.NoError(t, s.DeleteSkipped(ctx, id))
	require.NoError(t, s.DeleteSkipped(ctx, id))

	all, err = s.ListSkipped(ctx, deps.SkippedFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testListSkippedFilters(t *testing.T, s deps.Store) {
	ctx := context.Background()
	rows := []deps.SkippedFile{
		{ProjectID: 1, FileID: 1, Reason: deps.DownloadError, Timestamp: 100, URL: "u1"},
		{ProjectID: 1, FileID: 2, Reason: deps.DownloadError, Timestamp: 200, URL: "u2"},
		{ProjectID: 2, FileID: 1, Reason: deps.ZeroDownloads, Timestamp: 100, URL: "u3"},
		{ProjectID: 3, FileID: 1, Reason: deps.DownloadTooLarge, Timestamp: 300, URL: "u4"},
	}
	for _, r := range rows {
		require.NoError(t, s.UpsertSkipped(ctx, r))
	}

	reason := func(r deps.SkipReason) *deps.SkipReason { return &r }
	ts := func(v int64) *int64 { return &v }

	tests := []struct {
		filter deps.SkippedFilter
		want   int
	}{
		{deps.SkippedFilter{}, 4},
		{deps.SkippedFilter{Reason: reason(deps.DownloadError)}, 2},
		{deps.SkippedFilter{Reason: reason(deps.FileParsingError)}, 0},
		{deps.SkippedFilter{Timestamp: ts(100)}, 2},
		{deps.SkippedFilter{Timestamp: ts(150)}, 0},
		{deps.SkippedFilter{Reason: reason(deps.DownloadError), Timestamp: ts(200)}, 1},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			got, err := s.ListSkipped(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			for _, g := range got {
				assert.True(t, tt.filter.Matches(g), "row %+v does not match filter", g)
			}
		})
	}
}

func testListDependents(t *testing.T, s deps.Store) {
	ctx := context.Background()
	edges := []deps.Edge{
		{ProjectID: 300, FileID: 2, DependencyProjectID: 1, DependencyFileID: 11},
		{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10},
		{ProjectID: 100, FileID: 200, DependencyProjectID: 2, DependencyFileID: 20},
		{ProjectID: 100, FileID: 199, DependencyProjectID: 1, DependencyFileID: 9},
	}
	for _, e := range edges {
		require.NoError(t, s.UpsertEdge(ctx, e))
	}

	got, err := s.ListDependents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []deps.Edge{edges[3], edges[1], edges[0]}, got)

	none, err := s.ListDependents(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testConcurrentWrites(t *testing.T, s deps.Store) {
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := deps.Edge{ProjectID: 5, FileID: 6, DependencyProjectID: int64(i % 5), DependencyFileID: 1}
			errs <- s.UpsertEdge(ctx, e)
			errs <- s.UpsertFileResolution(ctx, deps.FileIdentifier{ProjectID: 5, FileID: 6}, 5)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := s.CountEdges(ctx, deps.FileIdentifier{ProjectID: 5, FileID: 6})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
