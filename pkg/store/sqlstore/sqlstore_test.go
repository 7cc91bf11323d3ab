package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/store/storetest"
)

// createTestStore opens a fresh SQLite store under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) deps.Store { return createTestStore(t) })
}

func TestOpenSQLite_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.db")
	s, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpenSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "edges.db")

	s1, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	edge := deps.Edge{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10}
	require.NoError(t, s1.UpsertEdge(ctx, edge))
	require.NoError(t, s1.UpsertFileResolution(ctx, edge.File(), 1))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	n, err := s2.CountEdges(ctx, edge.File())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
		{Postgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{Postgres, "no params", "no params"},
	}
	for _, tt := range tests {
		s := &Store{dialect: tt.dialect}
		assert.Equal(t, tt.want, s.rebind(tt.in), "%s: %q", tt.dialect, tt.in)
	}
}

func TestSchemaStoresReasonAsInteger(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.UpsertSkipped(ctx, deps.SkippedFile{
		ProjectID: 1, FileID: 2, Reason: deps.ModDistributionNotAllowed, Timestamp: 10, URL: "u",
	}))

	var reason int
	require.NoError(t, s.db.QueryRow("SELECT reason FROM skipped_file").Scan(&reason))
	assert.Equal(t, 5, reason)
}
