package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/matzehuels/dependents/pkg/deps"
)

func (s *Store) UpsertEdge(ctx context.Context, e deps.Edge) error {
	return s.exec(ctx, "upsert edge", `
		INSERT INTO dependency (project_id, file_id, dependency_project_id, dependency_file_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		e.ProjectID, e.FileID, e.DependencyProjectID, e.DependencyFileID)
}

func (s *Store) UpsertFileResolution(ctx context.Context, id deps.FileIdentifier, count int) error {
	return s.exec(ctx, "upsert file", `
		INSERT INTO file (project_id, file_id, dependency_count)
		VALUES (?, ?, ?)
		ON CONFLICT (project_id, file_id) DO UPDATE SET dependency_count = excluded.dependency_count`,
		id.ProjectID, id.FileID, count)
}

func (s *Store) UpsertSkipped(ctx context.Context, f deps.SkippedFile) error {
	return s.exec(ctx, "upsert skipped file", `
		INSERT INTO skipped_file (project_id, file_id, reason, "timestamp", url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project_id, file_id) DO UPDATE SET
			reason = excluded.reason,
			"timestamp" = excluded."timestamp",
			url = excluded.url`,
		f.ProjectID, f.FileID, int(f.Reason), f.Timestamp, f.URL)
}

func (s *Store) DeleteSkipped(ctx context.Context, id deps.FileIdentifier) error {
	return s.exec(ctx, "delete skipped file",
		`DELETE FROM skipped_file WHERE project_id = ? AND file_id = ?`,
		id.ProjectID, id.FileID)
}

func (s *Store) CountEdges(ctx context.Context, id deps.FileIdentifier) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM dependency WHERE project_id = ? AND file_id = ?`),
		id.ProjectID, id.FileID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count edges: %w", err)
	}
	return n, nil
}

func (s *Store) FindEdge(ctx context.Context, id deps.FileIdentifier, dependencyProjectID int64) (*deps.Edge, error) {
	e := deps.Edge{ProjectID: id.ProjectID, FileID: id.FileID, DependencyProjectID: dependencyProjectID}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT dependency_file_id FROM dependency
		WHERE project_id = ? AND file_id = ? AND dependency_project_id = ?
		ORDER BY dependency_file_id
		LIMIT 1`),
		id.ProjectID, id.FileID, dependencyProjectID).Scan(&e.DependencyFileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find edge: %w", err)
	}
	return &e, nil
}

func (s *Store) FindFileResolution(ctx context.Context, id deps.FileIdentifier) (*deps.FileResolution, error) {
	r := deps.FileResolution{ProjectID: id.ProjectID, FileID: id.FileID}
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT dependency_count FROM file WHERE project_id = ? AND file_id = ?`),
		id.ProjectID, id.FileID).Scan(&r.DependencyCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find file: %w", err)
	}
	return &r, nil
}

func (s *Store) ListSkipped(ctx context.Context, f deps.SkippedFilter) ([]deps.SkippedFile, error) {
	var (
		where []string
		args  []any
	)
	if f.Reason != nil {
		where = append(where, "reason = ?")
		args = append(args, int(*f.Reason))
	}
	if f.Timestamp != nil {
		where = append(where, `"timestamp" = ?`)
		args = append(args, *f.Timestamp)
	}
	query := `SELECT project_id, file_id, reason, "timestamp", url FROM skipped_file`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY project_id, file_id"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list skipped files: %w", err)
	}
	defer rows.Close()

	var out []deps.SkippedFile
	for rows.Next() {
		var (
			row    deps.SkippedFile
			reason int
		)
		if err := rows.Scan(&row.ProjectID, &row.FileID, &reason, &row.Timestamp, &row.URL); err != nil {
			return nil, fmt.Errorf("sqlstore: scan skipped file: %w", err)
		}
		row.Reason = deps.SkipReason(reason)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list skipped files: %w", err)
	}
	return out, nil
}

func (s *Store) ListDependents(ctx context.Context, dependencyProjectID int64) ([]deps.Edge, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT project_id, file_id, dependency_project_id, dependency_file_id
		FROM dependency
		WHERE dependency_project_id = ?
		ORDER BY project_id, file_id, dependency_file_id`),
		dependencyProjectID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list dependents: %w", err)
	}
	defer rows.Close()

	var out []deps.Edge
	for rows.Next() {
		var e deps.Edge
		if err := rows.Scan(&e.ProjectID, &e.FileID, &e.DependencyProjectID, &e.DependencyFileID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan edge: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list dependents: %w", err)
	}
	return out, nil
}
