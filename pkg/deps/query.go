package deps

import "context"

// IsFileDependingOnProject reports whether file declares a dependency on any
// file of projectID.
func (r *Resolver) IsFileDependingOnProject(ctx context.Context, file FileIdentifier, projectID int64) (bool, error) {
	e, err := r.store.FindEdge(ctx, file, projectID)
	if err != nil {
		return false, storeError(err, "find edge %s -> %d", file, projectID)
	}
	return e != nil, nil
}

// GetFileDependency returns the file of projectID that file depends on, or
// nil when it declares no such dependency.
func (r *Resolver) GetFileDependency(ctx context.Context, file FileIdentifier, projectID int64) (*FileIdentifier, error) {
	e, err := r.store.FindEdge(ctx, file, projectID)
	if err != nil {
		return nil, storeError(err, "find edge %s -> %d", file, projectID)
	}
	if e == nil {
		return nil, nil
	}
	dep := e.Dependency()
	return &dep, nil
}

// Dependents returns every recorded edge pointing at a file of projectID.
// The result is never nil.
func (r *Resolver) Dependents(ctx context.Context, projectID int64) ([]Edge, error) {
	edges, err := r.store.ListDependents(ctx, projectID)
	if err != nil {
		return nil, storeError(err, "list dependents of %d", projectID)
	}
	if edges == nil {
		edges = []Edge{}
	}
	return edges, nil
}

// Skipped returns the queued files matching f. The result is never nil.
func (r *Resolver) Skipped(ctx context.Context, f SkippedFilter) ([]SkippedFile, error) {
	rows, err := r.store.ListSkipped(ctx, f)
	if err != nil {
		return nil, storeError(err, "list skipped files")
	}
	if rows == nil {
		rows = []SkippedFile{}
	}
	return rows, nil
}
