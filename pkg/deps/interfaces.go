package deps

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistent edge store. Every method is atomic on its own;
// callers never rely on a transaction spanning two calls.
//
// Find* methods return (nil, nil) when nothing matches.
//
// Implementations live in the store subpackages (sqlstore, mongostore,
// memstore) and must be safe for concurrent use.
type Store interface {
	// UpsertEdge inserts e, ignoring it when the same four-tuple exists.
	UpsertEdge(ctx context.Context, e Edge) error

	// UpsertFileResolution records how many dependencies id declared.
	UpsertFileResolution(ctx context.Context, id FileIdentifier, count int) error

	// UpsertSkipped queues s for retry, replacing any entry for the same file.
	UpsertSkipped(ctx context.Context, s SkippedFile) error

	// DeleteSkipped removes the retry queue entry for id, if any.
	DeleteSkipped(ctx context.Context, id FileIdentifier) error

	// CountEdges returns the number of edges declared by id.
	CountEdges(ctx context.Context, id FileIdentifier) (int, error)

	// FindEdge returns the edge from id to the given dependency project.
	FindEdge(ctx context.Context, id FileIdentifier, dependencyProjectID int64) (*Edge, error)

	// FindFileResolution returns the resolution record for id.
	FindFileResolution(ctx context.Context, id FileIdentifier) (*FileResolution, error)

	// ListSkipped returns every queued file matching f.
	ListSkipped(ctx context.Context, f SkippedFilter) ([]SkippedFile, error)

	// ListDependents returns every edge whose dependency project is projectID.
	ListDependents(ctx context.Context, dependencyProjectID int64) ([]Edge, error)

	// Close releases the underlying connection.
	Close() error
}

// FetchedManifest locates a manifest extracted into a working directory.
// Dir is owned by the caller, who removes it after parsing.
type FetchedManifest struct {
	Path string
	Dir  string
}

// ManifestFetcher retrieves the manifest of one remote file.
//
// Failures that should be queued for retry are returned as *FetchError.
type ManifestFetcher interface {
	FetchManifest(ctx context.Context, id FileIdentifier, name, url string) (*FetchedManifest, error)
}

// FetchError is a classified fetch failure.
type FetchError struct {
	Reason SkipReason
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Reason, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Discoverer yields ids of projects that may depend on a project.
// An empty result means no candidates were found.
type Discoverer interface {
	CandidateDependents(ctx context.Context, projectID int64, name, slug string) ([]int64, error)
}

// Catalog provides project and file metadata.
type Catalog interface {
	// Projects returns the records for ids. Unknown ids are omitted.
	Projects(ctx context.Context, ids []int64) ([]Project, error)

	// ProjectFiles returns every file of a project.
	ProjectFiles(ctx context.Context, projectID int64) ([]File, error)

	// CDNBaseURL is the base used to synthesize download URLs for projects
	// whose catalog entries withhold them.
	CDNBaseURL() string
}

// ManifestArchive keeps a copy of successfully parsed manifests.
type ManifestArchive interface {
	Put(ctx context.Context, id FileIdentifier, path string) error
}
