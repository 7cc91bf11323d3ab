package deps

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/manifest"
	"github.com/matzehuels/dependents/pkg/observability"
)

// Run kinds reported to [observability.ResolveHooks.OnRunComplete].
const (
	RunDependents = "dependents"
	RunRetry      = "retry"
)

// Project filter reasons reported to observers. They are never persisted.
const (
	FilterDistribution  = "distribution_not_allowed"
	FilterZeroDownloads = "zero_downloads"
)

// Options configures resolution behavior.
type Options struct {
	BypassDistributionRestriction bool // Resolve restricted projects through synthesized CDN URLs
	SkipZeroDownloads             bool // Skip projects and files nobody downloaded
	Workers                       int  // Files resolved concurrently per project (default: 1)
	KeepTempFiles                 bool // Leave extracted manifests on disk
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return opts
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithOptions sets the resolution options.
func WithOptions(o Options) Option {
	return func(r *Resolver) { r.opts = o.WithDefaults() }
}

// WithLogger sets the logger. Defaults to [log.Default].
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLocker replaces the in-process per-file lock, e.g. with a lock shared
// by several processes writing to the same store.
func WithLocker(l Locker) Option {
	return func(r *Resolver) {
		if l != nil {
			r.locker = l
		}
	}
}

// WithArchive uploads every successfully parsed manifest to a.
func WithArchive(a ManifestArchive) Option {
	return func(r *Resolver) { r.archive = a }
}

// WithClock overrides the time source used for skip timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// Resolver discovers the dependents of a project and records the edges it
// finds in a [Store].
//
// The discoverer and catalog are only needed by [Resolver.ResolveProjectDependents]
// and [Resolver.ResolveProject]; retries and queries work without them.
type Resolver struct {
	store      Store
	fetcher    ManifestFetcher
	discoverer Discoverer
	catalog    Catalog
	archive    ManifestArchive

	opts   Options
	logger *log.Logger
	locker Locker
	now    func() time.Time
}

// NewResolver creates a Resolver over the given collaborators.
func NewResolver(store Store, fetcher ManifestFetcher, discoverer Discoverer, catalog Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		store:      store,
		fetcher:    fetcher,
		discoverer: discoverer,
		catalog:    catalog,
		opts:       Options{}.WithDefaults(),
		logger:     log.Default(),
		locker:     NewKeyedMutex(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of a dependents run.
type Result struct {
	Dependents []Project        `json:"dependents" yaml:"dependents"`
	Files      []FileIdentifier `json:"files" yaml:"files"`
}

// ResolveProjectDependents discovers the candidate dependents of a project,
// resolves every file of every admitted candidate and returns the projects
// with at least one resolved file.
//
// Per-file failures are queued in the store and never abort the run. Store
// and discovery failures do, as does cancellation of ctx.
func (r *Resolver) ResolveProjectDependents(ctx context.Context, projectID int64, name, slug string) (res *Result, err error) {
	logger := r.logger.With("run", uuid.NewString())
	start := r.now()
	attempted := 0
	res = &Result{}
	defer func() {
		observability.Resolve().OnRunComplete(ctx, RunDependents, attempted, len(res.Files), r.now().Sub(start), err)
	}()

	if r.discoverer == nil || r.catalog == nil {
		return res, apperrors.New(apperrors.ErrCodeAdapterUnavailable, "no discovery source configured")
	}

	logger.Info("discovering dependents", "project", projectID, "name", name)
	ids, err := r.discoverer.CandidateDependents(ctx, projectID, name, slug)
	if err != nil {
		return res, apperrors.Wrap(apperrors.ErrCodeAdapterUnavailable, err, "discover dependents of %d", projectID)
	}
	if len(ids) == 0 {
		logger.Info("no candidate dependents found", "project", projectID)
		return res, nil
	}

	projects, err := r.catalog.Projects(ctx, ids)
	if err != nil {
		return res, apperrors.Wrap(apperrors.ErrCodeAdapterUnavailable, err, "load %d candidate projects", len(ids))
	}
	logger.Info("resolving candidates", "candidates", len(ids), "projects", len(projects))

	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		files, n, err := r.resolveProject(ctx, logger, p)
		attempted += n
		if err != nil {
			if apperrors.Is(err, apperrors.ErrCodeAdapterUnavailable) && ctx.Err() == nil {
				logger.Warn("skipping project", "project", p.ID, "name", p.Name, "err", err)
				continue
			}
			return res, err
		}
		if len(files) > 0 {
			res.Dependents = append(res.Dependents, p)
			res.Files = append(res.Files, files...)
		}
	}

	logger.Info("resolution complete", "project", projectID,
		"dependents", len(res.Dependents), "files", len(res.Files), "attempted", attempted)
	return res, nil
}

// ResolveProject applies the project filters to p and resolves each of its
// files, returning the files that are fully resolved afterwards.
func (r *Resolver) ResolveProject(ctx context.Context, p Project) ([]FileIdentifier, error) {
	files, _, err := r.resolveProject(ctx, r.logger, p)
	return files, err
}

func (r *Resolver) resolveProject(ctx context.Context, logger *log.Logger, p Project) ([]FileIdentifier, int, error) {
	logger = logger.With("project", p.ID)

	if !p.AllowDistribution && !r.opts.BypassDistributionRestriction {
		logger.Info("project restricts distribution, skipping", "name", p.Name)
		observability.Resolve().OnProjectFiltered(ctx, p.ID, FilterDistribution)
		return nil, 0, nil
	}
	if r.opts.SkipZeroDownloads && p.DownloadCount == 0 {
		logger.Info("project has no downloads, skipping", "name", p.Name)
		observability.Resolve().OnProjectFiltered(ctx, p.ID, FilterZeroDownloads)
		return nil, 0, nil
	}
	if r.catalog == nil {
		return nil, 0, apperrors.New(apperrors.ErrCodeAdapterUnavailable, "no catalog configured")
	}

	files, err := r.catalog.ProjectFiles(ctx, p.ID)
	if err != nil {
		return nil, 0, apperrors.Wrap(apperrors.ErrCodeAdapterUnavailable, err, "list files of project %d", p.ID)
	}
	logger.Debug("resolving files", "name", p.Name, "files", len(files))

	resolved, err := r.resolveFiles(ctx, logger, p, files)
	return resolved, len(files), err
}

func (r *Resolver) resolveFiles(ctx context.Context, logger *log.Logger, p Project, files []File) ([]FileIdentifier, error) {
	states := make([]FileState, len(files))

	if r.opts.Workers <= 1 {
		for i, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			state, err := r.resolveFile(ctx, logger, p, f)
			if err != nil {
				return nil, err
			}
			states[i] = state
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for i, f := range files {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				state, err := r.resolveFile(gctx, logger, p, f)
				states[i] = state
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var resolved []FileIdentifier
	for i, s := range states {
		if s.Succeeded() {
			resolved = append(resolved, files[i].Identifier())
		}
	}
	return resolved, nil
}

// resolveFile runs the per-file state machine while holding the file's lock.
func (r *Resolver) resolveFile(ctx context.Context, logger *log.Logger, p Project, f File) (FileState, error) {
	if f.ProjectID == 0 {
		f.ProjectID = p.ID
	}
	id := f.Identifier()

	held, unlock, err := r.locker.Lock(ctx, id.Key())
	if err != nil {
		return "", err
	}
	defer unlock()

	state, err := r.resolveLocked(held, logger, p, f)
	if err != nil && lockLost(ctx, held) {
		logger.Warn("lock lost, leaving file for a later run", "file", id.FileID, "err", err)
		state, err = StateLockLost, nil
	}
	if err == nil {
		observability.Resolve().OnFileState(ctx, id.ProjectID, id.FileID, string(state))
	}
	return state, err
}

func (r *Resolver) resolveLocked(ctx context.Context, logger *log.Logger, p Project, f File) (FileState, error) {
	id := f.Identifier()

	done, err := r.isResolved(ctx, id)
	if err != nil {
		return "", err
	}
	if done {
		logger.Debug("already resolved", "file", id.FileID)
		return StateAlreadyResolved, nil
	}

	url := f.DownloadURL
	if !p.AllowDistribution || url == "" {
		url, err = SynthesizeCDNURL(r.catalog.CDNBaseURL(), f.ID, f.FileName)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "derive download url for %s", id)
		}
	}

	if r.opts.SkipZeroDownloads && f.DownloadCount == 0 {
		logger.Debug("file has no downloads, skipping", "file", id.FileID)
		return StateFilteredOut, r.skip(ctx, id, ZeroDownloads, url)
	}

	return r.fetchAndPersist(ctx, logger, id, f.FileName, url)
}

// isResolved reports whether the store holds a resolution record for id and
// exactly as many edges as that record declares.
func (r *Resolver) isResolved(ctx context.Context, id FileIdentifier) (bool, error) {
	rec, err := r.store.FindFileResolution(ctx, id)
	if err != nil {
		return false, storeError(err, "find resolution of %s", id)
	}
	if rec == nil {
		return false, nil
	}
	n, err := r.store.CountEdges(ctx, id)
	if err != nil {
		return false, storeError(err, "count edges of %s", id)
	}
	return n == rec.DependencyCount, nil
}

// fetchAndPersist fetches and parses the manifest of id and records its
// edges. Fetch and parse failures are queued and reported through the
// returned state; only store failures and cancellation return an error.
func (r *Resolver) fetchAndPersist(ctx context.Context, logger *log.Logger, id FileIdentifier, name, url string) (FileState, error) {
	fetched, err := r.fetcher.FetchManifest(ctx, id, name, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		reason := DownloadError
		var fe *FetchError
		if errors.As(err, &fe) {
			reason = fe.Reason
		}
		logger.Warn("fetch failed", "file", id.FileID, "name", name, "reason", reason, "err", err)
		state := StateFetchFailed
		if reason == FileParsingError {
			state = StateParseFailed
		}
		return state, r.skip(ctx, id, reason, url)
	}
	if !r.opts.KeepTempFiles {
		defer func() {
			if err := os.RemoveAll(fetched.Dir); err != nil {
				logger.Debug("cleanup failed", "dir", fetched.Dir, "err", err)
			}
		}()
	}

	m, err := manifest.ParseFile(fetched.Path)
	if err != nil {
		logger.Warn("manifest parse failed", "file", id.FileID, "name", name, "err", err)
		return StateParseFailed, r.skip(ctx, id, FileParsingError, url)
	}

	// A lost lock cancels ctx; do not write without it.
	if err := ctx.Err(); err != nil {
		return "", err
	}
	edges := edgesOf(id, m.Dependencies())
	if err := r.store.UpsertFileResolution(ctx, id, len(edges)); err != nil {
		return "", storeError(err, "record resolution of %s", id)
	}
	for _, e := range edges {
		if err := r.store.UpsertEdge(ctx, e); err != nil {
			return "", storeError(err, "record edge %s -> %s", id, e.Dependency())
		}
	}
	logger.Debug("resolved", "file", id.FileID, "dependencies", len(edges))

	if r.archive != nil {
		if err := r.archive.Put(ctx, id, fetched.Path); err != nil {
			logger.Warn("manifest archive upload failed", "file", id.FileID, "err", err)
		}
	}
	return StatePersisted, nil
}

// edgesOf converts manifest dependencies to distinct edges. The resolution
// record counts distinct edges so that it can match the stored edge count.
func edgesOf(id FileIdentifier, pairs []manifest.Dependency) []Edge {
	seen := make(map[Edge]struct{}, len(pairs))
	edges := make([]Edge, 0, len(pairs))
	for _, d := range pairs {
		e := Edge{
			ProjectID:           id.ProjectID,
			FileID:              id.FileID,
			DependencyProjectID: d.ProjectID,
			DependencyFileID:    d.FileID,
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
	}
	return edges
}

func (r *Resolver) skip(ctx context.Context, id FileIdentifier, reason SkipReason, url string) error {
	s := SkippedFile{
		ProjectID: id.ProjectID,
		FileID:    id.FileID,
		Reason:    reason,
		Timestamp: r.now().Unix(),
		URL:       url,
	}
	if err := r.store.UpsertSkipped(ctx, s); err != nil {
		return storeError(err, "queue %s as %s", id, reason)
	}
	return nil
}

// lockLost reports whether held was cancelled because its lock expired
// while the caller's own ctx is still live.
func lockLost(ctx, held context.Context) bool {
	return ctx.Err() == nil && errors.Is(context.Cause(held), ErrLockLost)
}

func storeError(err error, format string, args ...any) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrCodeStoreUnavailable, err, format, args...)
}
