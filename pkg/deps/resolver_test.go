package deps_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/dependents/pkg/deps"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/observability"
	"github.com/matzehuels/dependents/pkg/store/memstore"
)

const twoDeps = `{"files":[{"projectID":1,"fileID":10},{"projectID":2,"fileID":20}]}`

// fakeFetcher serves manifests from memory and counts calls.
type fakeFetcher struct {
	t         *testing.T
	mu        sync.Mutex
	manifests map[deps.FileIdentifier]string
	failures  map[deps.FileIdentifier]error
	urls      map[deps.FileIdentifier]string
	calls     atomic.Int32
	dirs      []string
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	return &fakeFetcher{
		t:         t,
		manifests: make(map[deps.FileIdentifier]string),
		failures:  make(map[deps.FileIdentifier]error),
		urls:      make(map[deps.FileIdentifier]string),
	}
}

func (f *fakeFetcher) set(id deps.FileIdentifier, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifests[id] = body
	delete(f.failures, id)
}

func (f *fakeFetcher) fail(id deps.FileIdentifier, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = err
}

func (f *fakeFetcher) FetchManifest(ctx context.Context, id deps.FileIdentifier, name, url string) (*deps.FetchedManifest, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[id] = url
	if err, ok := f.failures[id]; ok {
		return nil, err
	}
	body, ok := f.manifests[id]
	if !ok {
		return nil, &deps.FetchError{Reason: deps.DownloadError, URL: url, Err: errors.New("no such file")}
	}
	dir := filepath.Join(f.t.TempDir(), id.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return nil, err
	}
	f.dirs = append(f.dirs, dir)
	return &deps.FetchedManifest{Path: path, Dir: dir}, nil
}

type fakeCatalog struct {
	projects map[int64]deps.Project
	files    map[int64][]deps.File
	err      error
}

func (c *fakeCatalog) Projects(_ context.Context, ids []int64) ([]deps.Project, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []deps.Project
	for _, id := range ids {
		if p, ok := c.projects[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ProjectFiles(_ context.Context, id int64) ([]deps.File, error) {
	files, ok := c.files[id]
	if !ok {
		return nil, errors.New("listing failed")
	}
	return files, nil
}

func (c *fakeCatalog) CDNBaseURL() string { return "https://edge.forgecdn.net" }

type fakeDiscoverer struct {
	ids []int64
	err error
}

func (d fakeDiscoverer) CandidateDependents(context.Context, int64, string, string) ([]int64, error) {
	return d.ids, d.err
}

// failingStore fails every call.
type failingStore struct{ deps.Store }

func (failingStore) FindFileResolution(context.Context, deps.FileIdentifier) (*deps.FileResolution, error) {
	return nil, errors.New("database is locked")
}

func fixedClock() time.Time { return time.Unix(1700000000, 0) }

func pack(id int64, files ...deps.File) (deps.Project, []deps.File) {
	for i := range files {
		files[i].ProjectID = id
	}
	return deps.Project{ID: id, Name: "pack", Slug: "pack", AllowDistribution: true, DownloadCount: 100}, files
}

func newResolver(t *testing.T, store deps.Store, f deps.ManifestFetcher, c *fakeCatalog, ids []int64, opts deps.Options) *deps.Resolver {
	t.Helper()
	return deps.NewResolver(store, f, fakeDiscoverer{ids: ids}, c,
		deps.WithOptions(opts),
		deps.WithClock(fixedClock),
	)
}

func TestResolveProject_PersistsEdges(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
	fetcher.set(id, twoDeps)

	p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
	c := &fakeCatalog{files: map[int64][]deps.File{100: files}}
	r := newResolver(t, store, fetcher, c, nil, deps.Options{})

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 1 || got[0] != id {
		t.Fatalf("resolved = %v, want [%v]", got, id)
	}

	rec, err := store.FindFileResolution(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("FindFileResolution = %v, %v", rec, err)
	}
	if rec.DependencyCount != 2 {
		t.Errorf("DependencyCount = %d, want 2", rec.DependencyCount)
	}
	for _, want := range []deps.Edge{
		{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10},
		{ProjectID: 100, FileID: 200, DependencyProjectID: 2, DependencyFileID: 20},
	} {
		e, err := store.FindEdge(ctx, id, want.DependencyProjectID)
		if err != nil || e == nil || *e != want {
			t.Errorf("FindEdge(%d) = %v, %v; want %v", want.DependencyProjectID, e, err, want)
		}
	}
	for _, dir := range fetcher.dirs {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("working directory %s not removed", dir)
		}
	}
}

func TestResolveProject_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
	fetcher.set(id, twoDeps)

	p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
	c := &fakeCatalog{files: map[int64][]deps.File{100: files}}
	r := newResolver(t, store, fetcher, c, nil, deps.Options{})

	for range 2 {
		got, err := r.ResolveProject(ctx, p)
		if err != nil {
			t.Fatalf("ResolveProject: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("resolved = %v, want one file", got)
		}
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if n, _ := store.CountEdges(ctx, id); n != 2 {
		t.Errorf("CountEdges = %d, want 2", n)
	}
}

func TestResolveProject_RefetchesIncompleteFile(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}

	// A run interrupted after the record and one of two edges.
	_ = store.UpsertFileResolution(ctx, id, 2)
	_ = store.UpsertEdge(ctx, deps.Edge{ProjectID: 100, FileID: 200, DependencyProjectID: 1, DependencyFileID: 10})

	fetcher := newFakeFetcher(t)
	fetcher.set(id, twoDeps)
	p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
	r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{})

	if _, err := r.ResolveProject(ctx, p); err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if n, _ := store.CountEdges(ctx, id); n != 2 {
		t.Errorf("CountEdges = %d, want 2", n)
	}
}

func TestResolveProject_ParseFailureQueued(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 201}
	fetcher.set(id, `{}`)

	url := "https://example.com/broken.zip"
	p, files := pack(100, deps.File{ID: 201, FileName: "broken.zip", DownloadURL: url, DownloadCount: 5})
	r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{})

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("resolved = %v, want none", got)
	}

	skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{})
	want := deps.SkippedFile{ProjectID: 100, FileID: 201, Reason: deps.FileParsingError, Timestamp: fixedClock().Unix(), URL: url}
	if len(skipped) != 1 || skipped[0] != want {
		t.Errorf("skipped = %+v, want [%+v]", skipped, want)
	}
	if n, _ := store.CountEdges(ctx, id); n != 0 {
		t.Errorf("CountEdges = %d, want 0", n)
	}
	if rec, _ := store.FindFileResolution(ctx, id); rec != nil {
		t.Errorf("resolution recorded for unparsable manifest: %+v", rec)
	}
}

func TestResolveProject_FetchFailureQueued(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason deps.SkipReason
	}{
		{"classified", &deps.FetchError{Reason: deps.DownloadTooLarge, Err: errors.New("too big")}, deps.DownloadTooLarge},
		{"unclassified", errors.New("boom"), deps.DownloadError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			fetcher := newFakeFetcher(t)
			id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
			fetcher.fail(id, tt.err)

			p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
			r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{})

			if _, err := r.ResolveProject(ctx, p); err != nil {
				t.Fatalf("ResolveProject: %v", err)
			}
			skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{})
			if len(skipped) != 1 || skipped[0].Reason != tt.reason {
				t.Errorf("skipped = %+v, want reason %s", skipped, tt.reason)
			}
		})
	}
}

func TestResolveProject_WorkingDirectory(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		keep     bool
		wantKept bool
	}{
		{"parsed", twoDeps, false, false},
		{"parse failure", `{}`, false, false},
		{"parsed, keep temp files", twoDeps, true, true},
		{"parse failure, keep temp files", `{}`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			fetcher := newFakeFetcher(t)
			id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
			fetcher.set(id, tt.body)

			p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
			r := newResolver(t, memstore.New(), fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{KeepTempFiles: tt.keep})

			if _, err := r.ResolveProject(ctx, p); err != nil {
				t.Fatalf("ResolveProject: %v", err)
			}
			if len(fetcher.dirs) != 1 {
				t.Fatalf("fetches = %d, want 1", len(fetcher.dirs))
			}
			_, err := os.Stat(fetcher.dirs[0])
			if kept := err == nil; kept != tt.wantKept {
				t.Errorf("directory kept = %v, want %v (stat: %v)", kept, tt.wantKept, err)
			}
		})
	}
}

// stateRecorder collects the file states reported to observers.
type stateRecorder struct {
	observability.NoopResolveHooks
	mu     sync.Mutex
	states []string
}

func (s *stateRecorder) OnFileState(_ context.Context, _, _ int64, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func TestResolveProject_ReportedStateMatchesReason(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		state deps.FileState
	}{
		{"download error", &deps.FetchError{Reason: deps.DownloadError, Err: errors.New("reset")}, deps.StateFetchFailed},
		{"too large", &deps.FetchError{Reason: deps.DownloadTooLarge, Err: errors.New("too big")}, deps.StateFetchFailed},
		{"no manifest in archive", &deps.FetchError{Reason: deps.FileParsingError, Err: errors.New("archive has no manifest.json")}, deps.StateParseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stateRecorder{}
			observability.SetResolveHooks(rec)
			t.Cleanup(observability.Reset)

			fetcher := newFakeFetcher(t)
			id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
			fetcher.fail(id, tt.err)
			p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
			r := newResolver(t, memstore.New(), fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{})

			if _, err := r.ResolveProject(context.Background(), p); err != nil {
				t.Fatalf("ResolveProject: %v", err)
			}
			if len(rec.states) != 1 || rec.states[0] != string(tt.state) {
				t.Errorf("states = %v, want [%s]", rec.states, tt.state)
			}
		})
	}
}

func TestResolveProject_ZeroDownloadFileNeverFetched(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	fetcher.set(deps.FileIdentifier{ProjectID: 100, FileID: 200}, twoDeps)

	p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 0})
	r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{SkipZeroDownloads: true})

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("resolved = %v, want none", got)
	}
	if n := fetcher.calls.Load(); n != 0 {
		t.Errorf("fetch calls = %d, want 0", n)
	}
	skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{})
	if len(skipped) != 1 || skipped[0].Reason != deps.ZeroDownloads {
		t.Errorf("skipped = %+v, want one ZERO_DOWNLOADS entry", skipped)
	}
}

func TestResolveProject_ProjectFilters(t *testing.T) {
	tests := []struct {
		name    string
		project deps.Project
		opts    deps.Options
	}{
		{
			name:    "distribution restricted",
			project: deps.Project{ID: 100, AllowDistribution: false, DownloadCount: 10},
		},
		{
			name:    "zero downloads",
			project: deps.Project{ID: 100, AllowDistribution: true, DownloadCount: 0},
			opts:    deps.Options{SkipZeroDownloads: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			fetcher := newFakeFetcher(t)
			fetcher.set(deps.FileIdentifier{ProjectID: 100, FileID: 200}, twoDeps)
			c := &fakeCatalog{files: map[int64][]deps.File{100: {{ProjectID: 100, ID: 200, FileName: "a.zip", DownloadCount: 5}}}}
			r := newResolver(t, store, fetcher, c, nil, tt.opts)

			got, err := r.ResolveProject(ctx, tt.project)
			if err != nil {
				t.Fatalf("ResolveProject: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("resolved = %v, want none", got)
			}
			if n := fetcher.calls.Load(); n != 0 {
				t.Errorf("fetch calls = %d, want 0", n)
			}
			skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{})
			if len(skipped) != 0 {
				t.Errorf("project-level exclusion persisted: %+v", skipped)
			}
			if n, _ := store.CountEdges(ctx, deps.FileIdentifier{ProjectID: 100, FileID: 200}); n != 0 {
				t.Errorf("CountEdges = %d, want 0", n)
			}
		})
	}
}

func TestResolveProject_BypassSynthesizesURL(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 3488006}
	fetcher.set(id, twoDeps)

	p := deps.Project{ID: 100, AllowDistribution: false, DownloadCount: 10}
	c := &fakeCatalog{files: map[int64][]deps.File{100: {{ProjectID: 100, ID: 3488006, FileName: "Pack 1.0.zip", DownloadCount: 5}}}}
	r := newResolver(t, memstore.New(), fetcher, c, nil, deps.Options{BypassDistributionRestriction: true})

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("resolved = %v, want one file", got)
	}
	want := "https://edge.forgecdn.net/files/3488/006/Pack%201.0.zip"
	if fetcher.urls[id] != want {
		t.Errorf("fetched url = %q, want %q", fetcher.urls[id], want)
	}
}

func TestResolveProject_ConcurrentWorkers(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)

	var files []deps.File
	for fid := int64(1); fid <= 20; fid++ {
		fetcher.set(deps.FileIdentifier{ProjectID: 100, FileID: fid}, twoDeps)
		files = append(files, deps.File{ID: fid, FileName: "f.zip", DownloadURL: "https://example.com/f.zip", DownloadCount: 1})
	}
	// A file without a manifest is queued, the rest resolve.
	files = append(files, deps.File{ID: 99, FileName: "missing.zip", DownloadURL: "https://example.com/missing.zip", DownloadCount: 1})

	p, files := pack(100, files...)
	r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{Workers: 4})

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("resolved %d files, want 20", len(got))
	}
	for i, id := range got {
		if id.FileID != int64(i+1) {
			t.Errorf("resolved[%d] = %v, want file %d", i, id, i+1)
		}
	}
	skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{})
	if len(skipped) != 1 || skipped[0].FileID != 99 {
		t.Errorf("skipped = %+v, want file 99", skipped)
	}
}

func TestResolveProjectDependents(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	fetcher.set(deps.FileIdentifier{ProjectID: 100, FileID: 200}, twoDeps)
	fetcher.set(deps.FileIdentifier{ProjectID: 101, FileID: 300}, `{}`)

	ok, okFiles := pack(100, deps.File{ID: 200, FileName: "a.zip", DownloadURL: "https://example.com/a.zip", DownloadCount: 1})
	broken, brokenFiles := pack(101, deps.File{ID: 300, FileName: "b.zip", DownloadURL: "https://example.com/b.zip", DownloadCount: 1})
	restricted := deps.Project{ID: 102, AllowDistribution: false, DownloadCount: 1}
	unlisted := deps.Project{ID: 103, AllowDistribution: true, DownloadCount: 1}

	c := &fakeCatalog{
		projects: map[int64]deps.Project{100: ok, 101: broken, 102: restricted, 103: unlisted},
		files:    map[int64][]deps.File{100: okFiles, 101: brokenFiles, 102: nil},
	}
	r := newResolver(t, store, fetcher, c, []int64{100, 101, 102, 103, 104}, deps.Options{})

	res, err := r.ResolveProjectDependents(ctx, 1, "lib", "lib")
	if err != nil {
		t.Fatalf("ResolveProjectDependents: %v", err)
	}
	if len(res.Dependents) != 1 || res.Dependents[0].ID != 100 {
		t.Errorf("Dependents = %+v, want project 100", res.Dependents)
	}
	if len(res.Files) != 1 || res.Files[0] != (deps.FileIdentifier{ProjectID: 100, FileID: 200}) {
		t.Errorf("Files = %v", res.Files)
	}

	dependents, err := r.Dependents(ctx, 1)
	if err != nil || len(dependents) != 1 {
		t.Errorf("Dependents(1) = %v, %v", dependents, err)
	}
}

func TestResolveProjectDependents_NoCandidates(t *testing.T) {
	r := newResolver(t, memstore.New(), newFakeFetcher(t), &fakeCatalog{}, nil, deps.Options{})
	res, err := r.ResolveProjectDependents(context.Background(), 1, "lib", "lib")
	if err != nil {
		t.Fatalf("ResolveProjectDependents: %v", err)
	}
	if len(res.Dependents) != 0 || len(res.Files) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestResolveProjectDependents_FatalErrors(t *testing.T) {
	p, files := pack(100, deps.File{ID: 200, FileName: "a.zip", DownloadURL: "https://example.com/a.zip", DownloadCount: 1})
	good := &fakeCatalog{projects: map[int64]deps.Project{100: p}, files: map[int64][]deps.File{100: files}}

	tests := []struct {
		name       string
		store      deps.Store
		discoverer deps.Discoverer
		catalog    *fakeCatalog
		code       apperrors.Code
	}{
		{"discovery", memstore.New(), fakeDiscoverer{err: errors.New("offline")}, good, apperrors.ErrCodeAdapterUnavailable},
		{"catalog", memstore.New(), fakeDiscoverer{ids: []int64{100}}, &fakeCatalog{err: errors.New("offline")}, apperrors.ErrCodeAdapterUnavailable},
		{"store", failingStore{memstore.New()}, fakeDiscoverer{ids: []int64{100}}, good, apperrors.ErrCodeStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := deps.NewResolver(tt.store, newFakeFetcher(t), tt.discoverer, tt.catalog)
			_, err := r.ResolveProjectDependents(context.Background(), 1, "lib", "lib")
			if !apperrors.Is(err, tt.code) {
				t.Errorf("err = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestResolveProjectDependents_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, files := pack(100, deps.File{ID: 200, FileName: "a.zip", DownloadURL: "https://example.com/a.zip", DownloadCount: 1})
	c := &fakeCatalog{projects: map[int64]deps.Project{100: p}, files: map[int64][]deps.File{100: files}}
	fetcher := newFakeFetcher(t)
	r := newResolver(t, memstore.New(), fetcher, c, []int64{100}, deps.Options{})

	if _, err := r.ResolveProjectDependents(ctx, 1, "lib", "lib"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if n := fetcher.calls.Load(); n != 0 {
		t.Errorf("fetch calls = %d, want 0", n)
	}
}

// losingLocker hands out held contexts that are already cancelled with
// ErrLockLost, as if another process took every key.
type losingLocker struct{}

func (losingLocker) Lock(ctx context.Context, _ string) (context.Context, func(), error) {
	held, cancel := context.WithCancelCause(ctx)
	cancel(deps.ErrLockLost)
	return held, func() {}, nil
}

func TestResolveProject_LockLostDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
	fetcher.set(id, twoDeps)
	rec := &stateRecorder{}
	observability.SetResolveHooks(rec)
	t.Cleanup(observability.Reset)

	p, files := pack(100, deps.File{ID: 200, FileName: "pack.zip", DownloadURL: "https://example.com/pack.zip", DownloadCount: 5})
	r := deps.NewResolver(store, fetcher, nil, &fakeCatalog{files: map[int64][]deps.File{100: files}},
		deps.WithLocker(losingLocker{}))

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("resolved = %v, want none", got)
	}
	if res, _ := store.FindFileResolution(ctx, id); res != nil {
		t.Errorf("resolution recorded without the lock: %+v", res)
	}
	if n, _ := store.CountEdges(ctx, id); n != 0 {
		t.Errorf("edges = %d, want 0", n)
	}
	if skipped, _ := store.ListSkipped(ctx, deps.SkippedFilter{}); len(skipped) != 0 {
		t.Errorf("skipped = %+v, want none", skipped)
	}
	if len(rec.states) != 1 || rec.states[0] != string(deps.StateLockLost) {
		t.Errorf("states = %v, want [%s]", rec.states, deps.StateLockLost)
	}
}

type recordingArchive struct {
	mu  sync.Mutex
	ids []deps.FileIdentifier
	err error
}

func (a *recordingArchive) Put(_ context.Context, id deps.FileIdentifier, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	a.ids = append(a.ids, id)
	return a.err
}

func TestResolveProject_Archive(t *testing.T) {
	ctx := context.Background()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
	fetcher.set(id, twoDeps)

	p, files := pack(100, deps.File{ID: 200, FileName: "a.zip", DownloadURL: "https://example.com/a.zip", DownloadCount: 1})
	archive := &recordingArchive{err: errors.New("bucket unavailable")}
	r := deps.NewResolver(memstore.New(), fetcher, nil, &fakeCatalog{files: map[int64][]deps.File{100: files}},
		deps.WithArchive(archive))

	got, err := r.ResolveProject(ctx, p)
	if err != nil {
		t.Fatalf("ResolveProject: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("archive failure changed the file state: resolved = %v", got)
	}
	if len(archive.ids) != 1 || archive.ids[0] != id {
		t.Errorf("archived = %v, want [%v]", archive.ids, id)
	}
}

func TestEdgesAreDeduplicated(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	fetcher := newFakeFetcher(t)
	id := deps.FileIdentifier{ProjectID: 100, FileID: 200}
	fetcher.set(id, `{"files":[{"projectID":1,"fileID":10},{"projectID":1,"fileID":10}]}`)

	p, files := pack(100, deps.File{ID: 200, FileName: "a.zip", DownloadURL: "https://example.com/a.zip", DownloadCount: 1})
	r := newResolver(t, store, fetcher, &fakeCatalog{files: map[int64][]deps.File{100: files}}, nil, deps.Options{})

	for range 2 {
		if _, err := r.ResolveProject(ctx, p); err != nil {
			t.Fatalf("ResolveProject: %v", err)
		}
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	rec, _ := store.FindFileResolution(ctx, id)
	if rec == nil || rec.DependencyCount != 1 {
		t.Errorf("resolution = %+v, want count 1", rec)
	}
}

func TestQueriesReturnEmptySlices(t *testing.T) {
	ctx := context.Background()
	r := deps.NewResolver(memstore.New(), nil, nil, nil)

	edges, err := r.Dependents(ctx, 42)
	if err != nil || edges == nil || len(edges) != 0 {
		t.Errorf("Dependents = %v, %v; want empty non-nil", edges, err)
	}
	rows, err := r.Skipped(ctx, deps.SkippedFilter{})
	if err != nil || rows == nil || len(rows) != 0 {
		t.Errorf("Skipped = %v, %v; want empty non-nil", rows, err)
	}
}
