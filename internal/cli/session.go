package cli

import (
	"context"
	"errors"

	"github.com/matzehuels/dependents/pkg/archive"
	"github.com/matzehuels/dependents/pkg/buildinfo"
	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/discovery"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/fetch"
	"github.com/matzehuels/dependents/pkg/httputil"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/curseforge"
	"github.com/matzehuels/dependents/pkg/integrations/modpackindex"
	"github.com/matzehuels/dependents/pkg/lock"
	"github.com/matzehuels/dependents/pkg/store"
)

// session bundles the collaborators one command needs. Fields a command did
// not ask for stay nil.
type session struct {
	store    deps.Store
	cache    cache.Cache
	client   *curseforge.Client
	catalog  *curseforge.Catalog
	resolver *deps.Resolver

	closers []func() error
}

type sessionOptions struct {
	// catalog requires an API key and wires the CurseForge client.
	catalog bool
	// discovery wires the configured dependents source.
	discovery bool
	// refresh bypasses cached API responses.
	refresh bool
}

// Close releases everything the session opened, newest first.
func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openSession wires a resolver from the active configuration. The resolver
// always has a store; catalog and discovery are optional so query commands
// work without an API key.
func (c *CLI) openSession(ctx context.Context, opts sessionOptions) (_ *session, err error) {
	s := &session{}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	c.Logger.Debug("opening store", "url", store.Redact(c.cfg.Store))
	st, err := store.Open(ctx, c.cfg.Store)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStoreUnavailable, err, "open store %s", store.Redact(c.cfg.Store))
	}
	s.store = st
	s.closers = append(s.closers, st.Close)

	var (
		catalog    deps.Catalog
		discoverer deps.Discoverer
	)
	if opts.catalog || opts.discovery {
		if err := c.cfg.requireAPIKey(); err != nil {
			return nil, err
		}
		backend, err := c.newCache(ctx)
		if err != nil {
			return nil, err
		}
		s.cache = backend
		s.closers = append(s.closers, backend.Close)

		s.client = curseforge.NewClient(backend, c.cfg.CurseForge.APIKey, c.cfg.Cache.TTL).
			WithBaseURL(c.cfg.CurseForge.BaseURL)
		s.client.WithHTTPClient(httputil.NewClient(c.cfg.HTTPTimeout))
		s.catalog = curseforge.NewCatalog(s.client,
			curseforge.WithCDNURL(c.cfg.CurseForge.CDNURL),
			curseforge.WithRefresh(opts.refresh),
			curseforge.WithLogger(c.Logger),
		)
		catalog = s.catalog
	}
	if opts.discovery {
		discoverer, err = c.newDiscoverer(s, opts.refresh)
		if err != nil {
			return nil, err
		}
	}

	resolverOpts := []deps.Option{
		deps.WithLogger(c.Logger),
		deps.WithOptions(deps.Options{
			BypassDistributionRestriction: c.cfg.Resolve.BypassDistributionRestriction,
			SkipZeroDownloads:             c.cfg.Resolve.SkipZeroDownloads,
			Workers:                       c.cfg.Resolve.Workers,
			KeepTempFiles:                 c.cfg.Fetch.KeepTempFiles,
		}),
	}
	if c.cfg.Redis.Locks {
		locker, err := lock.Connect(ctx, c.cfg.Redis.Addr,
			lock.WithPrefix(redisKeyPrefix+"lock:"),
			lock.WithLogger(c.Logger),
		)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeStoreUnavailable, err, "connect redis lock %s", c.cfg.Redis.Addr)
		}
		s.closers = append(s.closers, locker.Close)
		resolverOpts = append(resolverOpts, deps.WithLocker(locker))
	}
	if c.cfg.Archive.Enabled() {
		a, err := archive.New(c.cfg.Archive)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "manifest archive")
		}
		resolverOpts = append(resolverOpts, deps.WithArchive(a))
	}

	fetcher := fetch.New(httputil.NewClient(c.cfg.HTTPTimeout),
		fetch.WithTempDir(c.cfg.Fetch.TempDir),
		fetch.WithMaxDownloadSize(c.cfg.Fetch.MaxDownloadSize),
		fetch.WithLogger(c.Logger),
	)
	s.resolver = deps.NewResolver(s.store, fetcher, discoverer, catalog, resolverOpts...)
	return s, nil
}

// newDiscoverer builds the configured dependents source on top of the
// session's cache and catalog.
func (c *CLI) newDiscoverer(s *session, refresh bool) (deps.Discoverer, error) {
	opts := discovery.Options{
		BaseURL:     c.cfg.Discovery.SiteURL,
		ProjectType: c.cfg.Discovery.ProjectType,
		Refresh:     refresh,
		Logger:      c.Logger,
	}
	switch discovery.Source(c.cfg.Discovery.Source) {
	case discovery.SourceScrape:
		pages := integrations.NewClient(s.cache, "pages:", c.cfg.Cache.TTL, map[string]string{
			"Accept":     "text/html",
			"User-Agent": buildinfo.UserAgent(),
		})
		pages.WithHTTPClient(httputil.NewClient(c.cfg.HTTPTimeout))
		opts.Pages = pages
		opts.Slugs = s.catalog
	default:
		opts.ModpackIndex = modpackindex.NewClient(s.cache, c.cfg.Cache.TTL).
			WithBaseURL(c.cfg.Discovery.ModpackIndexURL)
	}
	d, err := discovery.New(discovery.Source(c.cfg.Discovery.Source), opts)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "discovery")
	}
	return d, nil
}

// newCache opens the configured HTTP response cache.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	switch c.cfg.Cache.Backend {
	case cacheNone:
		return cache.NewNullCache(), nil
	case cacheMemory:
		return cache.NewMemoryCache(c.cfg.Cache.Entries)
	case cacheRedis:
		rc, err := cache.NewRedisCache(ctx, c.cfg.Redis.Addr, redisKeyPrefix+"cache:")
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeStoreUnavailable, err, "connect redis cache %s", c.cfg.Redis.Addr)
		}
		return rc, nil
	default:
		dir := c.cfg.Cache.Dir
		if dir == "" {
			d, err := cacheDir()
			if err != nil {
				c.Logger.Warn("no cache directory, caching disabled", "error", err)
				return cache.NewNullCache(), nil
			}
			dir = d
		}
		return cache.NewFileCache(dir)
	}
}
