package curseforge

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/integrations"
)

// projectBatch bounds the ids sent in one POST /v1/mods request.
const projectBatch = 500

// Catalog adapts a Client to [deps.Catalog].
type Catalog struct {
	client  *Client
	cdnURL  string
	refresh bool
	logger  *log.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCDNURL overrides the base used to synthesize download URLs.
func WithCDNURL(u string) CatalogOption {
	return func(c *Catalog) {
		if u != "" {
			c.cdnURL = u
		}
	}
}

// WithRefresh bypasses cached file listings.
func WithRefresh(refresh bool) CatalogOption {
	return func(c *Catalog) { c.refresh = refresh }
}

// WithLogger sets the logger used for per-slug failures.
func WithLogger(l *log.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog wraps client.
func NewCatalog(client *Client, opts ...CatalogOption) *Catalog {
	c := &Catalog{client: client, cdnURL: DefaultCDNURL, logger: log.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Projects returns the records of ids in batches. Unknown ids are omitted.
func (c *Catalog) Projects(ctx context.Context, ids []int64) ([]deps.Project, error) {
	out := make([]deps.Project, 0, len(ids))
	for start := 0; start < len(ids); start += projectBatch {
		end := min(start+projectBatch, len(ids))
		mods, err := c.client.FetchProjects(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, m := range mods {
			out = append(out, m.Project())
		}
	}
	return out, nil
}

// Project returns a single project record.
func (c *Catalog) Project(ctx context.Context, id int64) (*deps.Project, error) {
	mod, err := c.client.FetchProject(ctx, id, c.refresh)
	if err != nil {
		return nil, err
	}
	p := mod.Project()
	return &p, nil
}

// ProjectFiles returns every file of a project.
func (c *Catalog) ProjectFiles(ctx context.Context, projectID int64) ([]deps.File, error) {
	files, err := c.client.FetchFiles(ctx, projectID, c.refresh)
	if err != nil {
		return nil, err
	}
	out := make([]deps.File, 0, len(files))
	for _, f := range files {
		file := f.File()
		if file.ProjectID == 0 {
			file.ProjectID = projectID
		}
		out = append(out, file)
	}
	return out, nil
}

// CDNBaseURL returns the edge CDN base.
func (c *Catalog) CDNBaseURL() string { return c.cdnURL }

// ResolveSlugs maps project slugs to ids in input order. Slugs that cannot
// be resolved are logged and skipped; a cancelled context aborts.
func (c *Catalog) ResolveSlugs(ctx context.Context, slugs []string) ([]int64, error) {
	ids := make([]int64, 0, len(slugs))
	for _, slug := range slugs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mod, err := c.client.FindBySlug(ctx, slug, false)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			level := log.WarnLevel
			if errors.Is(err, integrations.ErrNotFound) {
				level = log.DebugLevel
			}
			c.logger.Log(level, "could not resolve slug", "slug", slug, "err", err)
			continue
		}
		ids = append(ids, mod.ID)
	}
	return ids, nil
}

var _ deps.Catalog = (*Catalog)(nil)
