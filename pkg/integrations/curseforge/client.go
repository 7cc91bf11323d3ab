package curseforge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/httputil"
	"github.com/matzehuels/dependents/pkg/integrations"
)

const (
	// DefaultBaseURL is the public Core API endpoint.
	DefaultBaseURL = "https://api.curseforge.com"

	// DefaultCDNURL serves file downloads.
	DefaultCDNURL = "https://edge.forgecdn.net"

	// MaxPageSize is the largest page the files endpoint accepts.
	MaxPageSize = 50

	// MaxIndex bounds index+pageSize on paginated endpoints.
	MaxIndex = 10000
)

// Client provides access to the CurseForge Core API.
// All methods are safe for concurrent use by multiple goroutines.
type Client struct {
	*integrations.Client
	baseURL string
	keyer   cache.Keyer
}

// NewClient creates a CurseForge client. apiKey is sent as x-api-key on
// every request.
func NewClient(backend cache.Cache, apiKey string, cacheTTL time.Duration) *Client {
	headers := map[string]string{
		"Accept":    "application/json",
		"x-api-key": apiKey,
	}
	return &Client{
		Client:  integrations.NewClient(backend, "curseforge:", cacheTTL, headers),
		baseURL: DefaultBaseURL,
		keyer:   cache.NewDefaultKeyer(),
	}
}

// WithBaseURL points the client at another API host and returns c.
func (c *Client) WithBaseURL(base string) *Client {
	if base != "" {
		c.baseURL = base
	}
	return c
}

// FetchProject retrieves one project record.
//
// Returns [integrations.ErrNotFound] if the project doesn't exist.
func (c *Client) FetchProject(ctx context.Context, projectID int64, refresh bool) (*Mod, error) {
	var mod Mod
	err := c.Cached(ctx, c.keyer.ProjectKey("curseforge", projectID), refresh, &mod, func() error {
		var resp modResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/v1/mods/%d", c.baseURL, projectID), &resp); err != nil {
			if errors.Is(err, integrations.ErrNotFound) {
				return fmt.Errorf("%w: project %d", err, projectID)
			}
			return err
		}
		mod = resp.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

// FetchProjects retrieves several project records in one request. Unknown
// ids are silently omitted by the API. The batch is not cached.
func (c *Client) FetchProjects(ctx context.Context, projectIDs []int64) ([]Mod, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	var resp modsResponse
	err := c.retry(ctx, func() error {
		return c.Post(ctx, c.baseURL+"/v1/mods", map[string][]int64{"modIds": projectIDs}, &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// FetchFiles retrieves every file of a project, walking all pages.
func (c *Client) FetchFiles(ctx context.Context, projectID int64, refresh bool) ([]ModFile, error) {
	var files []ModFile
	err := c.Cached(ctx, c.keyer.FilesKey("curseforge", projectID), refresh, &files, func() error {
		all, err := c.fetchAllFiles(ctx, projectID)
		if err != nil {
			return err
		}
		files = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (c *Client) fetchAllFiles(ctx context.Context, projectID int64) ([]ModFile, error) {
	var all []ModFile
	index := 0
	for {
		page, err := c.fetchFilesPage(ctx, projectID, index, MaxPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		next := page.Pagination.Index + page.Pagination.ResultCount
		if page.Pagination.ResultCount == 0 || next >= page.Pagination.TotalCount {
			return all, nil
		}
		if next+MaxPageSize > MaxIndex {
			// The API refuses pages past this point.
			return all, nil
		}
		index = next
	}
}

// FetchFilesPage retrieves one page of a project's files.
func (c *Client) FetchFilesPage(ctx context.Context, projectID int64, index, pageSize int) (*FilesPage, error) {
	var page *FilesPage
	err := c.retry(ctx, func() error {
		var err error
		page, err = c.fetchFilesPage(ctx, projectID, index, pageSize)
		return err
	})
	return page, err
}

func (c *Client) fetchFilesPage(ctx context.Context, projectID int64, index, pageSize int) (*FilesPage, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("page size %d outside 1..%d", pageSize, MaxPageSize)
	}
	if index < 0 || index+pageSize > MaxIndex {
		return nil, fmt.Errorf("index %d + page size %d exceeds %d", index, pageSize, MaxIndex)
	}
	q := url.Values{}
	q.Set("index", strconv.Itoa(index))
	q.Set("pageSize", strconv.Itoa(pageSize))
	u := fmt.Sprintf("%s/v1/mods/%d/files?%s", c.baseURL, projectID, q.Encode())

	var resp FilesPage
	if err := c.Get(ctx, u, &resp); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: files of project %d", err, projectID)
		}
		return nil, err
	}
	return &resp, nil
}

// FindBySlug returns the Minecraft project with exactly this slug.
func (c *Client) FindBySlug(ctx context.Context, slug string, refresh bool) (*Mod, error) {
	var mod Mod
	err := c.Cached(ctx, c.keyer.HTTPKey("slug", slug), refresh, &mod, func() error {
		q := url.Values{}
		q.Set("gameId", strconv.Itoa(MinecraftGameID))
		q.Set("slug", slug)
		var resp searchResponse
		if err := c.Get(ctx, c.baseURL+"/v1/mods/search?"+q.Encode(), &resp); err != nil {
			return err
		}
		i := slices.IndexFunc(resp.Data, func(m Mod) bool { return m.Slug == slug })
		if i < 0 {
			return fmt.Errorf("%w: slug %q", integrations.ErrNotFound, slug)
		}
		mod = resp.Data[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &mod, nil
}

// Search returns Minecraft projects matching a free-text filter, most
// relevant first. Results are not cached.
func (c *Client) Search(ctx context.Context, filter string, pageSize int) ([]Mod, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	q := url.Values{}
	q.Set("gameId", strconv.Itoa(MinecraftGameID))
	q.Set("searchFilter", filter)
	q.Set("pageSize", strconv.Itoa(pageSize))

	var resp searchResponse
	err := c.retry(ctx, func() error {
		return c.Get(ctx, c.baseURL+"/v1/mods/search?"+q.Encode(), &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	return httputil.RetryWithBackoff(ctx, fn)
}
