// Package modpackindex provides an HTTP client for the Modpack Index API,
// which lists the modpacks that bundle a given mod.
package modpackindex

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/integrations"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://www.modpackindex.com/api"

// pageLimit is the number of results requested per lookup. Only the first
// page is read; a mod missing from the first 100 name matches is treated as
// unknown.
const pageLimit = 100

// CurseInfo links a Modpack Index record to its CurseForge project.
type CurseInfo struct {
	CurseID int64 `json:"curse_id"`
}

// Mod is a mod record.
type Mod struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CurseInfo CurseInfo `json:"curse_info"`
}

// Modpack is a modpack record.
type Modpack struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CurseInfo CurseInfo `json:"curse_info"`
}

type modsResponse struct {
	Data []Mod `json:"data"`
}

type modpacksResponse struct {
	Data []Modpack `json:"data"`
}

// Client provides access to the Modpack Index API.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a Modpack Index client.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:  integrations.NewClient(backend, "modpackindex:", cacheTTL, map[string]string{"Accept": "application/json"}),
		baseURL: DefaultBaseURL,
	}
}

// WithBaseURL points the client at another host and returns c.
func (c *Client) WithBaseURL(base string) *Client {
	if base != "" {
		c.baseURL = base
	}
	return c
}

// FindModID returns the Modpack Index id of the mod whose CurseForge id is
// curseID, searching by name. The boolean is false when no match is found.
func (c *Client) FindModID(ctx context.Context, curseID int64, name string, refresh bool) (int64, bool, error) {
	var mods []Mod
	err := c.Cached(ctx, "search:"+name, refresh, &mods, func() error {
		q := url.Values{}
		q.Set("name", name)
		q.Set("limit", fmt.Sprint(pageLimit))
		q.Set("page", "1")
		var resp modsResponse
		if err := c.Get(ctx, c.baseURL+"/v1/mods?"+q.Encode(), &resp); err != nil {
			return err
		}
		mods = resp.Data
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	for _, m := range mods {
		if m.CurseInfo.CurseID == curseID {
			return m.ID, true, nil
		}
	}
	return 0, false, nil
}

// Modpacks returns the modpacks that include the mod with Modpack Index id
// modID.
func (c *Client) Modpacks(ctx context.Context, modID int64, refresh bool) ([]Modpack, error) {
	var packs []Modpack
	err := c.Cached(ctx, fmt.Sprintf("modpacks:%d", modID), refresh, &packs, func() error {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(pageLimit))
		q.Set("page", "1")
		var resp modpacksResponse
		if err := c.Get(ctx, fmt.Sprintf("%s/v1/mod/%d/modpacks?%s", c.baseURL, modID, q.Encode()), &resp); err != nil {
			return err
		}
		packs = resp.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return packs, nil
}
