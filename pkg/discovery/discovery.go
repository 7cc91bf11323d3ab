package discovery

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/integrations/modpackindex"
)

// Source names a discovery backend.
type Source string

const (
	SourceModpackIndex Source = "modpackindex"
	SourceScrape       Source = "scrape"
)

// Sources lists the accepted source names.
var Sources = []Source{SourceModpackIndex, SourceScrape}

// Options carries the collaborators a source may need. Only the fields of
// the selected source are required.
type Options struct {
	ModpackIndex *modpackindex.Client
	Pages        PageFetcher
	Slugs        SlugResolver
	BaseURL      string
	ProjectType  string
	Refresh      bool
	Logger       *log.Logger
}

// New returns the discoverer for source.
func New(source Source, opts Options) (deps.Discoverer, error) {
	switch source {
	case SourceModpackIndex, "":
		if opts.ModpackIndex == nil {
			return nil, fmt.Errorf("discovery source %q needs a modpack index client", source)
		}
		return NewModpackIndex(opts.ModpackIndex, opts.Refresh), nil
	case SourceScrape:
		if opts.Pages == nil || opts.Slugs == nil {
			return nil, fmt.Errorf("discovery source %q needs a page fetcher and slug resolver", source)
		}
		s := NewScraper(opts.Pages, opts.Slugs, opts.Logger)
		if opts.BaseURL != "" {
			s.BaseURL = opts.BaseURL
		}
		if opts.ProjectType != "" {
			s.ProjectType = opts.ProjectType
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown discovery source %q (want one of %v)", source, Sources)
	}
}

// ModpackIndex discovers dependents through the Modpack Index API.
type ModpackIndex struct {
	client  *modpackindex.Client
	refresh bool
}

// NewModpackIndex wraps client.
func NewModpackIndex(client *modpackindex.Client, refresh bool) *ModpackIndex {
	return &ModpackIndex{client: client, refresh: refresh}
}

// CandidateDependents looks the project up by name, matches it by id, and
// returns the CurseForge ids of the modpacks bundling it. A project unknown
// to the index yields no candidates.
func (m *ModpackIndex) CandidateDependents(ctx context.Context, projectID int64, name, _ string) ([]int64, error) {
	mpiID, ok, err := m.client.FindModID(ctx, projectID, name, m.refresh)
	if err != nil {
		return nil, fmt.Errorf("modpack index lookup of %q: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	packs, err := m.client.Modpacks(ctx, mpiID, m.refresh)
	if err != nil {
		return nil, fmt.Errorf("modpack index modpacks of %d: %w", mpiID, err)
	}

	ids := make([]int64, 0, len(packs))
	seen := make(map[int64]bool, len(packs))
	for _, p := range packs {
		id := p.CurseInfo.CurseID
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

var (
	_ deps.Discoverer = (*ModpackIndex)(nil)
	_ deps.Discoverer = (*Scraper)(nil)
)
