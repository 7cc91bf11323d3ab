package discovery

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"
)

const (
	// DefaultSiteURL hosts the public project pages.
	DefaultSiteURL = "https://www.curseforge.com"

	// DefaultProjectType is the URL segment of mod projects.
	DefaultProjectType = "mc-mods"

	// modpackFilter restricts the dependents listing to modpacks.
	modpackFilter = "6"
)

// PageFetcher returns the body of an HTML page.
type PageFetcher interface {
	GetText(ctx context.Context, url string) (string, error)
}

// SlugResolver maps project slugs to ids, dropping unknown slugs.
type SlugResolver interface {
	ResolveSlugs(ctx context.Context, slugs []string) ([]int64, error)
}

// Scraper discovers dependents from the public listing pages.
type Scraper struct {
	BaseURL     string
	ProjectType string

	pages  PageFetcher
	slugs  SlugResolver
	logger *log.Logger
}

// NewScraper creates a Scraper for mod projects on the public site.
func NewScraper(pages PageFetcher, slugs SlugResolver, logger *log.Logger) *Scraper {
	if logger == nil {
		logger = log.Default()
	}
	return &Scraper{
		BaseURL:     DefaultSiteURL,
		ProjectType: DefaultProjectType,
		pages:       pages,
		slugs:       slugs,
		logger:      logger,
	}
}

// CandidateDependents scrapes every listing page of slug and resolves the
// modpack slugs found there.
func (s *Scraper) CandidateDependents(ctx context.Context, _ int64, _ string, slug string) ([]int64, error) {
	if slug == "" {
		return nil, fmt.Errorf("scrape discovery needs a project slug")
	}
	slugs, err := s.ModpackSlugs(ctx, slug)
	if err != nil {
		return nil, err
	}
	if len(slugs) == 0 {
		return nil, nil
	}
	return s.slugs.ResolveSlugs(ctx, slugs)
}

// ModpackSlugs returns the slugs of every modpack listed as a dependent of
// slug, in page order.
func (s *Scraper) ModpackSlugs(ctx context.Context, slug string) ([]string, error) {
	first, err := s.page(ctx, slug, 1)
	if err != nil {
		return nil, err
	}
	last := maxPage(first)
	s.logger.Debug("scraping dependents", "slug", slug, "pages", last)

	found := listingSlugs(first)
	for n := 2; n <= last; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := s.page(ctx, slug, n)
		if err != nil {
			return nil, err
		}
		found = append(found, listingSlugs(doc)...)
	}
	return found, nil
}

// PageURL returns the listing URL of page n.
func (s *Scraper) PageURL(slug string, n int) string {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		u = &url.URL{Scheme: "https", Host: "www.curseforge.com"}
	}
	u.Path = path.Join("/minecraft", s.ProjectType, slug, "relations", "dependents")
	q := url.Values{}
	q.Set("filter-related-dependents", modpackFilter)
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Scraper) page(ctx context.Context, slug string, n int) (*html.Node, error) {
	body, err := s.pages.GetText(ctx, s.PageURL(slug, n))
	if err != nil {
		return nil, fmt.Errorf("fetch dependents page %d of %q: %w", n, slug, err)
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse dependents page %d of %q: %w", n, slug, err)
	}
	return doc, nil
}

// listingSlugs extracts modpack slugs from "ul.project-listing li" items.
// The first anchor under /minecraft in each item names the project.
func listingSlugs(doc *html.Node) []string {
	var slugs []string
	for _, ul := range findAll(doc, "ul", "project-listing") {
		for _, li := range findAll(ul, "li", "") {
			href := firstHref(li, "/minecraft")
			if href == "" || !strings.Contains(href, "modpacks") {
				continue
			}
			p := strings.TrimRight(strings.SplitN(href, "?", 2)[0], "/")
			slugs = append(slugs, p[strings.LastIndex(p, "/")+1:])
		}
	}
	return slugs
}

// maxPage reads "div.pagination a.pagination-item" links and returns the
// highest ?page= value, at least 1.
func maxPage(doc *html.Node) int {
	highest := 1
	for _, div := range findAll(doc, "div", "pagination") {
		for _, a := range findAll(div, "a", "pagination-item") {
			u, err := url.Parse(attr(a, "href"))
			if err != nil {
				continue
			}
			if n, err := strconv.Atoi(u.Query().Get("page")); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest
}

// findAll returns descendants of n with tag name and, when class is set,
// that class among their classes.
func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		for child := c.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.ElementNode && child.Data == tag && (class == "" || hasClass(child, class)) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(n)
	return out
}

func firstHref(n *html.Node, prefix string) string {
	for _, a := range findAll(n, "a", "") {
		if href := attr(a, "href"); strings.HasPrefix(href, prefix) {
			return href
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
