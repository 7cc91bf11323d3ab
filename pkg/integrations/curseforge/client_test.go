package curseforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/integrations"
)

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c := NewClient(cache.NewNullCache(), "test-key", time.Hour).WithBaseURL(server.URL)
	c.WithHTTPClient(server.Client())
	return c
}

func boolPtr(b bool) *bool { return &b }

func TestClient_FetchProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		switch r.URL.Path {
		case "/v1/mods/238222":
			json.NewEncoder(w).Encode(modResponse{Data: Mod{
				ID: 238222, Name: "Just Enough Items", Slug: "jei",
				DownloadCount: 1234.0, AllowModDistribution: boolPtr(true),
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := testClient(t, server)

	mod, err := c.FetchProject(context.Background(), 238222, true)
	if err != nil {
		t.Fatalf("FetchProject() error: %v", err)
	}
	p := mod.Project()
	if p.Slug != "jei" || p.DownloadCount != 1234 || !p.AllowDistribution {
		t.Errorf("Project() = %+v", p)
	}

	_, err = c.FetchProject(context.Background(), 1, true)
	if !errors.Is(err, integrations.ErrNotFound) {
		t.Errorf("FetchProject(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMod_ProjectDistributionFlag(t *testing.T) {
	tests := []struct {
		name string
		flag *bool
		want bool
	}{
		{"allowed", boolPtr(true), true},
		{"restricted", boolPtr(false), false},
		{"missing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (Mod{AllowModDistribution: tt.flag}).Project().AllowDistribution; got != tt.want {
				t.Errorf("AllowDistribution = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_FetchProjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/mods" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var in struct {
			ModIDs []int64 `json:"modIds"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		var out modsResponse
		for _, id := range in.ModIDs {
			if id == 404 {
				continue
			}
			out.Data = append(out.Data, Mod{ID: id, Name: fmt.Sprintf("pack-%d", id)})
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer server.Close()

	cat := NewCatalog(testClient(t, server))

	projects, err := cat.Projects(context.Background(), []int64{1, 404, 2})
	if err != nil {
		t.Fatalf("Projects() error: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != 1 || projects[1].ID != 2 {
		t.Errorf("Projects() = %+v", projects)
	}

	empty, err := cat.Projects(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("Projects(nil) = %v, %v", empty, err)
	}
}

func TestClient_FetchFilesPaginates(t *testing.T) {
	const total = 120
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		index, _ := strconv.Atoi(r.URL.Query().Get("index"))
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		if size != MaxPageSize {
			t.Errorf("pageSize = %d, want %d", size, MaxPageSize)
		}
		var page FilesPage
		for i := index; i < min(index+size, total); i++ {
			url := fmt.Sprintf("https://cdn.example/files/%d.zip", i)
			page.Data = append(page.Data, ModFile{ID: int64(i), ModID: 7, FileName: fmt.Sprintf("%d.zip", i), DownloadURL: &url})
		}
		page.Pagination = Pagination{Index: index, PageSize: size, ResultCount: len(page.Data), TotalCount: total}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	cat := NewCatalog(testClient(t, server))

	files, err := cat.ProjectFiles(context.Background(), 7)
	if err != nil {
		t.Fatalf("ProjectFiles() error: %v", err)
	}
	if len(files) != total {
		t.Fatalf("got %d files, want %d", len(files), total)
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}
	if files[119].ID != 119 || files[119].ProjectID != 7 || files[119].DownloadURL == "" {
		t.Errorf("last file = %+v", files[119])
	}
}

func TestModFile_WithheldURL(t *testing.T) {
	f := ModFile{ID: 3488006, ModID: 9, FileName: "pack.zip"}.File()
	if f.DownloadURL != "" {
		t.Errorf("DownloadURL = %q, want empty", f.DownloadURL)
	}
}

func TestClient_FetchFilesPageBounds(t *testing.T) {
	c := NewClient(cache.NewNullCache(), "", time.Hour)
	tests := []struct {
		name        string
		index, size int
	}{
		{"page too large", 0, 51},
		{"zero page", 0, 0},
		{"past max index", 9990, 50},
		{"negative index", -1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.FetchFilesPage(context.Background(), 1, tt.index, tt.size); err == nil {
				t.Error("FetchFilesPage() should reject out-of-range paging")
			}
		})
	}
}

func TestCatalog_ResolveSlugs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/mods/search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("gameId") != "432" {
			t.Errorf("gameId = %q", r.URL.Query().Get("gameId"))
		}
		slug := r.URL.Query().Get("slug")
		var resp searchResponse
		switch slug {
		case "all-the-mods-9":
			resp.Data = []Mod{{ID: 1, Slug: "all-the-mods-9-sky"}, {ID: 2, Slug: "all-the-mods-9"}}
		case "rlcraft":
			resp.Data = []Mod{{ID: 3, Slug: "rlcraft"}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cat := NewCatalog(testClient(t, server))

	ids, err := cat.ResolveSlugs(context.Background(), []string{"all-the-mods-9", "gone", "rlcraft"})
	if err != nil {
		t.Fatalf("ResolveSlugs() error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 3 {
		t.Errorf("ResolveSlugs() = %v, want [2 3]", ids)
	}
}

func TestCatalog_CDNBaseURL(t *testing.T) {
	c := NewClient(cache.NewNullCache(), "", time.Hour)
	if got := NewCatalog(c).CDNBaseURL(); got != DefaultCDNURL {
		t.Errorf("CDNBaseURL() = %q", got)
	}
	if got := NewCatalog(c, WithCDNURL("https://mirror.example")).CDNBaseURL(); got != "https://mirror.example" {
		t.Errorf("CDNBaseURL() = %q", got)
	}
}
