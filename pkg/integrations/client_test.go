package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/httputil"
	"github.com/matzehuels/dependents/pkg/observability"
)

func testClient(t *testing.T, server *httptest.Server, headers map[string]string) (*Client, cache.Cache) {
	t.Helper()
	c, err := cache.NewMemoryCache(64)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	client := NewClient(c, "test:", time.Hour, headers)
	if server != nil {
		client.WithHTTPClient(server.Client())
	}
	return client, c
}

func TestNewClient(t *testing.T) {
	client, c := testClient(t, nil, map[string]string{"x-api-key": "secret"})

	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if client.cache != c {
		t.Error("NewClient() cache not set correctly")
	}
	if client.headers["x-api-key"] != "secret" {
		t.Error("NewClient() headers not set correctly")
	}

	if NewClient(nil, "", 0, nil).cache == nil {
		t.Error("NewClient(nil cache) should fall back to a null cache")
	}
}

func TestClientGet(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		gotKey = r.Header.Get("x-api-key")
		json.NewEncoder(w).Encode(map[string]string{"message": "hello"})
	}))
	defer server.Close()

	client, _ := testClient(t, server, map[string]string{"x-api-key": "secret"})

	var resp map[string]string
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp["message"] != "hello" {
		t.Errorf("Get() message = %q, want hello", resp["message"])
	}
	if gotKey != "secret" {
		t.Errorf("default header = %q, want secret", gotKey)
	}
}

func TestClientGetWithHeadersOverridesDefaults(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Get("X-Override")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, _ := testClient(t, server, map[string]string{"X-Override": "default"})

	var resp map[string]string
	err := client.GetWithHeaders(context.Background(), server.URL, map[string]string{"X-Override": "overridden"}, &resp)
	if err != nil {
		t.Fatalf("GetWithHeaders() error: %v", err)
	}
	if received != "overridden" {
		t.Errorf("header = %q, want overridden", received)
	}
}

func TestClientPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var in struct {
			ModIDs []int64 `json:"modIds"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]int{"count": len(in.ModIDs)})
	}))
	defer server.Close()

	client, _ := testClient(t, server, nil)

	var out map[string]int
	if err := client.Post(context.Background(), server.URL, map[string][]int64{"modIds": {1, 2, 3}}, &out); err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if out["count"] != 3 {
		t.Errorf("count = %d, want 3", out["count"])
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer server.Close()

	client, _ := testClient(t, server, nil)

	text, err := client.GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("GetText() error: %v", err)
	}
	if text != "<html></html>" {
		t.Errorf("GetText() = %q", text)
	}
}

func TestClientGet404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := testClient(t, server, nil)

	var resp map[string]string
	if err := client.Get(context.Background(), server.URL, &resp); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestClientCached(t *testing.T) {
	client, _ := testClient(t, nil, nil)
	ctx := context.Background()

	fetches := 0
	fetch := func(v *string) func() error {
		return func() error {
			fetches++
			*v = "fetched"
			return nil
		}
	}

	var first string
	if err := client.Cached(ctx, "key", false, &first, fetch(&first)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	var second string
	if err := client.Cached(ctx, "key", false, &second, fetch(&second)); err != nil {
		t.Fatalf("Cached() error: %v", err)
	}
	if second != "fetched" {
		t.Errorf("cached value = %q, want fetched", second)
	}
	if fetches != 1 {
		t.Errorf("fetch count = %d, want 1", fetches)
	}

	var third string
	if err := client.Cached(ctx, "key", true, &third, fetch(&third)); err != nil {
		t.Fatalf("Cached(refresh) error: %v", err)
	}
	if fetches != 2 {
		t.Errorf("refresh should bypass the cache, fetch count = %d", fetches)
	}
}

func TestClientCachedFetchError(t *testing.T) {
	client, c := testClient(t, nil, nil)
	ctx := context.Background()

	var value string
	err := client.Cached(ctx, "missing", false, &value, func() error { return ErrNotFound })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Cached() error = %v, want ErrNotFound", err)
	}
	if _, hit, _ := c.Get(ctx, "test:missing"); hit {
		t.Error("failed fetch must not be cached")
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		want      error
		retryable bool
	}{
		{"200 OK", 200, nil, false},
		{"204 No Content", 204, nil, false},
		{"404 Not Found", 404, ErrNotFound, false},
		{"401 Unauthorized", 401, ErrUnauthorized, false},
		{"403 Forbidden", 403, ErrUnauthorized, false},
		{"429 Too Many Requests", 429, ErrRateLimited, true},
		{"500 Internal Server Error", 500, ErrNetwork, true},
		{"503 Service Unavailable", 503, ErrNetwork, true},
		{"400 Bad Request", 400, ErrNetwork, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStatus(tt.code)
			if tt.want == nil {
				if err != nil {
					t.Errorf("checkStatus() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("checkStatus() error = %v, want %v", err, tt.want)
			}
			if httputil.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", httputil.IsRetryable(err), tt.retryable)
			}
		})
	}
}

type countingCacheHooks struct {
	hits, misses, sets int
}

func (h *countingCacheHooks) OnCacheHit(context.Context, string)      { h.hits++ }
func (h *countingCacheHooks) OnCacheMiss(context.Context, string)     { h.misses++ }
func (h *countingCacheHooks) OnCacheSet(context.Context, string, int) { h.sets++ }

func TestClientCachedReportsHooks(t *testing.T) {
	hooks := &countingCacheHooks{}
	observability.SetCacheHooks(hooks)
	t.Cleanup(observability.Reset)

	client, _ := testClient(t, nil, nil)
	ctx := context.Background()
	for range 3 {
		var v string
		if err := client.Cached(ctx, "key", false, &v, func() error { v = "x"; return nil }); err != nil {
			t.Fatal(err)
		}
	}
	if hooks.misses != 1 || hooks.sets != 1 || hooks.hits != 2 {
		t.Errorf("hooks = %+v, want 1 miss, 1 set, 2 hits", *hooks)
	}
}
