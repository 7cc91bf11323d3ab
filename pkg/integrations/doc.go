// Package integrations provides HTTP clients for the catalog APIs that feed
// the resolver.
//
// Each upstream has its own subpackage:
//
//   - [curseforge]: project records, file listings and slug search
//   - [modpackindex]: the Modpack Index reverse lookup of modpacks per mod
//
// # Client Pattern
//
// Upstream clients embed the shared [Client], which handles:
//
//   - default headers (API keys)
//
//   - response caching through [cache.Cache] with a per-client namespace
//
//   - retry with exponential backoff for transient failures
//
//     c := integrations.NewClient(cache, "curseforge:", 24*time.Hour,
//     map[string]string{"x-api-key": key})
//     err := c.Cached(ctx, "mod:238222", false, &out, func() error {
//     return c.Get(ctx, url, &out)
//     })
//
// Status codes map onto the sentinel errors [ErrNotFound], [ErrUnauthorized],
// [ErrRateLimited] and [ErrNetwork]; 429, 5xx and transport failures are
// wrapped as [httputil.RetryableError].
package integrations
