// Package curseforge provides an HTTP client for the CurseForge Core API.
//
// # Usage
//
//	client := curseforge.NewClient(cache, apiKey, 24*time.Hour)
//
//	project, err := client.FetchProject(ctx, 238222, false)
//	files, err := client.FetchFiles(ctx, 238222, false)
//
// File listings are paginated upstream (50 per page, 10 000 entries at most);
// [Client.FetchFiles] walks every page and returns the concatenation.
//
// # Catalog
//
// [Catalog] adapts the client to the resolver's catalog interface, and
// [Catalog.ResolveSlugs] maps project slugs scraped from listing pages back
// to numeric ids.
package curseforge
