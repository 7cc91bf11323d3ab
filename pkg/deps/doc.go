// Package deps resolves which projects depend on a given project by reading
// the manifests bundled in their files.
//
// # Overview
//
// A [Resolver] asks a [Discoverer] for candidate dependents, loads their
// records and file listings from a [Catalog], fetches each file's manifest
// through a [ManifestFetcher] and records the declared dependencies as
// [Edge] values in a [Store]:
//
//	r := deps.NewResolver(store, fetcher, discoverer, catalog,
//	    deps.WithOptions(deps.Options{Workers: 4}),
//	    deps.WithLogger(logger),
//	)
//	res, err := r.ResolveProjectDependents(ctx, 238222, "Just Enough Items", "jei")
//
// # Idempotence
//
// Every successful parse writes a [FileResolution] holding the number of
// edges the manifest declared, followed by the edges themselves. A file
// counts as resolved only when both agree, so an interrupted write is
// detected and the file is fetched again on the next run. A resolved file is
// never fetched twice.
//
// # Retry queue
//
// Files that cannot be resolved are written to the store as [SkippedFile]
// entries tagged with a [SkipReason]. [Resolver.ResolveSkippedFiles] replays
// them and removes the entries that succeed. Projects rejected as a whole
// (distribution restricted, no downloads) are only logged.
//
// # Concurrency
//
// Files of one project are resolved by up to [Options.Workers] goroutines.
// Each file is processed under a [Locker] key, so two runs sharing a store
// never interleave the check and the write for the same file.
package deps
