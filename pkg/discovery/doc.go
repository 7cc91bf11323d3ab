// Package discovery finds candidate dependents of a project.
//
// Two sources are available:
//
//   - [ModpackIndex] asks the Modpack Index API which modpacks bundle the
//     project. Fast, but only covers packs the index has crawled.
//   - [Scraper] walks the public "dependents" listing pages of the project
//     and maps the modpack slugs it finds back to project ids.
//
// Both implement [deps.Discoverer]; [New] picks one by name. Candidates are
// unverified: the resolver confirms each one by reading its manifests.
package discovery
