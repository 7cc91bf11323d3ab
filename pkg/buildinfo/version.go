// Package buildinfo carries the version stamped into the binary at link time:
//
//	go build -ldflags "-X github.com/matzehuels/dependents/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/dependents/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/dependents/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import "fmt"

// Link-time variables. Unstamped builds report "dev".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the formatted build information.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template returns the version template string for cobra.
func Template() string {
	return fmt.Sprintf("{{.Name}} version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, Date)
}

// UserAgent identifies the tool to the sites it scrapes and downloads from,
// e.g. "dependents/v0.3.0".
func UserAgent() string {
	return "dependents/" + Version
}
