// Package store opens a deps.Store from a connection URL.
//
//	sqlite:///edges.db            SQLite file (relative)
//	sqlite:////var/lib/edges.db   SQLite file (absolute)
//	sqlite://edges.db             SQLite file (relative)
//	postgres://user:pw@host/db    PostgreSQL
//	mongodb://host:27017/db       MongoDB (database from the path)
//	memory://                     in-memory, lost on exit
//
// SQLite URLs follow the SQLAlchemy form: the slash after "sqlite://" ends
// the empty host and is not part of the path. A URL without a scheme is
// taken as a SQLite file path.
package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/store/memstore"
	"github.com/matzehuels/dependents/pkg/store/mongostore"
	"github.com/matzehuels/dependents/pkg/store/sqlstore"
)

// DefaultURL is used when no store is configured.
const DefaultURL = "sqlite:///dependents.db"

// Backend names a store implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMongo    Backend = "mongodb"
	BackendMemory   Backend = "memory"
)

// Parse reports the backend of rawURL and the backend-specific location.
func Parse(rawURL string) (Backend, string, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		if rawURL == "" {
			return "", "", fmt.Errorf("empty store url")
		}
		return BackendSQLite, rawURL, nil
	}
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3", "file":
		rest = strings.TrimPrefix(rest, "/")
		if rest == "" {
			return "", "", fmt.Errorf("store url %q has no path", rawURL)
		}
		return BackendSQLite, rest, nil
	case "postgres", "postgresql":
		return BackendPostgres, rawURL, nil
	case "mongodb", "mongodb+srv":
		return BackendMongo, rawURL, nil
	case "memory", "mem":
		return BackendMemory, "", nil
	default:
		return "", "", fmt.Errorf("unsupported store scheme %q", scheme)
	}
}

// Open connects to the store at rawURL.
func Open(ctx context.Context, rawURL string) (deps.Store, error) {
	backend, location, err := Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendSQLite:
		return sqlstore.OpenSQLite(ctx, location)
	case BackendPostgres:
		return sqlstore.OpenPostgres(ctx, location)
	case BackendMongo:
		return mongostore.Open(ctx, location, mongoDatabase(location))
	default:
		return memstore.New(), nil
	}
}

func mongoDatabase(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return strings.Trim(u.Path, "/")
}

// Redact hides the password of rawURL for logging.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}
