package integrations

import (
	"errors"
	"net/http"
	"time"

	"github.com/matzehuels/dependents/pkg/httputil"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a project or resource doesn't exist upstream.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrRateLimited is returned for 429 responses. It is retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnauthorized is returned for 401 and 403 responses, usually a
	// missing or revoked API key.
	ErrUnauthorized = errors.New("unauthorized")
)

// NewHTTPClient creates an HTTP client with a standard timeout for API requests.
func NewHTTPClient() *http.Client {
	return httputil.NewClient(httpTimeout)
}
