package httputil

import (
	"net/http"
	"time"

	"github.com/matzehuels/dependents/pkg/observability"
)

// instrumentedTransport reports every round trip to the registered HTTP hooks.
type instrumentedTransport struct {
	base http.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	hooks := observability.HTTP()
	if err != nil {
		hooks.OnError(req.Context(), req.Method, req.URL.Host, err)
		return nil, err
	}
	hooks.OnResponse(req.Context(), req.Method, req.URL.Host, resp.StatusCode, time.Since(start))
	return resp, nil
}
