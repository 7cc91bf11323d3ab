// Package httputil provides HTTP plumbing shared by the catalog clients and
// the manifest fetcher.
//
// # Retry
//
// [RetryWithBackoff] re-runs a request for transient failures. Only errors
// wrapped with [Retryable] (or constructed as [RetryableError]) trigger
// another attempt; anything else is returned immediately:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return httputil.Retryable(err)
//	    }
//	    ...
//	})
//
// Manifest downloads are deliberately not retried inline; failed files go to
// the retry queue instead.
//
// # Clients
//
// [NewClient] builds the *http.Client injected into every component that
// talks to the network, so all of them share one timeout policy.
package httputil
