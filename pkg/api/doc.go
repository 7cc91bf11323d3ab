// Package api serves the recorded dependency edges over HTTP.
//
// Routes:
//
//	GET /v1/files/{projectID}/{fileID}/dependencies/{dependencyProjectID}
//	GET /v1/projects/{projectID}/dependents
//	GET /v1/skipped?reason=&timestamp=
//	GET /metrics
//	GET /healthz
//
// All handlers are read-only. Errors are rendered as {"code", "message"}
// with the status derived from the error code.
package api
