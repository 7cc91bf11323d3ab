package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/errors"
)

// Queries is the read side of the resolver.
type Queries interface {
	GetFileDependency(ctx context.Context, file deps.FileIdentifier, projectID int64) (*deps.FileIdentifier, error)
	Dependents(ctx context.Context, projectID int64) ([]deps.Edge, error)
	Skipped(ctx context.Context, f deps.SkippedFilter) ([]deps.SkippedFile, error)
}

// Option configures the handler.
type Option func(*handler)

// WithLogger sets the request logger. Defaults to [log.Default].
func WithLogger(l *log.Logger) Option {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics mounts m at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *handler) { h.metrics = m }
}

type handler struct {
	q       Queries
	logger  *log.Logger
	metrics http.Handler
}

// DependencyResponse answers a file dependency query.
type DependencyResponse struct {
	Depends    bool                 `json:"depends"`
	Dependency *deps.FileIdentifier `json:"dependency"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

// NewHandler builds the router. A nil q serves only /healthz and /metrics.
func NewHandler(q Queries, opts ...Option) http.Handler {
	h := &handler{q: q, logger: log.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	if q != nil {
		r.Route("/v1", func(r chi.Router) {
			r.Get("/files/{projectID}/{fileID}/dependencies/{dependencyProjectID}", h.fileDependency)
			r.Get("/projects/{projectID}/dependents", h.dependents)
			r.Get("/skipped", h.skipped)
		})
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no route for %s", r.URL.Path))
	})
	return r
}

func (h *handler) fileDependency(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "projectID")
	if err != nil {
		writeError(w, err)
		return
	}
	fid, err := idParam(r, "fileID")
	if err != nil {
		writeError(w, err)
		return
	}
	dep, err := idParam(r, "dependencyProjectID")
	if err != nil {
		writeError(w, err)
		return
	}

	file := deps.FileIdentifier{ProjectID: pid, FileID: fid}
	found, err := h.q.GetFileDependency(r.Context(), file, dep)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DependencyResponse{Depends: found != nil, Dependency: found})
}

func (h *handler) dependents(w http.ResponseWriter, r *http.Request) {
	pid, err := idParam(r, "projectID")
	if err != nil {
		writeError(w, err)
		return
	}
	edges, err := h.q.Dependents(r.Context(), pid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

func (h *handler) skipped(w http.ResponseWriter, r *http.Request) {
	var f deps.SkippedFilter
	if v := r.URL.Query().Get("reason"); v != "" {
		reason, err := deps.ParseSkipReason(v)
		if err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid reason %q", v))
			return
		}
		f.Reason = &reason
	}
	if v := r.URL.Query().Get("timestamp"); v != "" {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid timestamp %q", v))
			return
		}
		f.Timestamp = &ts
	}

	rows, err := h.q.Skipped(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()))
	})
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s must be a positive integer, got %q", name, raw)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	writeJSON(w, errors.HTTPStatus(code), ErrorResponse{Code: code, Message: errors.UserMessage(err)})
}
