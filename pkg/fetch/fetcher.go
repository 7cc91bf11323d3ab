package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zip"

	"github.com/matzehuels/dependents/pkg/deps"
	"github.com/matzehuels/dependents/pkg/manifest"
)

// DefaultMaxDownloadSize caps whole-file downloads.
const DefaultMaxDownloadSize int64 = 40_000_000

var (
	// ErrNoManifest is the cause of FILE_PARSING_ERROR when the archive has
	// no manifest entry at its root.
	ErrNoManifest = errors.New("archive has no " + manifest.FileName)

	// ErrTooLarge is the cause of DOWNLOAD_TOO_LARGE.
	ErrTooLarge = errors.New("download exceeds size limit")
)

// Fetcher implements [deps.ManifestFetcher] over HTTP.
type Fetcher struct {
	client  *http.Client
	tempDir string
	maxSize int64
	logger  *log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTempDir sets the parent of per-file working directories.
func WithTempDir(dir string) Option {
	return func(f *Fetcher) {
		if dir != "" {
			f.tempDir = dir
		}
	}
}

// WithMaxDownloadSize sets the whole-file download ceiling. It also caps the
// extracted manifest.
func WithMaxDownloadSize(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a Fetcher issuing requests through client.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:  client,
		tempDir: os.TempDir(),
		maxSize: DefaultMaxDownloadSize,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchManifest extracts the manifest of the archive at url into
// <tempDir>/<project>_<file>/manifest.json.
func (f *Fetcher) FetchManifest(ctx context.Context, id deps.FileIdentifier, name, url string) (*deps.FetchedManifest, error) {
	logger := f.logger.With("file", id.String(), "name", name)

	head, err := f.head(ctx, url)
	if err != nil {
		return nil, downloadError(url, err)
	}

	if head.ranges && head.size > 0 {
		fetched, err := f.fetchRanged(ctx, logger, id, head, url)
		if !errors.Is(err, ErrRangeIgnored) {
			return fetched, err
		}
		logger.Debug("host ignored range request, downloading archive", "size", head.size)
	} else {
		logger.Debug("host does not support ranges, downloading archive", "size", head.size)
	}

	archive, err := f.download(ctx, head)
	if err != nil {
		var fe *deps.FetchError
		if errors.As(err, &fe) {
			fe.URL = url
			return nil, fe
		}
		return nil, downloadError(url, err)
	}
	return f.extract(archive, id, url)
}

// fetchRanged reads only the central directory and the manifest entry.
// Errors matching ErrRangeIgnored are returned for the caller to fall back.
func (f *Fetcher) fetchRanged(ctx context.Context, logger *log.Logger, id deps.FileIdentifier, head *headResult, url string) (*deps.FetchedManifest, error) {
	rr := NewRangeReader(ctx, f.client, head.url, head.size)
	defer func() { logger.Debug("range requests", "count", rr.Requests()) }()

	archive, err := zip.NewReader(rr, head.size)
	if err != nil {
		if errors.Is(err, ErrRangeIgnored) {
			return nil, err
		}
		return nil, downloadError(url, fmt.Errorf("open archive: %w", err))
	}
	return f.extract(archive, id, url)
}

type headResult struct {
	url    string
	size   int64
	ranges bool
}

// head resolves redirects and reads the size and range support of the
// final location.
func (f *Fetcher) head(ctx context.Context, url string) (*headResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("head: status %d", resp.StatusCode)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &headResult{
		url:    final,
		size:   resp.ContentLength,
		ranges: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, head *headResult) (*zip.Reader, error) {
	if head.size > f.maxSize {
		return nil, &deps.FetchError{Reason: deps.DownloadTooLarge, Err: fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, head.size, f.maxSize)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, head.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, &deps.FetchError{Reason: deps.DownloadTooLarge, Err: fmt.Errorf("%w: body over %d bytes", ErrTooLarge, f.maxSize)}
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return archive, nil
}

func (f *Fetcher) extract(archive *zip.Reader, id deps.FileIdentifier, url string) (*deps.FetchedManifest, error) {
	var entry *zip.File
	for _, zf := range archive.File {
		if zf.Name == manifest.FileName {
			entry = zf
			break
		}
	}
	if entry == nil {
		return nil, &deps.FetchError{Reason: deps.FileParsingError, URL: url, Err: ErrNoManifest}
	}

	dir := filepath.Join(f.tempDir, fmt.Sprintf("%d_%d", id.ProjectID, id.FileID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	path := filepath.Join(dir, manifest.FileName)

	if err := writeEntry(entry, path, f.maxSize); err != nil {
		_ = os.RemoveAll(dir)
		if errors.Is(err, ErrTooLarge) {
			return nil, &deps.FetchError{Reason: deps.DownloadTooLarge, URL: url, Err: err}
		}
		return nil, downloadError(url, fmt.Errorf("extract %s: %w", manifest.FileName, err))
	}
	return &deps.FetchedManifest{Path: path, Dir: dir}, nil
}

// writeEntry decompresses entry to path, failing with ErrTooLarge past limit
// bytes.
func writeEntry(entry *zip.File, path string, limit int64) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		out.Close()
		return err
	}
	if n > limit {
		out.Close()
		return fmt.Errorf("%w: %s over %d bytes", ErrTooLarge, manifest.FileName, limit)
	}
	return out.Close()
}

func downloadError(url string, err error) *deps.FetchError {
	return &deps.FetchError{Reason: deps.DownloadError, URL: url, Err: err}
}

var _ deps.ManifestFetcher = (*Fetcher)(nil)
