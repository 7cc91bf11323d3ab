package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// minRangeRead is the smallest span requested per round trip. The zip
// reader issues many small reads near the end of the archive; reading a
// larger window serves most of them from one response.
const minRangeRead = 64 << 10

// ErrRangeIgnored is returned when the server answers a Range request with
// the full body.
var ErrRangeIgnored = errors.New("server ignored range request")

// RangeReader is an io.ReaderAt over a remote resource of known size.
// Each uncached read issues one GET with a Range header.
type RangeReader struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64

	mu       sync.Mutex
	window   []byte
	winStart int64
	requests int
}

// NewRangeReader returns a reader for url, which must serve size bytes.
// The reader does not follow redirects on its own; pass a resolved URL.
func NewRangeReader(ctx context.Context, client *http.Client, url string, size int64) *RangeReader {
	return &RangeReader{ctx: ctx, client: client, url: url, size: size}
}

// Size returns the resource length.
func (r *RangeReader) Size() int64 { return r.size }

// Requests returns the number of range requests issued so far.
func (r *RangeReader) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// ReadAt implements io.ReaderAt.
func (r *RangeReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= r.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if off+want > r.size {
		want = r.size - off
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.covers(off, want) {
		span := max(want, minRangeRead)
		if off+span > r.size {
			span = r.size - off
		}
		if err := r.fill(off, span); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.window[off-r.winStart:off-r.winStart+want])
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (r *RangeReader) covers(off, n int64) bool {
	return r.window != nil && off >= r.winStart && off+n <= r.winStart+int64(len(r.window))
}

func (r *RangeReader) fill(off, n int64) error {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))

	r.requests++
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		if resp.StatusCode == http.StatusOK {
			return ErrRangeIgnored
		}
		return fmt.Errorf("range request: status %d", resp.StatusCode)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return fmt.Errorf("range request: %w", err)
	}
	r.window, r.winStart = buf, off
	return nil
}

var _ io.ReaderAt = (*RangeReader)(nil)
