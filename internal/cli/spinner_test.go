package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerAnimatesOnTerminal(t *testing.T) {
	var out syncBuffer
	s := newSpinnerTo(context.Background(), &out, true, "Resolving...")
	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Update("Resolving project 2...")
	time.Sleep(2 * spinnerInterval)
	s.Stop()

	got := out.String()
	if !strings.Contains(got, "Resolving...") || !strings.Contains(got, "Resolving project 2...") {
		t.Errorf("spinner output missing messages: %q", got)
	}
	if !strings.HasSuffix(got, "\r") {
		t.Errorf("spinner should clear its line on stop: %q", got)
	}
}

func TestSpinnerSilentOffTerminal(t *testing.T) {
	var out syncBuffer
	s := newSpinnerTo(context.Background(), &out, false, "Resolving...")
	s.Start()
	time.Sleep(2 * spinnerInterval)
	s.Stop()

	if got := out.String(); got != "" {
		t.Errorf("disabled spinner wrote %q", got)
	}
}

func TestSpinnerCancelledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinnerTo(ctx, &syncBuffer{}, true, "Working...")
	s.Start()

	if s.Cancelled() {
		t.Fatal("spinner should not start cancelled")
	}
	cancel()
	s.Stop()
	if !s.Cancelled() {
		t.Error("spinner should report cancellation")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinnerTo(context.Background(), &syncBuffer{}, true, "Working...")
	s.Start()
	s.Stop()
	s.Stop()
	s.Stop()
}

func TestSpinnerStopWithStatus(t *testing.T) {
	var out bytes.Buffer
	old := stdout
	stdout = &out
	t.Cleanup(func() { stdout = old })

	s := newSpinnerTo(context.Background(), &syncBuffer{}, false, "Working...")
	s.Start()
	s.StopWithSuccess("Done")

	s = newSpinnerTo(context.Background(), &syncBuffer{}, false, "Working...")
	s.Start()
	s.StopWithError("Failed")

	got := out.String()
	if !strings.Contains(got, "Done") || !strings.Contains(got, "Failed") {
		t.Errorf("status output = %q", got)
	}
}
