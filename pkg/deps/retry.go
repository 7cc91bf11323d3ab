package deps

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/dependents/pkg/observability"
)

// RetryReport counts the files a retry run attempted and resolved.
type RetryReport struct {
	Attempted int `json:"attempted" yaml:"attempted"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
}

// ResolveSkippedFiles retries every queued file matching reason and
// timestamp; nil matches everything. A file that resolves is removed from
// the queue, one that fails again is re-queued with its new reason.
//
// Only store failures and cancellation abort the batch.
func (r *Resolver) ResolveSkippedFiles(ctx context.Context, reason *SkipReason, timestamp *int64) (report RetryReport, err error) {
	logger := r.logger.With("run", uuid.NewString())
	start := r.now()
	defer func() {
		observability.Resolve().OnRunComplete(ctx, RunRetry, report.Attempted, report.Succeeded, r.now().Sub(start), err)
	}()

	skipped, err := r.store.ListSkipped(ctx, SkippedFilter{Reason: reason, Timestamp: timestamp})
	if err != nil {
		return report, storeError(err, "list skipped files")
	}
	logger.Info("retrying skipped files", "files", len(skipped))

	for _, s := range skipped {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Attempted++
		ok, err := r.retryFile(ctx, logger, s)
		if err != nil {
			return report, err
		}
		if ok {
			report.Succeeded++
		}
	}

	logger.Info("retry complete", "attempted", report.Attempted, "succeeded", report.Succeeded)
	return report, nil
}

func (r *Resolver) retryFile(ctx context.Context, logger *log.Logger, s SkippedFile) (bool, error) {
	id := s.ID()
	held, unlock, err := r.locker.Lock(ctx, id.Key())
	if err != nil {
		return false, err
	}
	defer unlock()

	state, err := r.retryLocked(held, logger, s)
	if err != nil && lockLost(ctx, held) {
		logger.Warn("lock lost, leaving file queued", "project", id.ProjectID, "file", id.FileID, "err", err)
		state, err = StateLockLost, nil
	}
	if err != nil {
		return false, err
	}
	observability.Resolve().OnFileState(ctx, id.ProjectID, id.FileID, string(state))
	return state.Succeeded(), nil
}

// retryLocked re-resolves s and dequeues it on success.
func (r *Resolver) retryLocked(ctx context.Context, logger *log.Logger, s SkippedFile) (FileState, error) {
	id := s.ID()
	state := StateAlreadyResolved
	done, err := r.isResolved(ctx, id)
	if err != nil {
		return "", err
	}
	if !done {
		state, err = r.fetchAndPersist(ctx, logger.With("project", id.ProjectID), id, s.FileName(), s.URL)
		if err != nil {
			return "", err
		}
	}
	if !state.Succeeded() {
		return state, nil
	}
	if err := r.store.DeleteSkipped(ctx, id); err != nil {
		return "", storeError(err, "dequeue %s", id)
	}
	return state, nil
}
