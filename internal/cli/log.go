package cli

import (
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

// Log formats accepted by --log-format.
var logFormatters = map[string]log.Formatter{
	"text":   log.TextFormatter,
	"json":   log.JSONFormatter,
	"logfmt": log.LogfmtFormatter,
}

// newLogger creates the CLI logger. Timestamps read "15:04:05.00".
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// setLogFormat switches l to one of the named formatters.
func setLogFormat(l *log.Logger, format string) error {
	f, ok := logFormatters[format]
	if !ok {
		names := make([]string, 0, len(logFormatters))
		for name := range logFormatters {
			names = append(names, name)
		}
		slices.Sort(names)
		return apperrors.New(apperrors.ErrCodeInvalidConfig, "unknown log format %q (want one of %v)", format, names)
	}
	l.SetFormatter(f)
	return nil
}

// progress logs the completion of a long operation with its duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg at info level with keyvals and an "elapsed" field.
func (p *progress) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Info(msg, keyvals...)
}
