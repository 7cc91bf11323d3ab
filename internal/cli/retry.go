package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/deps"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

// retryCommand creates the retry command.
func (c *CLI) retryCommand() *cobra.Command {
	var (
		timestamp int64
		output    string
	)

	cmd := &cobra.Command{
		Use:   "retry [reason]",
		Short: "Retry files queued by earlier runs",
		Long: `Re-attempt every queued file, optionally only those queued for one reason
and at one exact unix timestamp. Files that succeed leave the queue; files
that fail again are re-queued with the new reason.

Reasons: ZERO_DOWNLOADS, DOWNLOAD_TOO_LARGE, DOWNLOAD_ERROR,
FILE_PARSING_ERROR, MOD_DISTRIBUTION_NOT_ALLOWED (or "all").`,
		Example: `  dependents retry
  dependents retry download-error
  dependents retry FILE_PARSING_ERROR --timestamp 1700000000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			var reason *deps.SkipReason
			if len(args) == 1 && args[0] != "all" {
				r, err := deps.ParseSkipReason(args[0])
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "reason")
				}
				reason = &r
			}
			var ts *int64
			if cmd.Flags().Changed("timestamp") {
				ts = &timestamp
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			prog := newProgress(c.Logger)
			report, err := s.resolver.ResolveSkippedFiles(ctx, reason, ts)
			if err != nil {
				return err
			}
			prog.done("Retried queued files", "attempted", report.Attempted, "succeeded", report.Succeeded)

			if output != formatTable {
				return writeOutput(stdout, output, report, nil)
			}
			if report.Attempted == 0 {
				printInfo("Nothing to retry")
				return nil
			}
			if report.Succeeded == report.Attempted {
				printSuccess("Resolved all %d queued files", report.Attempted)
				return nil
			}
			printWarning("Resolved %d of %d queued files", report.Succeeded, report.Attempted)
			printNextStep("See what is still queued", appName+" skipped list")
			return nil
		},
	}

	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "only retry files queued at this unix timestamp")
	cmd.Flags().BoolVar(&c.cfg.Fetch.KeepTempFiles, "keep-temp", c.cfg.Fetch.KeepTempFiles, "keep extracted manifests on disk")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	return cmd
}
