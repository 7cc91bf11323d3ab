package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/deps"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

// skippedCommand creates the retry queue inspection command.
func (c *CLI) skippedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skipped",
		Short: "Inspect the retry queue",
	}

	cmd.AddCommand(c.skippedListCommand())
	cmd.AddCommand(c.skippedDeleteCommand())

	return cmd
}

func (c *CLI) skippedListCommand() *cobra.Command {
	var (
		reason    string
		timestamp int64
		output    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			var filter deps.SkippedFilter
			if reason != "" {
				r, err := deps.ParseSkipReason(reason)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "reason")
				}
				filter.Reason = &r
			}
			if cmd.Flags().Changed("timestamp") {
				filter.Timestamp = &timestamp
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			rows, err := s.resolver.Skipped(ctx, filter)
			if err != nil {
				return err
			}
			if output == formatTable && len(rows) == 0 {
				printInfo("Retry queue is empty")
				return nil
			}
			return writeOutput(stdout, output, rows, skippedTable(rows))
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "only list files queued for this reason")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "only list files queued at this unix timestamp")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	return cmd
}

func (c *CLI) skippedDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id> <file-id>",
		Short: "Drop a file from the retry queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := parseFileArgs(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.DeleteSkipped(ctx, file); err != nil {
				return apperrors.Wrap(apperrors.ErrCodeStoreUnavailable, err, "delete %s", file)
			}
			printSuccess("Removed %s from the retry queue", file)
			return nil
		},
	}
}

// parseFileArgs parses "<project-id> <file-id>".
func parseFileArgs(args []string) (deps.FileIdentifier, error) {
	pid, err := parseID("project id", args[0])
	if err != nil {
		return deps.FileIdentifier{}, err
	}
	fid, err := parseID("file id", args[1])
	if err != nil {
		return deps.FileIdentifier{}, err
	}
	return deps.FileIdentifier{ProjectID: pid, FileID: fid}, nil
}
