package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/deps"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

// searchPageSize is how many matches the picker offers.
const searchPageSize = 30

// searchCommand creates the interactive search command.
func (c *CLI) searchCommand() *cobra.Command {
	var (
		opts      resolveOptions
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search for a project and resolve its dependents",
		Long: `Search CurseForge for Minecraft projects by name, pick one interactively and
resolve its dependents. With --print the matches are listed instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(opts.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			s, err := c.openSession(ctx, sessionOptions{catalog: true, refresh: opts.refresh})
			if err != nil {
				return err
			}

			spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Searching for %q...", query))
			spinner.Start()
			mods, err := s.client.Search(ctx, query, searchPageSize)
			spinner.Stop()
			_ = s.Close()
			if err != nil {
				return apperrors.Wrap(apperrors.ErrCodeAdapterUnavailable, err, "search %q", query)
			}
			if len(mods) == 0 {
				printWarning("No projects match %q", query)
				return nil
			}

			if printOnly {
				projects := make([]deps.Project, len(mods))
				for i, m := range mods {
					projects[i] = m.Project()
				}
				return writeOutput(stdout, opts.output, projects, projectTable(projects))
			}

			final, err := tea.NewProgram(NewProjectListModel(mods), tea.WithContext(ctx)).Run()
			if err != nil {
				return err
			}
			selected := final.(ProjectListModel).Selected
			if selected == nil {
				return nil
			}
			printInfo("Selected %s (%d)", StyleHighlight.Render(selected.Name), selected.ID)
			return c.runResolve(ctx, selected.ID, opts)
		},
	}

	c.addResolveFlags(cmd, &opts)
	cmd.Flags().BoolVar(&printOnly, "print", false, "list matches instead of picking one")
	return cmd
}
