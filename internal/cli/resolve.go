package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/deps"
)

// resolveOptions holds the per-run flags shared by resolve and search.
type resolveOptions struct {
	refresh     bool
	output      string
	metricsAddr string
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOptions

	cmd := &cobra.Command{
		Use:   "resolve <project-id>",
		Short: "Find the modpacks depending on a project",
		Long: `Discover candidate modpacks for a project, read the manifest of every modpack
file and store one edge per declared dependency. Files that cannot be
resolved are queued for "dependents retry".`,
		Example: `  dependents resolve 238222
  dependents resolve 238222 --workers 8 --bypass-distribution
  dependents resolve 238222 --discovery scrape -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			return c.runResolve(cmd.Context(), projectID, opts)
		},
	}

	c.addResolveFlags(cmd, &opts)
	return cmd
}

func (c *CLI) addResolveFlags(cmd *cobra.Command, opts *resolveOptions) {
	flags := cmd.Flags()
	flags.BoolVar(&c.cfg.Resolve.BypassDistributionRestriction, "bypass-distribution", c.cfg.Resolve.BypassDistributionRestriction, "download files of projects that disallow third-party distribution from the CDN")
	flags.BoolVar(&c.cfg.Resolve.SkipZeroDownloads, "skip-zero-downloads", c.cfg.Resolve.SkipZeroDownloads, "queue files nobody downloaded instead of fetching them")
	flags.IntVarP(&c.cfg.Resolve.Workers, "workers", "w", c.cfg.Resolve.Workers, "files resolved concurrently per project")
	flags.BoolVar(&c.cfg.Fetch.KeepTempFiles, "keep-temp", c.cfg.Fetch.KeepTempFiles, "keep extracted manifests on disk")
	flags.StringVar(&c.cfg.Discovery.Source, "discovery", c.cfg.Discovery.Source, "dependents source (modpackindex, scrape)")
	flags.BoolVar(&opts.refresh, "refresh", false, "bypass cached API responses")
	flags.StringVarP(&opts.output, "output", "o", formatTable, "output format (table, json, yaml)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

// runResolve resolves the dependents of one project and prints them.
func (c *CLI) runResolve(ctx context.Context, projectID int64, opts resolveOptions) error {
	if err := validateFormat(opts.output); err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		if err := c.serveMetrics(ctx, opts.metricsAddr); err != nil {
			return err
		}
	}

	s, err := c.openSession(ctx, sessionOptions{catalog: true, discovery: true, refresh: opts.refresh})
	if err != nil {
		return err
	}
	defer s.Close()

	project, err := s.catalog.Project(ctx, projectID)
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Resolving dependents of %s...", project.Name))
	spinner.Start()
	res, err := s.resolver.ResolveProjectDependents(ctx, project.ID, project.Name, project.Slug)
	if err != nil {
		if interrupted(ctx, err) {
			spinner.Stop()
			return err
		}
		spinner.StopWithError("Resolution failed")
		return err
	}
	spinner.Stop()
	prog.done("Resolved dependents", "project", project.ID, "dependents", len(res.Dependents), "files", len(res.Files))

	if opts.output != formatTable {
		return writeOutput(stdout, opts.output, res, nil)
	}
	printSuccess("%s has %s dependents", StyleHighlight.Render(project.Name), StyleNumber.Render(fmt.Sprint(len(res.Dependents))))
	if len(res.Dependents) == 0 {
		return nil
	}
	if err := writeOutput(stdout, formatTable, res, projectTable(res.Dependents)); err != nil {
		return err
	}
	printNextStep("Inspect the edges", fmt.Sprintf("%s query dependents %d", appName, project.ID))
	printNextStep("Retry skipped files", appName+" retry")
	return nil
}

// projectTable lists projects.
func projectTable(projects []deps.Project) func() *table.Table {
	return func() *table.Table {
		t := newTable("ID", "NAME", "SLUG", "DOWNLOADS")
		for _, p := range projects {
			t.Row(itoa(p.ID), p.Name, p.Slug, itoa(p.DownloadCount))
		}
		return t
	}
}
