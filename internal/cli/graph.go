package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/render/nodelink"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output string
		names  bool
	)

	cmd := &cobra.Command{
		Use:   "graph <project-id>",
		Short: "Draw the stored dependents of a project",
		Long: `Draw every stored edge into a project as a node-link diagram. The output
format follows the file extension: .dot writes Graphviz source, .svg renders
it. Without --output the DOT source is printed.`,
		Example: `  dependents graph 238222 -o dependents.svg
  dependents graph 238222 --names | dot -Tpng > dependents.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			ext := strings.ToLower(filepath.Ext(output))
			if output != "" && ext != ".dot" && ext != ".svg" {
				return apperrors.New(apperrors.ErrCodeInvalidInput, "unsupported graph format %q (want .dot or .svg)", ext)
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{catalog: names})
			if err != nil {
				return err
			}
			defer s.Close()

			edges, err := s.resolver.Dependents(ctx, projectID)
			if err != nil {
				return err
			}

			var opts nodelink.Options
			if names {
				ids := []int64{projectID}
				for _, e := range edges {
					ids = append(ids, e.ProjectID)
				}
				projects, err := s.catalog.Projects(ctx, ids)
				if err != nil {
					return err
				}
				opts.Names = make(map[int64]string, len(projects))
				for _, p := range projects {
					opts.Names[p.ID] = p.Name
				}
			}

			dot := nodelink.ToDOT(edges, opts)
			switch ext {
			case "":
				fmt.Fprint(stdout, dot)
				return nil
			case ".dot":
				if err := os.WriteFile(output, []byte(dot), 0o644); err != nil {
					return err
				}
			case ".svg":
				svg, err := nodelink.RenderSVG(ctx, dot)
				if err != nil {
					return apperrors.Wrap(apperrors.ErrCodeInternal, err, "render svg")
				}
				if err := os.WriteFile(output, svg, 0o644); err != nil {
					return err
				}
			}
			printSuccess("Drew %d edges", len(edges))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.dot or .svg)")
	cmd.Flags().BoolVar(&names, "names", false, "label nodes with project names (requires an API key)")
	return cmd
}
