package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/deps"
)

// queryCommand creates the store query command.
func (c *CLI) queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query resolved dependency edges",
	}

	cmd.AddCommand(c.queryDependsCommand())
	cmd.AddCommand(c.queryDependencyCommand())
	cmd.AddCommand(c.queryDependentsCommand())

	return cmd
}

func (c *CLI) queryDependsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "depends <project-id> <file-id> <dependency-project-id>",
		Short: "Report whether a file depends on a project",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := parseFileArgs(args[:2])
			if err != nil {
				return err
			}
			dep, err := parseID("dependency project id", args[2])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			ok, err := s.resolver.IsFileDependingOnProject(ctx, file, dep)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, ok)
			return nil
		},
	}
}

func (c *CLI) queryDependencyCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dependency <project-id> <file-id> <dependency-project-id>",
		Short: "Show which file of a project a file depends on",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			file, err := parseFileArgs(args[:2])
			if err != nil {
				return err
			}
			dep, err := parseID("dependency project id", args[2])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			found, err := s.resolver.GetFileDependency(ctx, file, dep)
			if err != nil {
				return err
			}
			if found == nil {
				if output != formatTable {
					return writeOutput(stdout, output, nil, nil)
				}
				printInfo("%s does not depend on project %d", file, dep)
				return nil
			}
			return writeOutput(stdout, output, found, fileTable([]deps.FileIdentifier{*found}))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	return cmd
}

func (c *CLI) queryDependentsCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "dependents <project-id>",
		Short: "List every stored edge into a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(output); err != nil {
				return err
			}
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			edges, err := s.resolver.Dependents(ctx, projectID)
			if err != nil {
				return err
			}
			if output == formatTable && len(edges) == 0 {
				printInfo("No stored dependents of project %d", projectID)
				printNextStep("Resolve them first", fmt.Sprintf("%s resolve %d", appName, projectID))
				return nil
			}
			return writeOutput(stdout, output, edges, edgeTable(edges))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format (table, json, yaml)")
	return cmd
}
