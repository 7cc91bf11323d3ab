package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/api"
)

// serveCommand creates the HTTP query server command.
func (c *CLI) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API and metrics over HTTP",
		Long: `Serve read-only queries over the stored edges and the retry queue:

  GET /v1/files/{projectID}/{fileID}/dependencies/{dependencyProjectID}
  GET /v1/projects/{projectID}/dependents
  GET /v1/skipped?reason=&timestamp=
  GET /healthz
  GET /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := c.openSession(ctx, sessionOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			metrics := c.enableMetrics()
			handler := api.NewHandler(s.resolver, api.WithLogger(c.Logger), api.WithMetrics(metrics.Handler()))
			srv := api.NewServer(c.cfg.Serve.Addr, handler)

			printInfo("Listening on %s", StyleLink.Render(c.cfg.Serve.Addr))
			if err := srv.ListenAndServe(ctx); err != nil {
				return err
			}
			printSuccess("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&c.cfg.Serve.Addr, "addr", c.cfg.Serve.Addr, "listen address")
	return cmd
}
