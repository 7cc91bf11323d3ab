// Package cli implements the dependents command-line interface.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/dependents/pkg/buildinfo"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
)

const (
	// appName is the application name used for directories and display.
	appName = "dependents"

	// redisKeyPrefix namespaces every key this tool writes to redis.
	redisKeyPrefix = "dependents:"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	cfg        *Config
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    defaultConfig(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// Config returns the active configuration.
func (c *CLI) Config() *Config { return c.cfg }

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Dependents finds the modpacks that depend on a mod",
		Long: `Dependents resolves which modpacks depend on a CurseForge mod by reading the
manifest of every modpack file, and keeps the resulting edges in a store that
can be queried from the command line or over HTTP.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/dependents/config.toml)")
	flags.StringVar(&c.cfg.Store, "store", c.cfg.Store, "store URL (sqlite://, postgres://, mongodb://, memory://)")
	flags.StringVar(&c.cfg.Cache.Backend, "cache", c.cfg.Cache.Backend, "HTTP cache backend (file, memory, redis, none)")
	flags.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "log format (text, json, logfmt)")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.searchCommand())
	root.AddCommand(c.retryCommand())
	root.AddCommand(c.skippedCommand())
	root.AddCommand(c.queryCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig replaces the defaults with the file and environment layers,
// then re-applies every flag the user set so flags win.
func (c *CLI) loadConfig(cmd *cobra.Command, _ []string) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	loaded, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	*c.cfg = *loaded

	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "flag --%s", name)
		}
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	return setLogFormat(c.Logger, c.cfg.LogFormat)
}

// cacheDir returns the cache directory using XDG standard (~/.cache/dependents/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// parseID parses a positive project or file id argument.
func parseID(name, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.New(apperrors.ErrCodeInvalidInput, "%s must be a positive integer, got %q", name, s)
	}
	return id, nil
}

// interrupted reports whether err stems from the user cancelling the run.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
