package cli

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/dependents/pkg/archive"
	"github.com/matzehuels/dependents/pkg/discovery"
	apperrors "github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/fetch"
	"github.com/matzehuels/dependents/pkg/integrations/curseforge"
	"github.com/matzehuels/dependents/pkg/integrations/modpackindex"
	"github.com/matzehuels/dependents/pkg/store"
)

// Cache backends accepted by [CacheConfig.Backend].
const (
	cacheFile   = "file"
	cacheMemory = "memory"
	cacheRedis  = "redis"
	cacheNone   = "none"
)

var cacheBackends = []string{cacheFile, cacheMemory, cacheRedis, cacheNone}

// Config is the complete CLI configuration. Values are layered: defaults,
// then the TOML file, then .env and the environment, then flags.
type Config struct {
	Store       string        `toml:"store"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	LogFormat   string        `toml:"log_format"`

	CurseForge CurseForgeConfig `toml:"curseforge"`
	Fetch      FetchConfig      `toml:"fetch"`
	Resolve    ResolveConfig    `toml:"resolve"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Cache      CacheConfig      `toml:"cache"`
	Redis      RedisConfig      `toml:"redis"`
	Archive    archive.Config   `toml:"archive"`
	Serve      ServeConfig      `toml:"serve"`
}

type CurseForgeConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	CDNURL  string `toml:"cdn_url"`
}

type FetchConfig struct {
	MaxDownloadSize int64  `toml:"max_download_size"`
	TempDir         string `toml:"temp_dir"`
	KeepTempFiles   bool   `toml:"keep_temp_files"`
}

type ResolveConfig struct {
	BypassDistributionRestriction bool `toml:"bypass_distribution_restriction"`
	SkipZeroDownloads             bool `toml:"skip_zero_downloads"`
	Workers                       int  `toml:"workers"`
}

type DiscoveryConfig struct {
	Source          string `toml:"source"`
	ModpackIndexURL string `toml:"modpackindex_url"`
	SiteURL         string `toml:"site_url"`
	ProjectType     string `toml:"project_type"`
}

type CacheConfig struct {
	Backend string        `toml:"backend"`
	TTL     time.Duration `toml:"ttl"`
	Dir     string        `toml:"dir"`
	Entries int           `toml:"entries"`
}

// RedisConfig is shared by the redis cache backend and the distributed
// per-file lock.
type RedisConfig struct {
	Addr  string `toml:"addr"`
	Locks bool   `toml:"locks"`
}

type ServeConfig struct {
	Addr string `toml:"addr"`
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Store:       store.DefaultURL,
		HTTPTimeout: 30 * time.Second,
		LogFormat:   "text",
		CurseForge: CurseForgeConfig{
			BaseURL: curseforge.DefaultBaseURL,
			CDNURL:  curseforge.DefaultCDNURL,
		},
		Fetch: FetchConfig{
			MaxDownloadSize: fetch.DefaultMaxDownloadSize,
		},
		Resolve: ResolveConfig{Workers: 1},
		Discovery: DiscoveryConfig{
			Source:          string(discovery.SourceModpackIndex),
			ModpackIndexURL: modpackindex.DefaultBaseURL,
			SiteURL:         discovery.DefaultSiteURL,
			ProjectType:     discovery.DefaultProjectType,
		},
		Cache: CacheConfig{
			Backend: cacheFile,
			TTL:     24 * time.Hour,
		},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// configPath returns the default config file location
// ($XDG_CONFIG_HOME/dependents/config.toml).
func configPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// loadConfig builds the configuration from defaults, the TOML file at path
// and the environment. An empty path selects the default location, which
// may be missing; an explicit path must exist.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := configPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "load config %s", path)
			}
		}
	}

	_ = godotenv.Load()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%s", key))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "%s", key))
				return
			}
			*dst = n
		}
	}

	str("CURSEFORGE_API_KEY", &c.CurseForge.APIKey)
	str("DEPENDENTS_STORE", &c.Store)
	str("DEPENDENTS_REDIS_ADDR", &c.Redis.Addr)
	boolean("DEPENDENTS_REDIS_LOCKS", &c.Redis.Locks)
	str("DEPENDENTS_CACHE", &c.Cache.Backend)
	str("DEPENDENTS_DISCOVERY", &c.Discovery.Source)
	str("DEPENDENTS_TEMP_DIR", &c.Fetch.TempDir)
	integer("DEPENDENTS_WORKERS", &c.Resolve.Workers)
	boolean("DEPENDENTS_BYPASS_DISTRIBUTION", &c.Resolve.BypassDistributionRestriction)
	boolean("DEPENDENTS_SKIP_ZERO_DOWNLOADS", &c.Resolve.SkipZeroDownloads)
	str("DEPENDENTS_LISTEN_ADDR", &c.Serve.Addr)
	str("DEPENDENTS_LOG_FORMAT", &c.LogFormat)
	str("DEPENDENTS_ARCHIVE_ENDPOINT", &c.Archive.Endpoint)
	str("DEPENDENTS_ARCHIVE_BUCKET", &c.Archive.Bucket)
	str("DEPENDENTS_ARCHIVE_ACCESS_KEY", &c.Archive.AccessKey)
	str("DEPENDENTS_ARCHIVE_SECRET_KEY", &c.Archive.SecretKey)

	return errors.Join(errs...)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.New(apperrors.ErrCodeInvalidConfig, format, args...)
	}
	if _, _, err := store.Parse(c.Store); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidConfig, err, "store")
	}
	if _, ok := logFormatters[c.LogFormat]; !ok {
		return invalid("unknown log_format %q", c.LogFormat)
	}
	if c.HTTPTimeout <= 0 {
		return invalid("http_timeout must be positive")
	}
	if c.Fetch.MaxDownloadSize <= 0 {
		return invalid("fetch.max_download_size must be positive")
	}
	if c.Resolve.Workers < 1 {
		return invalid("resolve.workers must be at least 1")
	}
	if !slices.Contains(discovery.Sources, discovery.Source(c.Discovery.Source)) {
		return invalid("unknown discovery source %q (want one of %v)", c.Discovery.Source, discovery.Sources)
	}
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return invalid("unknown cache backend %q (want one of %v)", c.Cache.Backend, cacheBackends)
	}
	if (c.Cache.Backend == cacheRedis || c.Redis.Locks) && c.Redis.Addr == "" {
		return invalid("redis.addr is required for the redis cache and redis locks")
	}
	return nil
}

// requireAPIKey fails when no CurseForge API key is configured.
func (c *Config) requireAPIKey() error {
	if c.CurseForge.APIKey == "" {
		return apperrors.New(apperrors.ErrCodeInvalidConfig,
			"a CurseForge API key is required (set CURSEFORGE_API_KEY or curseforge.api_key)")
	}
	return nil
}
