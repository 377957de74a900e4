package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/raysh454/cleanweb/internal/cli"
	"github.com/raysh454/cleanweb/internal/core"
	"github.com/raysh454/cleanweb/internal/settingsstore"
	"github.com/raysh454/cleanweb/internal/webclient"
)

// EnvPrefix prefixes every environment variable LoadConfig reads.
const EnvPrefix = "CLEANWEB_"

// Config holds the runtime options shared by the session manager and the
// API server.
type Config struct {
	// ListenAddr is the HTTP listen address of the API server.
	ListenAddr string

	// StorageRoot is where the settings database lives. A leading ~ is
	// expanded to the user's home directory.
	StorageRoot string

	// WebClient configures page and image fetching. Client selects the
	// backend used for session documents unless a request asks to render.
	WebClient webclient.Config

	// Classifier is the registry name used when a request names none.
	Classifier string
	// ModelURL enables the "model" classifier backed by an inference
	// service at this address.
	ModelURL string

	// Redis caches classification results when RedisAddr is set; otherwise
	// results are cached in memory. A CacheTTL of 0 disables caching.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MaxConcurrency int
	// StatsInterval paces the websocket stats stream.
	StatsInterval  time.Duration
	DefaultProfile string
	LogLevel       string
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:  ":8080",
		StorageRoot: "~/.config/cleanweb",
		WebClient: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: webclient.DefaultTimeout,
		},
		Classifier:     "heuristic",
		CacheTTL:       time.Hour,
		MaxConcurrency: core.DefaultMaxConcurrency,
		StatsInterval:  time.Second,
		DefaultProfile: settingsstore.DefaultProfile,
		LogLevel:       "info",
	}
}

// LoadConfig starts from DefaultConfig, loads the given .env files (".env"
// when none are named; missing files are skipped) and then applies CLEANWEB_*
// environment variables. Variables already set in the environment win over
// .env values.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(name string, dst *string) {
		if v, ok := get(name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := get(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := get(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := get(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN_ADDR", &c.ListenAddr)
	str("STORAGE_ROOT", &c.StorageRoot)
	if v, ok := get("WEBCLIENT"); ok {
		c.WebClient.Client = webclient.Client(strings.ToLower(v))
	}
	dur("FETCH_TIMEOUT", &c.WebClient.Timeout)
	str("USER_AGENT", &c.WebClient.UserAgent)
	flag("SHOW_BROWSER", &c.WebClient.ShowBrowser)
	str("CLASSIFIER", &c.Classifier)
	str("MODEL_URL", &c.ModelURL)
	str("REDIS_ADDR", &c.RedisAddr)
	str("REDIS_PASSWORD", &c.RedisPassword)
	num("REDIS_DB", &c.RedisDB)
	dur("CACHE_TTL", &c.CacheTTL)
	num("MAX_CONCURRENCY", &c.MaxConcurrency)
	dur("STATS_INTERVAL", &c.StatsInterval)
	str("DEFAULT_PROFILE", &c.DefaultProfile)
	str("LOG_LEVEL", &c.LogLevel)
	return errors.Join(errs...)
}

// ApplyArgs overrides fields with the flags that were given on the command
// line.
func (c *Config) ApplyArgs(args *cli.CLIArgs) {
	if args == nil {
		return
	}
	if args.Addr != "" {
		c.ListenAddr = args.Addr
	}
	if args.StorageRoot != "" {
		c.StorageRoot = args.StorageRoot
	}
	if args.Backend != "" {
		c.WebClient.Client = webclient.Client(strings.ToLower(args.Backend))
	}
	if args.Classifier != "" {
		c.Classifier = args.Classifier
	}
	if args.ModelURL != "" {
		c.ModelURL = args.ModelURL
	}
	if args.RedisAddr != "" {
		c.RedisAddr = args.RedisAddr
	}
	if args.Concurrency > 0 {
		c.MaxConcurrency = args.Concurrency
	}
	if args.Profile != "" {
		c.DefaultProfile = args.Profile
	}
	if args.LogLevel != "" {
		c.LogLevel = args.LogLevel
	}
}

// SettingsPath is the SQLite file holding settings profiles.
func (c *Config) SettingsPath() (string, error) {
	root, err := expandPath(c.StorageRoot)
	if err != nil {
		return "", fmt.Errorf("expanding storage root path: %w", err)
	}
	return filepath.Join(root, "settings.db"), nil
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
