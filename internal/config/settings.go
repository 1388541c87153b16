package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the settings read.
const EnvPrefix = "REDX"

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// Origin depth bounds
const (
	DefaultOriginMaxDepth = 3
	MaxOriginDepth        = 5
)

// AuthSettings configuration for authentication
type AuthSettings struct {
	Type    string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic   BasicAuthSettings `mapstructure:"basic"`
	APIKeys []string          `mapstructure:"api_keys"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// IndexSettings configuration for the record indices
type IndexSettings struct {
	Dir         string        `mapstructure:"dir"`
	PageSize    int           `mapstructure:"page_size"`
	MaxResults  int           `mapstructure:"max_results"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// UpstreamSettings configuration for the upstream record API
type UpstreamSettings struct {
	BaseURL   string        `mapstructure:"base_url"`
	AssetsURL string        `mapstructure:"assets_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
}

// SpiderSettings configuration for the pending queue drain
type SpiderSettings struct {
	BatchSize     int           `mapstructure:"batch_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetryFactor   float64       `mapstructure:"retry_factor"`
	RootsFile     string        `mapstructure:"roots_file"`
	IgnoreFile    string        `mapstructure:"ignore_file"`
}

// OriginSettings configuration for origin resolution
type OriginSettings struct {
	DefaultMaxDepth int `mapstructure:"default_max_depth"`
}

// Settings application settings
type Settings struct {
	Transport   string           `mapstructure:"transport"`
	Host        string           `mapstructure:"host"`
	Port        int              `mapstructure:"port"`
	MetricsAddr string           `mapstructure:"metrics_addr"`
	Auth        AuthSettings     `mapstructure:"auth"`
	Index       IndexSettings    `mapstructure:"index"`
	Upstream    UpstreamSettings `mapstructure:"upstream"`
	Spider      SpiderSettings   `mapstructure:"spider"`
	Origin      OriginSettings   `mapstructure:"origin"`
}

// binding ties a settings key to its CLI flag. The environment variable is
// derived from the key: index.page_size reads REDX_INDEX_PAGE_SIZE.
type binding struct {
	key  string
	flag string
}

var bindings = []binding{
	{"transport", "transport"},
	{"host", "host"},
	{"port", "port"},
	{"metrics_addr", "metrics-addr"},
	{"auth.type", "auth-type"},
	{"auth.basic.username", "auth-basic-username"},
	{"auth.basic.password", "auth-basic-password"},
	{"auth.api_keys", "auth-api-keys"},
	{"index.dir", "index-dir"},
	{"index.page_size", "index-page-size"},
	{"index.max_results", "index-max-results"},
	{"index.lock_timeout", "index-lock-timeout"},
	{"upstream.base_url", "upstream-base-url"},
	{"upstream.assets_url", "upstream-assets-url"},
	{"upstream.timeout", "upstream-timeout"},
	{"upstream.cache_size", "upstream-cache-size"},
	{"spider.batch_size", "spider-batch-size"},
	{"spider.concurrency", "spider-concurrency"},
	{"spider.retry_attempts", "spider-retry-attempts"},
	{"spider.retry_delay", "spider-retry-delay"},
	{"spider.retry_factor", "spider-retry-factor"},
	{"spider.roots_file", "spider-roots-file"},
	{"spider.ignore_file", "spider-ignore-file"},
	{"origin.default_max_depth", "origin-default-max-depth"},
}

// EnvName returns the environment variable read for a settings key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("transport", "stdio")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("auth.type", AuthTypeNone)

	v.SetDefault("index.dir", defaultIndexDir())
	v.SetDefault("index.page_size", 1000)
	v.SetDefault("index.max_results", 20)
	v.SetDefault("index.lock_timeout", 10*time.Minute)

	v.SetDefault("upstream.base_url", "https://api.resonite.com")
	v.SetDefault("upstream.assets_url", "https://assets.resonite.com")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.cache_size", 10000)

	v.SetDefault("spider.batch_size", 16)
	v.SetDefault("spider.concurrency", 4)
	v.SetDefault("spider.retry_attempts", 5)
	v.SetDefault("spider.retry_delay", 500*time.Millisecond)
	v.SetDefault("spider.retry_factor", 2.0)
	v.SetDefault("spider.roots_file", "")
	v.SetDefault("spider.ignore_file", "")

	v.SetDefault("origin.default_max_depth", DefaultOriginMaxDepth)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific env vars for nested config
	for _, b := range bindings {
		_ = v.BindEnv(b.key, EnvName(b.key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for _, b := range bindings {
			if f := flags.Lookup(b.flag); f != nil {
				_ = v.BindPFlag(b.key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of API keys if provided via env var as comma-separated string
	apiKeysEnv := os.Getenv(EnvName("auth.api_keys"))
	if apiKeysEnv != "" {
		if len(settings.Auth.APIKeys) == 0 || (len(settings.Auth.APIKeys) == 1 && strings.Contains(settings.Auth.APIKeys[0], ",")) {
			settings.Auth.APIKeys = strings.Split(apiKeysEnv, ",")
		}
	}

	// Trim spaces from API keys
	for i := range settings.Auth.APIKeys {
		settings.Auth.APIKeys[i] = strings.TrimSpace(settings.Auth.APIKeys[i])
	}
	settings.Auth.APIKeys = filterEmptyStrings(settings.Auth.APIKeys)

	// Expand home directory in file settings
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.Spider.RootsFile = expandHomeDir(settings.Spider.RootsFile)
	settings.Spider.IgnoreFile = expandHomeDir(settings.Spider.IgnoreFile)

	return &settings, nil
}

// defaultIndexDir returns the default directory for the indices
func defaultIndexDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".redx"
	}
	return filepath.Join(home, ".redx")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting configurations.
// Returns an error if the settings contain mutually exclusive or incomplete auth config.
func ValidateSettings(s *Settings) error {
	// Validate transport type
	switch s.Transport {
	case "stdio", "sse":
		// valid
	default:
		return errors.New("transport must be 'stdio' or 'sse', got: " + s.Transport)
	}

	hasBasicCreds := s.Auth.Basic.Username != "" || s.Auth.Basic.Password != ""
	hasAPIKeys := len(s.Auth.APIKeys) > 0

	switch s.Auth.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKeys {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKeys {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-keys")
		}
		if s.Auth.Basic.Username == "" || s.Auth.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKeys {
			return errors.New("auth-type 'apikey' requires at least one API key")
		}
	default:
		return errors.New("unknown auth-type: " + s.Auth.Type)
	}

	if err := validateIndexSettings(&s.Index); err != nil {
		return err
	}
	if err := validateUpstreamSettings(&s.Upstream); err != nil {
		return err
	}
	if err := validateSpiderSettings(&s.Spider); err != nil {
		return err
	}

	if d := s.Origin.DefaultMaxDepth; d < 0 || d > MaxOriginDepth {
		return fmt.Errorf("origin-default-max-depth must be between 0 and %d, got: %d", MaxOriginDepth, d)
	}

	return nil
}

func validateIndexSettings(s *IndexSettings) error {
	if s.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}
	if s.PageSize <= 0 {
		return errors.New("index-page-size must be positive")
	}
	if s.MaxResults <= 0 {
		return errors.New("index-max-results must be positive")
	}
	if s.LockTimeout <= 0 {
		return errors.New("index-lock-timeout must be positive")
	}
	return nil
}

func validateUpstreamSettings(s *UpstreamSettings) error {
	if s.BaseURL == "" {
		return errors.New("upstream-base-url cannot be empty")
	}
	if s.AssetsURL == "" {
		return errors.New("upstream-assets-url cannot be empty")
	}
	if s.Timeout <= 0 {
		return errors.New("upstream-timeout must be positive")
	}
	if s.CacheSize <= 0 {
		return errors.New("upstream-cache-size must be positive")
	}
	return nil
}

func validateSpiderSettings(s *SpiderSettings) error {
	if s.BatchSize <= 0 {
		return errors.New("spider-batch-size must be positive")
	}
	if s.Concurrency <= 0 {
		return errors.New("spider-concurrency must be positive")
	}
	if s.RetryAttempts <= 0 {
		return errors.New("spider-retry-attempts must be positive")
	}
	if s.RetryDelay < 0 {
		return errors.New("spider-retry-delay cannot be negative")
	}
	if s.RetryFactor < 1 {
		return errors.New("spider-retry-factor must be at least 1")
	}
	return nil
}
