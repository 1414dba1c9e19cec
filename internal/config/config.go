// Package config loads storagekit configuration from defaults, an optional
// YAML file, STORAGEKIT_* environment variables and runtime overrides, in
// increasing order of precedence.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/storagekit/pkg/auth"
	"github.com/3leaps/storagekit/pkg/provider"
)

// AppName names the config directory, data directory and env prefix.
const AppName = "storagekit"

// EnvPrefix prefixes every environment variable, e.g. STORAGEKIT_S3_REGION.
const EnvPrefix = "STORAGEKIT"

// Config is the resolved configuration.
type Config struct {
	// Provider is the default provider tag (s3, azure, gcs, file).
	Provider string `mapstructure:"provider"`

	// Repository is selected after connecting when set.
	Repository string `mapstructure:"repository"`

	// URLTTL is the default validity of signed URLs.
	URLTTL time.Duration `mapstructure:"url_ttl"`

	Logging LoggingConfig `mapstructure:"logging"`
	Sync    SyncConfig    `mapstructure:"sync"`
	CSV     CSVConfig     `mapstructure:"csv"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	S3    auth.S3Credentials    `mapstructure:"s3"`
	Azure auth.AzureCredentials `mapstructure:"azure"`
	GCS   auth.GCSCredentials   `mapstructure:"gcs"`
	File  auth.FileCredentials  `mapstructure:"file"`
}

// LoggingConfig configures the CLI logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SyncConfig configures the transfer engine.
type SyncConfig struct {
	PathMode  string  `mapstructure:"path_mode"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// CSVConfig configures the content codec.
type CSVConfig struct {
	Delimiter  string `mapstructure:"delimiter"`
	InferTypes bool   `mapstructure:"infer_types"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives the operation metrics in Prometheus
	// text format after each command.
	Textfile string `mapstructure:"textfile"`
}

// ErrNotLoaded is returned by callers that need a configuration before
// Load has succeeded.
var ErrNotLoaded = errors.New("configuration not loaded")

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// SetDefaults registers every key with its default so environment
// variables bind through AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "")
	v.SetDefault("repository", "")
	v.SetDefault("url_ttl", "120s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("sync.path_mode", "flatten")
	v.SetDefault("sync.rate_limit", 0.0)

	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("csv.infer_types", false)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.force_path_style", false)

	v.SetDefault("azure.connection_string", "")

	v.SetDefault("gcs.project_id", "")
	v.SetDefault("gcs.client_id", "")
	v.SetDefault("gcs.client_email", "")
	v.SetDefault("gcs.private_key", "")
	v.SetDefault("gcs.private_key_id", "")
	v.SetDefault("gcs.endpoint", "")

	v.SetDefault("file.base_dir", DefaultFileBaseDir())
}

// DefaultFileBaseDir is where the file provider keeps repositories unless
// configured otherwise.
func DefaultFileBaseDir() string {
	return filepath.Join(gfconfig.GetAppDataDir(AppName), "repositories")
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/storagekit/config.yaml, or ""
// when the user config directory is unknown.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, AppName, "config.yaml")
}

// Load resolves the configuration and records it for GetConfig.
//
// path names a YAML config file; it must exist when given. With an empty
// path the default location is read if present. Overrides are nested maps
// (or dotted keys) that win over every other source.
func Load(ctx context.Context, path string, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readFile(v, path); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetConfig returns the configuration from the last successful Load, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func readFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
		if path == "" {
			return nil
		}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config file: %w", err)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.URLTTL < 0 {
		return nil, fmt.Errorf("url_ttl must not be negative, got %s", cfg.URLTTL)
	}
	if cfg.Sync.RateLimit < 0 {
		return nil, fmt.Errorf("sync.rate_limit must not be negative, got %v", cfg.Sync.RateLimit)
	}
	if _, err := cfg.Delimiter(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flatten turns nested override maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// Credentials returns the credential section for the configured provider.
func (c *Config) Credentials() (auth.Credentials, error) {
	return c.CredentialsFor(c.Provider)
}

// CredentialsFor returns the credential section for the provider tag.
func (c *Config) CredentialsFor(tag string) (auth.Credentials, error) {
	if tag == "" {
		return nil, fmt.Errorf("%w: no provider configured (set --provider or %s_PROVIDER)", provider.ErrUnsupportedProvider, EnvPrefix)
	}
	p, err := provider.ParseProviderType(tag)
	if err != nil {
		return nil, err
	}
	switch p {
	case provider.ProviderS3:
		return c.S3, nil
	case provider.ProviderAzure:
		return c.Azure, nil
	case provider.ProviderGCS:
		return c.GCS, nil
	case provider.ProviderFile:
		return c.File, nil
	}
	return nil, fmt.Errorf("%w: %q", provider.ErrUnsupportedProvider, tag)
}

// Delimiter returns the CSV delimiter. "tab" and "\t" select a tab.
func (c *Config) Delimiter() (rune, error) {
	switch c.CSV.Delimiter {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(c.CSV.Delimiter)
	if size != len(c.CSV.Delimiter) || r == '\n' || r == '\r' || r == '"' || r == utf8.RuneError {
		return 0, fmt.Errorf("csv.delimiter must be a single character, got %q", c.CSV.Delimiter)
	}
	return r, nil
}
