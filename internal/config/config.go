// Package config loads offcached configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (OFFCACHE_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the offcached configuration.
type Config struct {
	// Generation names the deployed asset manifest, e.g. "evenup-v1.0.0".
	Generation string `mapstructure:"generation" validate:"required" yaml:"generation"`

	// Origin is the upstream application (scheme://host).
	Origin string `mapstructure:"origin" validate:"required,url" yaml:"origin"`

	// Manifest lists the resources that must be available offline.
	Manifest []string `mapstructure:"manifest" validate:"dive,required" yaml:"manifest"`

	// Fallback is served to navigations that fail at the network.
	Fallback string `mapstructure:"fallback" yaml:"fallback"`

	// Listen is the edge listen address.
	Listen string `mapstructure:"listen" validate:"required,hostname_port" yaml:"listen"`

	// Namespace prefixes every storage key.
	Namespace string `mapstructure:"namespace" validate:"required" yaml:"namespace"`

	// InstallConcurrency bounds parallel manifest fetches.
	InstallConcurrency int `mapstructure:"install_concurrency" validate:"gte=1,lte=64" yaml:"install_concurrency"`

	// FetchTimeout bounds one upstream request; 0 disables the timeout.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gte=0" yaml:"fetch_timeout"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Store        StoreConfig        `mapstructure:"store" yaml:"store"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Backend selects the logging library.
	// Valid values: slog, zap, logrus
	Backend string `mapstructure:"backend" validate:"required,oneof=slog zap logrus" yaml:"backend"`

	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format.
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
}

// StoreConfig selects where cached responses and the generation index live.
type StoreConfig struct {
	// Provider holds response bytes.
	// Valid values: memory, ristretto, bigcache, badger, redis
	Provider string `mapstructure:"provider" validate:"required,oneof=memory ristretto bigcache badger redis" yaml:"provider"`

	// Codec encodes stored records.
	// Valid values: msgpack, cbor, json, protobuf
	Codec string `mapstructure:"codec" validate:"required,oneof=msgpack cbor json protobuf" yaml:"codec"`

	// MaxEntryBytes rejects stored records larger than this on decode; 0 = unlimited.
	MaxEntryBytes int `mapstructure:"max_entry_bytes" validate:"gte=0" yaml:"max_entry_bytes"`

	// GenStore holds generation names and members.
	// Valid values: local, redis
	GenStore string `mapstructure:"genstore" validate:"required,oneof=local redis" yaml:"genstore"`

	Ristretto RistrettoConfig `mapstructure:"ristretto" yaml:"ristretto"`
	BigCache  BigCacheConfig  `mapstructure:"bigcache" yaml:"bigcache"`
	Badger    BadgerConfig    `mapstructure:"badger" yaml:"badger"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
}

type RistrettoConfig struct {
	// MaxCost is the byte budget.
	MaxCost int64 `mapstructure:"max_cost" validate:"gte=0" yaml:"max_cost"`
}

type BigCacheConfig struct {
	Shards           int `mapstructure:"shards" validate:"gte=0" yaml:"shards"`
	HardMaxCacheSize int `mapstructure:"hard_max_cache_size_mb" validate:"gte=0" yaml:"hard_max_cache_size_mb"`
}

type BadgerConfig struct {
	// Dir is the database directory. Required unless InMemory.
	Dir        string `mapstructure:"dir" yaml:"dir"`
	InMemory   bool   `mapstructure:"in_memory" yaml:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes" yaml:"sync_writes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0" yaml:"db"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" validate:"omitempty,startswith=/" yaml:"path"`
}

// ConnectivityConfig controls the origin reachability probe that triggers
// deferred sync.
type ConnectivityConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gte=0" yaml:"interval"`
	// ProbePath is requested on the origin; any response counts as online.
	ProbePath string `mapstructure:"probe_path" yaml:"probe_path"`
}

// Load reads configPath (optional), applies OFFCACHE_* overrides and defaults,
// then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	setupViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// OFFCACHE_STORE_PROVIDER=redis
	v.SetEnvPrefix("OFFCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(ConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// Validate checks struct tags plus the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return err
	}
	switch {
	case cfg.Store.Provider == "badger" && cfg.Store.Badger.Dir == "" && !cfg.Store.Badger.InMemory:
		return errors.New("store.badger.dir is required unless store.badger.in_memory is set")
	case (cfg.Store.Provider == "redis" || cfg.Store.GenStore == "redis") && cfg.Store.Redis.Addr == "":
		return errors.New("store.redis.addr is required for the redis provider or genstore")
	case cfg.Store.GenStore == "local" && cfg.Store.Provider != "memory" &&
		cfg.Store.Provider != "ristretto" && cfg.Store.Provider != "bigcache":
		// entries would survive a restart that forgot their generation
		return fmt.Errorf("store.genstore=local cannot index the persistent %q provider; use genstore=redis", cfg.Store.Provider)
	}
	return nil
}

// Save writes cfg as YAML, creating the parent directory.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig writes the sample configuration to path (default location when
// empty). An existing file is kept unless force is set.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}
	return path, Save(Sample(), path)
}

// ConfigDir is $XDG_CONFIG_HOME/offcache, falling back to ~/.config/offcache.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "offcache")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "offcache")
}

func DefaultConfigPath() string { return filepath.Join(ConfigDir(), "config.yaml") }
