package config

import (
	"time"

	"github.com/spf13/viper"
)

// Defaults are registered with viper so that every key can be overridden
// from the environment, even when no file sets it.
var defaults = map[string]any{
	"generation":                            "",
	"origin":                                "",
	"manifest":                              []string{},
	"fallback":                              "",
	"listen":                                "127.0.0.1:8080",
	"namespace":                             "offcache",
	"install_concurrency":                   6,
	"fetch_timeout":                         "0s",
	"shutdown_timeout":                      "10s",
	"logging.backend":                       "slog",
	"logging.level":                         "INFO",
	"logging.format":                        "text",
	"store.provider":                        "memory",
	"store.codec":                           "msgpack",
	"store.max_entry_bytes":                 0,
	"store.genstore":                        "local",
	"store.ristretto.max_cost":              int64(64 << 20),
	"store.bigcache.shards":                 0,
	"store.bigcache.hard_max_cache_size_mb": 0,
	"store.badger.dir":                      "",
	"store.badger.in_memory":                false,
	"store.badger.sync_writes":              false,
	"store.redis.addr":                      "",
	"store.redis.password":                  "",
	"store.redis.db":                        0,
	"metrics.enabled":                       true,
	"metrics.path":                          "/metrics",
	"connectivity.enabled":                  true,
	"connectivity.interval":                 "15s",
	"connectivity.probe_path":               "/",
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Sample is the configuration written by `offcached init`.
func Sample() *Config {
	return &Config{
		Generation: "evenup-v1.0.0",
		Origin:     "http://127.0.0.1:3000",
		Manifest: []string{
			"/frontend/",
			"/frontend/index.html",
			"/frontend/css/styles.css",
			"/frontend/js/app.js",
			"/frontend/js/pwa.js",
			"/frontend/manifest.json",
		},
		Fallback:           "/frontend/index.html",
		Listen:             "127.0.0.1:8080",
		Namespace:          "offcache",
		InstallConcurrency: 6,
		ShutdownTimeout:    10 * time.Second,
		Logging: LoggingConfig{
			Backend: "slog",
			Level:   "INFO",
			Format:  "text",
		},
		Store: StoreConfig{
			Provider:  "memory",
			Codec:     "msgpack",
			GenStore:  "local",
			Ristretto: RistrettoConfig{MaxCost: 64 << 20},
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Connectivity: ConnectivityConfig{
			Enabled:   true,
			Interval:  15 * time.Second,
			ProbePath: "/",
		},
	}
}
