package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/cachestore"
	"github.com/unkn0wn-root/offcache/codec"
	"github.com/unkn0wn-root/offcache/genstore"
	asynchook "github.com/unkn0wn-root/offcache/hooks/async"
	promhooks "github.com/unkn0wn-root/offcache/hooks/prom"
	"github.com/unkn0wn-root/offcache/internal/config"
	logruslog "github.com/unkn0wn-root/offcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/offcache/log/slog"
	zaplog "github.com/unkn0wn-root/offcache/log/zap"
	"github.com/unkn0wn-root/offcache/provider"
	badgerprov "github.com/unkn0wn-root/offcache/provider/badger"
	bigcacheprov "github.com/unkn0wn-root/offcache/provider/bigcache"
	"github.com/unkn0wn-root/offcache/provider/memory"
	redisprov "github.com/unkn0wn-root/offcache/provider/redis"
	ristrettoprov "github.com/unkn0wn-root/offcache/provider/ristretto"
	"github.com/unkn0wn-root/offcache/sloghooks"
)

// runtime is everything one offcached process builds from its config.
type runtime struct {
	cfg      *config.Config
	log      offcache.Logger
	slog     *slog.Logger
	hooks    offcache.Hooks
	store    cachestore.CacheStore
	ctrl     offcache.Controller
	registry *prometheus.Registry
	client   *http.Client

	closers []func()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, registry: prometheus.NewRegistry()}

	var err error
	rt.log, rt.slog, err = newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	origin, err := url.Parse(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}

	async := asynchook.New(sloghooks.New(rt.slog, sloghooks.Options{FetchEvery: 100}), 1, 1024)
	rt.closers = append(rt.closers, async.Close)
	hooks := offcache.MultiHooks{async}
	if cfg.Metrics.Enabled {
		hooks = append(hooks, promhooks.New(rt.registry))
	}
	rt.hooks = hooks

	var rdb goredis.UniversalClient
	if cfg.Store.Provider == "redis" || cfg.Store.GenStore == "redis" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			rt.close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Store.Redis.Addr, err)
		}
		// closed after the store, once every user is done with it
		rt.closers = append([]func(){func() { _ = rdb.Close() }}, rt.closers...)
	}

	prov, err := newProvider(ctx, cfg.Store, rdb)
	if err != nil {
		rt.close()
		return nil, err
	}
	var gens genstore.GenStore = genstore.NewLocal()
	if cfg.Store.GenStore == "redis" {
		gens = genstore.NewRedis(rdb, cfg.Namespace, false)
	}
	rt.store = cachestore.New(cachestore.Options{
		Namespace:  cfg.Namespace,
		Provider:   prov,
		GenStore:   gens,
		Codec:      newCodec(cfg.Store),
		OnSelfHeal: rt.hooks.SelfHeal,
	})

	rt.client = &http.Client{Timeout: cfg.FetchTimeout}
	rt.ctrl, err = offcache.New(offcache.Options{
		Generation:         cfg.Generation,
		Manifest:           offcache.Manifest(cfg.Manifest),
		Fallback:           cfg.Fallback,
		Origin:             cfg.Origin,
		Store:              rt.store,
		Fetcher:            &offcache.HTTPFetcher{Client: rt.client, Origin: origin},
		Logger:             rt.log,
		Hooks:              rt.hooks,
		InstallConcurrency: cfg.InstallConcurrency,
	})
	if err != nil {
		_ = rt.store.Close(ctx)
		rt.close()
		return nil, err
	}
	return rt, nil
}

// shutdown closes the controller (and with it the store), then the rest.
func (rt *runtime) shutdown(ctx context.Context) error {
	err := rt.ctrl.Close(ctx)
	rt.close()
	return err
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func newProvider(ctx context.Context, cfg config.StoreConfig, rdb goredis.UniversalClient) (provider.Provider, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "ristretto":
		maxCost := cfg.Ristretto.MaxCost
		if maxCost <= 0 {
			maxCost = 64 << 20
		}
		return ristrettoprov.New(ristrettoprov.Config{
			NumCounters: 1e5,
			MaxCost:     maxCost,
			BufferItems: 64,
		})
	case "bigcache":
		return bigcacheprov.New(ctx, bigcacheprov.Config{
			Shards:             cfg.BigCache.Shards,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxCacheSize,
		})
	case "badger":
		return badgerprov.Open(badgerprov.Config{
			Dir:        cfg.Badger.Dir,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
		})
	case "redis":
		return redisprov.New(redisprov.Config{Client: rdb})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newCodec(cfg config.StoreConfig) codec.Codec[cachestore.Record] {
	var c codec.Codec[cachestore.Record]
	switch cfg.Codec {
	case "cbor":
		c = codec.MustCBOR[cachestore.Record](true)
	case "json":
		c = codec.JSON[cachestore.Record]{}
	case "protobuf":
		c = cachestore.Protobuf{}
	default:
		c = codec.Msgpack[cachestore.Record]{}
	}
	if cfg.MaxEntryBytes > 0 {
		c = codec.Limit[cachestore.Record]{Inner: c, MaxDecode: cfg.MaxEntryBytes}
	}
	return c
}

// newLogger builds the configured backend. The slog logger is always returned
// as well; sloghooks writes through it.
func newLogger(cfg config.LoggingConfig) (offcache.Logger, *slog.Logger, error) {
	level := strings.ToUpper(cfg.Level)
	json := cfg.Format == "json"

	var slevel slog.Level
	if err := slevel.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("logging.level: %w", err)
	}
	hopts := &slog.HandlerOptions{Level: slevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if json {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	sl := slog.New(handler)

	switch cfg.Backend {
	case "slog":
		return slogadapter.Logger{L: sl}, sl, nil
	case "zap":
		zcfg := zap.NewProductionConfig()
		if !json {
			zcfg.Encoding = "console"
		}
		zl, err := zap.ParseAtomicLevel(strings.ToLower(level))
		if err != nil {
			return nil, nil, fmt.Errorf("logging.level: %w", err)
		}
		zcfg.Level = zl
		z, err := zcfg.Build()
		if err != nil {
			return nil, nil, err
		}
		return zaplog.ZapLogger{L: z}, sl, nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(os.Stderr)
		lv, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging.level: %w", err)
		}
		l.SetLevel(lv)
		if json {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
		return logruslog.LogrusLogger{E: logrus.NewEntry(l)}, sl, nil
	default:
		return nil, nil, errors.New("logging.backend: unknown backend " + cfg.Backend)
	}
}
