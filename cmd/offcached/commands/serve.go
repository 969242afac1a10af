package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/offcache"
	"github.com/unkn0wn-root/offcache/internal/connectivity"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline cache edge",
	Long: `Register the configured generation and serve the application through it.

Requests are answered cache-first. Navigations that cannot reach the origin
get the cached fallback document. When the connectivity probe sees the
origin come back, pending deferred syncs run.

Examples:
  offcached serve
  OFFCACHE_LOGGING_LEVEL=DEBUG offcached serve --config ./config.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := rt.shutdown(sctx); err != nil {
			rt.log.Error("shutdown", offcache.Fields{"err": err})
		}
	}()

	rt.log.Info("configuration loaded", offcache.Fields{
		"generation": cfg.Generation,
		"origin":     cfg.Origin,
		"entries":    len(cfg.Manifest),
		"provider":   cfg.Store.Provider,
		"genstore":   cfg.Store.GenStore,
	})

	// An unreachable origin at startup is not fatal: the previously active
	// generation keeps answering cache-first, and the next restart retries
	// the install.
	if err := rt.ctrl.Register(ctx); err != nil {
		rt.log.Error("registration failed; previous generation (if any) stays in control", offcache.Fields{"err": err})
	}

	if cfg.Connectivity.Enabled {
		probe := connectivity.HTTPProbe(rt.client, strings.TrimRight(cfg.Origin, "/")+cfg.Connectivity.ProbePath)
		w := connectivity.New(connectivity.Options{
			Probe:    probe,
			Interval: cfg.Connectivity.Interval,
			Logger:   rt.log,
			OnChange: func(ctx context.Context, online bool) {
				if !online {
					rt.hooks.ConnectivityChanged(false)
					return
				}
				if err := rt.ctrl.Online(ctx); err != nil {
					rt.log.Warn("deferred sync failed", offcache.Fields{"err": err})
				}
			},
		})
		w.Start(ctx)
		defer w.Stop()
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", offcache.NewHandler(rt.ctrl, strings.TrimRight(cfg.Origin, "/"), rt.log))

	srv := &http.Server{Addr: cfg.Listen, Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		rt.log.Info("listening", offcache.Fields{"addr": cfg.Listen})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		rt.log.Info("shutdown signal received", nil)
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return nil
}
