// Package promhooks exports controller events as Prometheus counters.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/offcache"
)

// Hooks is the Prometheus implementation of offcache.Hooks.
type Hooks struct {
	installs        *prometheus.CounterVec
	updates         prometheus.Counter
	activations     prometheus.Counter
	removed         prometheus.Counter
	staleDeleteErrs prometheus.Counter
	fetches         *prometheus.CounterVec
	cacheWriteErrs  prometheus.Counter
	selfHeals       *prometheus.CounterVec
	syncs           *prometheus.CounterVec
	online          prometheus.Gauge
}

var _ offcache.Hooks = (*Hooks)(nil)

// New registers the offcache metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Hooks {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Hooks{
		installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offcache_installs_total",
				Help: "Install attempts by result",
			},
			[]string{"result"}, // "ok", "failed"
		),
		updates: f.NewCounter(prometheus.CounterOpts{
			Name: "offcache_updates_available_total",
			Help: "Generations installed while another generation was active",
		}),
		activations: f.NewCounter(prometheus.CounterOpts{
			Name: "offcache_activations_total",
			Help: "Completed activations",
		}),
		removed: f.NewCounter(prometheus.CounterOpts{
			Name: "offcache_generations_removed_total",
			Help: "Stale generations deleted during activation",
		}),
		staleDeleteErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "offcache_generation_delete_errors_total",
			Help: "Stale generations that could not be deleted",
		}),
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offcache_fetches_total",
				Help: "Requests answered by source",
			},
			[]string{"source", "navigation"},
		),
		cacheWriteErrs: f.NewCounter(prometheus.CounterOpts{
			Name: "offcache_cache_write_errors_total",
			Help: "Opportunistic cache writes that failed",
		}),
		selfHeals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offcache_self_heals_total",
				Help: "Stored entries deleted on read",
			},
			[]string{"reason"},
		),
		syncs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offcache_syncs_total",
				Help: "Deferred sync runs by tag and result",
			},
			[]string{"tag", "result"},
		),
		online: f.NewGauge(prometheus.GaugeOpts{
			Name: "offcache_online",
			Help: "1 while the origin is reachable",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func (h *Hooks) Installed(string, int)          { h.installs.WithLabelValues("ok").Inc() }
func (h *Hooks) InstallFailed(string, error)    { h.installs.WithLabelValues("failed").Inc() }
func (h *Hooks) UpdateAvailable(string, string) { h.updates.Inc() }

func (h *Hooks) Activated(_ string, removed []string) {
	h.activations.Inc()
	h.removed.Add(float64(len(removed)))
}

func (h *Hooks) StaleGenerationDeleteFailed(string, error) { h.staleDeleteErrs.Inc() }
func (h *Hooks) Claimed(string)                            {}

func (h *Hooks) FetchServed(source offcache.Source, navigation bool) {
	nav := "false"
	if navigation {
		nav = "true"
	}
	h.fetches.WithLabelValues(string(source), nav).Inc()
}

func (h *Hooks) CacheWriteFailed(string, error) { h.cacheWriteErrs.Inc() }

// FallbackServed is counted through FetchServed with source "fallback".
func (h *Hooks) FallbackServed(string) {}

func (h *Hooks) SelfHeal(_, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }

func (h *Hooks) SyncCompleted(tag string, err error) {
	h.syncs.WithLabelValues(tag, result(err)).Inc()
}

func (h *Hooks) ConnectivityChanged(online bool) {
	if online {
		h.online.Set(1)
		return
	}
	h.online.Set(0)
}
