package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FetchEvery    uint64
	SelfHealEvery uint64
	// Optional identity/key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fetchCtr    atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Installed(generation string, entries int) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.installed", "generation", generation, "entries", entries)
}

func (h *Hooks) InstallFailed(generation string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache.install_failed", "generation", generation, "err", err)
}

func (h *Hooks) UpdateAvailable(previous, current string) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.update_available", "previous", previous, "current", current)
}

func (h *Hooks) Activated(generation string, removed []string) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.activated", "generation", generation, "removed", removed)
}

func (h *Hooks) StaleGenerationDeleteFailed(generation string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.stale_delete_failed", "generation", generation, "err", err)
}

func (h *Hooks) Claimed(generation string) {
	if h.l == nil {
		return
	}
	h.l.Debug("offcache.claimed", "generation", generation)
}

func (h *Hooks) FetchServed(source offcache.Source, navigation bool) {
	if h.l == nil || !sample(h.opts.FetchEvery, &h.fetchCtr) {
		return
	}
	h.l.Debug("offcache.fetch_served", "source", string(source), "navigation", navigation)
}

func (h *Hooks) CacheWriteFailed(identity string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.cache_write_failed", "key", h.redact(identity), "err", err)
}

func (h *Hooks) FallbackServed(identity string) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.fallback_served", "key", h.redact(identity))
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("offcache.self_heal", "key", h.redact(storageKey), "reason", reason)
}

func (h *Hooks) SyncCompleted(tag string, err error) {
	if h.l == nil {
		return
	}
	if err != nil {
		h.l.Warn("offcache.sync_failed", "tag", tag, "err", err)
		return
	}
	h.l.Debug("offcache.sync_completed", "tag", tag)
}

func (h *Hooks) ConnectivityChanged(online bool) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.connectivity", "online", online)
}
