// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    FetchEvery: 100, // sample ~every 100th served request
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	c, _ := offcache.New(offcache.Options{
//	    Generation: "evenup-v1.0.0",
//	    Origin:     "https://app.example",
//	    Manifest:   manifest,
//	    Hooks:      hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/offcache"
)

type Hooks struct {
	inner offcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once

	mu     sync.RWMutex // guards closed against send on closed q
	closed bool
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(inner offcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue. Events raised after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) Installed(g string, n int)         { h.try(func() { h.inner.Installed(g, n) }) }
func (h *Hooks) InstallFailed(g string, err error) { h.try(func() { h.inner.InstallFailed(g, err) }) }
func (h *Hooks) UpdateAvailable(prev, cur string) {
	h.try(func() { h.inner.UpdateAvailable(prev, cur) })
}
func (h *Hooks) Activated(g string, removed []string) {
	h.try(func() { h.inner.Activated(g, removed) })
}
func (h *Hooks) StaleGenerationDeleteFailed(g string, err error) {
	h.try(func() { h.inner.StaleGenerationDeleteFailed(g, err) })
}
func (h *Hooks) Claimed(g string) { h.try(func() { h.inner.Claimed(g) }) }
func (h *Hooks) FetchServed(s offcache.Source, nav bool) {
	h.try(func() { h.inner.FetchServed(s, nav) })
}
func (h *Hooks) CacheWriteFailed(id string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(id, err) })
}
func (h *Hooks) FallbackServed(id string) { h.try(func() { h.inner.FallbackServed(id) }) }
func (h *Hooks) SelfHeal(k, r string)     { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) SyncCompleted(tag string, err error) {
	h.try(func() { h.inner.SyncCompleted(tag, err) })
}
func (h *Hooks) ConnectivityChanged(online bool) {
	h.try(func() { h.inner.ConnectivityChanged(online) })
}
