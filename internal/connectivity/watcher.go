// Package connectivity polls the origin and reports online/offline
// transitions. offcached turns offline->online transitions into
// Controller.Online, which runs pending deferred syncs.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/unkn0wn-root/offcache"
)

// Probe reports whether the origin is reachable; any error means offline.
type Probe func(ctx context.Context) error

// HTTPProbe sends HEAD target. Any HTTP response, whatever its status,
// counts as online.
func HTTPProbe(client *http.Client, target string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		return resp.Body.Close()
	}
}

type Options struct {
	Probe    Probe
	Interval time.Duration // 0 => 15s
	// OnChange is called on every transition, after the first check.
	OnChange func(ctx context.Context, online bool)
	Logger   offcache.Logger
}

type Watcher struct {
	probe    Probe
	interval time.Duration
	onChange func(context.Context, bool)
	log      offcache.Logger

	mu     sync.Mutex
	online bool
	known  bool

	stopCh  chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func New(opts Options) *Watcher {
	w := &Watcher{
		probe:    opts.Probe,
		interval: opts.Interval,
		onChange: opts.OnChange,
		log:      opts.Logger,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if w.interval <= 0 {
		w.interval = 15 * time.Second
	}
	if w.onChange == nil {
		w.onChange = func(context.Context, bool) {}
	}
	if w.log == nil {
		w.log = offcache.NopLogger{}
	}
	return w
}

// Online is the last observed state; false before the first check.
func (w *Watcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Check probes once and fires OnChange if the state flipped. The first check
// only records the state. It returns the observed state.
func (w *Watcher) Check(ctx context.Context) bool {
	err := w.probe(ctx)
	now := err == nil

	w.mu.Lock()
	changed := w.known && now != w.online
	w.online, w.known = now, true
	w.mu.Unlock()

	if changed {
		w.log.Info("connectivity changed", offcache.Fields{"online": now, "err": err})
		w.onChange(ctx, now)
	}
	return now
}

// Start checks once, then polls every interval until Stop or ctx ends.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.stopped)

		w.Check(ctx)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.Check(ctx)
			}
		}
	}()
}

// Stop signals the polling goroutine and waits for it. Start must have been
// called.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.stopped
}
