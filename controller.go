package offcache

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/offcache/cachestore"
)

type controller struct {
	gen      string
	origin   *url.URL
	manifest []*Request
	fallback *Request // nil => no fallback
	store    cachestore.CacheStore
	fetcher  Fetcher
	log      Logger
	hooks    Hooks
	enabled  bool

	installConcurrency int

	state     atomic.Int32
	lifecycle sync.Mutex // serializes install/activate/claim

	// previous active generation; answers fetches read-only until this
	// generation is activated
	inheritMu sync.Mutex
	inherited string

	handlers map[EventKind]handlerFunc

	syncMu    sync.Mutex
	syncTasks map[string]SyncFunc
	pending   []string
	running   map[string]struct{}

	// inflight tracks dispatched events and background cache writes.
	closeMu  sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func newController(opts Options) (*controller, error) {
	if opts.Generation == "" {
		return nil, ErrGenerationRequired
	}

	c := &controller{
		gen:       opts.Generation,
		enabled:   !opts.Disabled,
		syncTasks: make(map[string]SyncFunc),
		running:   make(map[string]struct{}),
	}

	if opts.Origin != "" {
		u, err := url.Parse(opts.Origin)
		if err != nil {
			return nil, fmt.Errorf("offcache: origin: %w", err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("offcache: origin %q is not absolute", opts.Origin)
		}
		c.origin = u
	}

	manifest, err := opts.Manifest.Resolve(c.origin)
	if err != nil {
		return nil, err
	}
	c.manifest = manifest

	if opts.Fallback != "" {
		fb, err := Manifest{opts.Fallback}.Resolve(c.origin)
		if err != nil {
			return nil, fmt.Errorf("offcache: fallback: %w", err)
		}
		c.fallback = fb[0]
	}

	// defaults
	c.log = opts.Logger
	if c.log == nil {
		c.log = NopLogger{}
	}
	c.hooks = opts.Hooks
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	c.installConcurrency = coalesce(opts.InstallConcurrency, defaultInstallConcurrency)

	if opts.Store != nil {
		c.store = opts.Store
	} else {
		c.store = cachestore.New(cachestore.Options{
			Namespace:  coalesce(opts.Namespace, defaultNamespace),
			OnSelfHeal: c.hooks.SelfHeal,
		})
	}
	switch {
	case opts.Fetcher != nil:
		c.fetcher = opts.Fetcher
	case c.origin == nil:
		return nil, ErrOriginRequired
	default:
		c.fetcher = &HTTPFetcher{Origin: c.origin}
	}

	c.handlers = map[EventKind]handlerFunc{
		EventInstall: func(ctx context.Context, _ Event) (*Response, error) {
			return nil, c.Install(ctx)
		},
		EventActivate: func(ctx context.Context, _ Event) (*Response, error) {
			return nil, c.Activate(ctx)
		},
		EventFetch: func(ctx context.Context, ev Event) (*Response, error) {
			return c.Fetch(ctx, ev.Request)
		},
		EventSync: func(ctx context.Context, ev Event) (*Response, error) {
			return nil, c.Sync(ctx, ev.Tag)
		},
	}

	c.syncTasks[DefaultSyncTag] = func(context.Context) error {
		c.log.Info("background sync triggered", Fields{"generation": c.gen})
		return nil
	}
	for tag, fn := range opts.SyncTasks {
		c.syncTasks[tag] = fn
	}

	c.state.Store(int32(StateParsed))
	return c, nil
}

func (c *controller) Generation() string { return c.gen }

func (c *controller) State() State { return State(c.state.Load()) }

func (c *controller) setState(s State) { c.state.Store(int32(s)) }

func (c *controller) Register(ctx context.Context) error {
	active, err := c.store.Active(ctx)
	if err != nil {
		return fmt.Errorf("offcache: read active generation: %w", err)
	}
	if active == c.gen {
		has, err := c.store.Has(ctx, c.gen)
		if err != nil {
			return fmt.Errorf("offcache: lookup generation: %w", err)
		}
		if has {
			return c.reclaim(ctx)
		}
	}

	if err := c.Dispatch(ctx, Event{Kind: EventInstall}).Wait(ctx); err != nil {
		if prev := c.inheritedGen(); prev != "" {
			c.log.Warn("update failed; previous generation stays in control",
				Fields{"generation": c.gen, "previous": prev, "err": err})
		}
		return err
	}
	// skip waiting: eligible to activate right away
	return c.Dispatch(ctx, Event{Kind: EventActivate}).Wait(ctx)
}

// reclaim takes control with a generation that is already installed and
// active, finishing any stale generation cleanup a previous activation left.
func (c *controller) reclaim(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	removed, err := c.sweep(ctx)
	if err != nil {
		// cleanup only; the generation itself is intact
		c.log.Warn("stale generation sweep failed", Fields{"err": err})
	}
	c.setState(StateActivated)
	c.inherit("")
	c.log.Info("generation already active; claiming", Fields{"generation": c.gen, "removed": len(removed)})
	c.hooks.Claimed(c.gen)
	return nil
}

// inherit records the generation that answers fetches until this one is
// activated. "" clears it.
func (c *controller) inherit(gen string) {
	c.inheritMu.Lock()
	c.inherited = gen
	c.inheritMu.Unlock()
}

func (c *controller) inheritedGen() string {
	c.inheritMu.Lock()
	defer c.inheritMu.Unlock()
	return c.inherited
}

func (c *controller) Install(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	c.setState(StateInstalling)

	previous, err := c.store.Active(ctx)
	if err != nil {
		c.log.Warn("read active generation failed", Fields{"err": err})
		previous = ""
	}
	if previous != "" && previous != c.gen {
		if ok, err := c.store.Has(ctx, previous); err == nil && ok {
			c.inherit(previous)
		}
	}

	cache, err := c.store.Open(ctx, c.gen)
	if err != nil {
		return c.installFailed(&InstallError{Generation: c.gen, Total: len(c.manifest), OpenErr: err})
	}
	c.log.Debug("cache opened", Fields{"generation": c.gen, "entries": len(c.manifest)})

	// fetch everything first; nothing is written unless the whole batch arrived
	responses := make([]*Response, len(c.manifest))
	failures := make([]error, len(c.manifest))
	var g errgroup.Group
	g.SetLimit(c.installConcurrency)
	for i, req := range c.manifest {
		g.Go(func() error {
			resp, err := c.fetcher.Fetch(ctx, req)
			switch {
			case err != nil:
				failures[i] = err
			case resp == nil:
				failures[i] = errNilResponse
			case !resp.OK():
				failures[i] = &StatusError{Status: resp.Status}
			default:
				responses[i] = resp
			}
			return nil
		})
	}
	_ = g.Wait()

	if ierr := c.collect(failures); ierr != nil {
		return c.installFailed(ierr)
	}

	for i, req := range c.manifest {
		resp := responses[i]
		vary, ok := varyValues(resp.Header.Values("Vary"), req.Header)
		if !ok {
			failures[i] = fmt.Errorf("response has Vary: *")
			continue
		}
		if err := cache.Put(ctx, req.Identity(), resp.record(vary)); err != nil {
			failures[i] = err
		}
	}
	if ierr := c.collect(failures); ierr != nil {
		return c.installFailed(ierr)
	}

	c.setState(StateInstalled)
	c.log.Info("all resources cached", Fields{"generation": c.gen, "entries": len(c.manifest)})
	c.hooks.Installed(c.gen, len(c.manifest))
	if previous != "" && previous != c.gen {
		c.hooks.UpdateAvailable(previous, c.gen)
	}
	return nil
}

func (c *controller) collect(failures []error) *InstallError {
	var ierr *InstallError
	for i, err := range failures {
		if err == nil {
			continue
		}
		if ierr == nil {
			ierr = &InstallError{Generation: c.gen, Total: len(c.manifest)}
		}
		ierr.Entries = append(ierr.Entries, &EntryError{URL: c.manifest[i].URL.String(), Err: err})
	}
	return ierr
}

func (c *controller) installFailed(err *InstallError) error {
	c.setState(StateRedundant)
	c.log.Error("install failed", Fields{"generation": c.gen, "err": err})
	c.hooks.InstallFailed(c.gen, err)
	return err
}

func (c *controller) Activate(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	prev := c.State()
	if prev != StateInstalled && prev != StateActivated {
		return ErrNotInstalled
	}
	c.setState(StateActivating)
	// the previous generation is about to be deleted; stop reading from it
	inherited := c.inheritedGen()
	c.inherit("")

	removed, err := c.sweep(ctx)
	if err != nil {
		c.setState(prev)
		c.inherit(inherited)
		return err
	}

	if err := c.store.SetActive(ctx, c.gen); err != nil {
		c.setState(prev)
		return fmt.Errorf("offcache: record active generation: %w", err)
	}
	c.setState(StateActivated)
	c.log.Info("cache cleanup complete", Fields{"generation": c.gen, "removed": len(removed)})
	c.hooks.Activated(c.gen, removed)
	c.hooks.Claimed(c.gen)
	return nil
}

// sweep deletes every generation except the current one. A generation that
// cannot be deleted is reported and left for the next sweep.
func (c *controller) sweep(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("offcache: list generations: %w", err)
	}
	var removed []string
	for _, name := range keys {
		if name == c.gen {
			continue
		}
		c.log.Info("deleting old cache", Fields{"generation": name})
		deleted, err := c.store.Delete(ctx, name)
		if err != nil {
			c.log.Warn("delete old cache failed", Fields{"generation": name, "err": err})
			c.hooks.StaleGenerationDeleteFailed(name, err)
			continue
		}
		if deleted {
			removed = append(removed, name)
		}
	}
	return removed, nil
}

// controlling names the generation that answers fetches. writable is false
// while a previous generation answers on behalf of this one.
func (c *controller) controlling() (gen string, writable bool) {
	if !c.enabled {
		return "", false
	}
	if c.State() == StateActivated {
		return c.gen, true
	}
	return c.inheritedGen(), false
}

func (c *controller) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.URL == nil {
		return nil, ErrInvalidRequest
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	r := req.resolved(c.origin)
	nav := r.IsNavigation()

	gen, writable := c.controlling()
	if gen == "" {
		// not controlling this page
		resp, err := c.fetcher.Fetch(ctx, r)
		if err == nil && resp == nil {
			err = errNilResponse
		}
		if err != nil {
			return nil, &NetworkError{Identity: r.Identity(), Navigation: nav, Err: err}
		}
		resp.Source = SourceNetwork
		return resp, nil
	}

	id := r.Identity()
	cache, err := c.store.Open(ctx, gen)
	if err != nil {
		c.log.Warn("open cache failed; going to network", Fields{"generation": gen, "err": err})
		cache = nil
	}

	if cache != nil && r.Method == http.MethodGet {
		rec, ok, err := cache.Match(ctx, id)
		if err != nil {
			c.log.Warn("cache lookup failed; going to network", Fields{"key": id, "err": err})
		} else if ok && varyMatches(rec.Vary, r.Header) {
			c.hooks.FetchServed(SourceCache, nav)
			return fromRecord(rec, SourceCache), nil
		}
	}

	resp, err := c.fetcher.Fetch(ctx, r)
	if err == nil && resp == nil {
		err = errNilResponse
	}
	if err != nil {
		return c.fallbackFor(ctx, cache, r, err)
	}
	resp.Source = SourceNetwork

	if writable && cache != nil && r.Method == http.MethodGet && resp.cacheable() {
		c.storeAsync(ctx, cache, r, resp.Clone())
	}
	c.hooks.FetchServed(SourceNetwork, nav)
	return resp, nil
}

// storeAsync writes a copy of a network response without delaying delivery.
// Failures are logged and dropped.
func (c *controller) storeAsync(ctx context.Context, cache cachestore.Cache, r *Request, resp *Response) {
	id := r.Identity()
	vary, ok := varyValues(resp.Header.Values("Vary"), r.Header)
	if !ok {
		c.hooks.CacheWriteFailed(id, fmt.Errorf("response has Vary: *"))
		return
	}
	if !c.track() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer c.inflight.Done()
		if err := cache.Put(ctx, id, resp.record(vary)); err != nil {
			c.log.Debug("cache put failed", Fields{"key": id, "err": err})
			c.hooks.CacheWriteFailed(id, err)
		}
	}()
}

func (c *controller) fallbackFor(ctx context.Context, cache cachestore.Cache, r *Request, netErr error) (*Response, error) {
	id := r.Identity()
	nav := r.IsNavigation()
	if !nav || c.fallback == nil {
		return nil, &NetworkError{Identity: id, Navigation: nav, Err: netErr}
	}
	if cache != nil {
		rec, ok, err := cache.Match(ctx, c.fallback.Identity())
		if err == nil && ok {
			c.log.Debug("serving offline fallback", Fields{"key": id, "err": netErr})
			c.hooks.FallbackServed(id)
			c.hooks.FetchServed(SourceFallback, true)
			return fromRecord(rec, SourceFallback), nil
		}
	}
	return nil, &NetworkError{Identity: id, Navigation: true, NoFallback: true, Err: netErr}
}

func (c *controller) Dispatch(ctx context.Context, ev Event) *Completion {
	h, ok := c.handlers[ev.Kind]
	if !ok {
		return settled(nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind))
	}
	if !c.track() {
		return settled(nil, ErrClosed)
	}
	done := newCompletion()
	go func() {
		defer c.inflight.Done()
		done.resolve(h(ctx, ev))
	}()
	return done
}

// track registers one unit of background work; false once closed.
func (c *controller) track() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *controller) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// settle waits for dispatched events and background writes.
func (c *controller) settle() { c.inflight.Wait() }

func (c *controller) Close(ctx context.Context) error {
	c.closeMu.Lock()
	already := c.closed
	c.closed = true
	c.closeMu.Unlock()
	if already {
		return nil
	}

	done := make(chan struct{})
	go func() {
		c.settle()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.store.Close(ctx)
}
