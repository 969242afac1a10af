package offcache

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/offcache/cachestore"
)

const testOrigin = "https://app.example"

// fakeNet answers from a table keyed by absolute URL. Unknown URLs get a 404.
type fakeNet struct {
	mu      sync.Mutex
	routes  map[string]*Response
	calls   map[string]int
	offline atomic.Bool
	fail    map[string]error
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		routes: make(map[string]*Response),
		calls:  make(map[string]int),
		fail:   make(map[string]error),
	}
}

func (n *fakeNet) serve(url, body string, mut ...func(*Response)) {
	r := &Response{
		URL:    url,
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
		Type:   TypeBasic,
	}
	for _, m := range mut {
		m(r)
	}
	n.mu.Lock()
	n.routes[url] = r
	n.mu.Unlock()
}

func (n *fakeNet) Fetch(_ context.Context, req *Request) (*Response, error) {
	u := req.URL.String()
	n.mu.Lock()
	n.calls[u]++
	r, ok := n.routes[u]
	ferr := n.fail[u]
	n.mu.Unlock()
	if n.offline.Load() {
		return nil, errors.New("network unreachable")
	}
	if ferr != nil {
		return nil, ferr
	}
	if !ok {
		return &Response{URL: u, Status: http.StatusNotFound, Header: http.Header{}, Type: TypeBasic}, nil
	}
	return r.Clone(), nil
}

func (n *fakeNet) count(url string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[url]
}

// recHooks records the lifecycle hooks the tests look at.
type recHooks struct {
	NopHooks
	mu       sync.Mutex
	updates  [][2]string
	claimed  []string
	failed   []string
	removed  []string
	staleErr []string
	syncs    []string
	writeErr int
}

func (h *recHooks) UpdateAvailable(prev, cur string) {
	h.mu.Lock()
	h.updates = append(h.updates, [2]string{prev, cur})
	h.mu.Unlock()
}
func (h *recHooks) Claimed(g string) { h.mu.Lock(); h.claimed = append(h.claimed, g); h.mu.Unlock() }
func (h *recHooks) InstallFailed(g string, _ error) {
	h.mu.Lock()
	h.failed = append(h.failed, g)
	h.mu.Unlock()
}
func (h *recHooks) Activated(_ string, removed []string) {
	h.mu.Lock()
	h.removed = append(h.removed, removed...)
	h.mu.Unlock()
}
func (h *recHooks) StaleGenerationDeleteFailed(g string, _ error) {
	h.mu.Lock()
	h.staleErr = append(h.staleErr, g)
	h.mu.Unlock()
}
func (h *recHooks) SyncCompleted(tag string, _ error) {
	h.mu.Lock()
	h.syncs = append(h.syncs, tag)
	h.mu.Unlock()
}
func (h *recHooks) CacheWriteFailed(string, error) { h.mu.Lock(); h.writeErr++; h.mu.Unlock() }

func newTestController(t *testing.T, store cachestore.CacheStore, net Fetcher, optsOpt func(*Options)) Controller {
	t.Helper()
	opts := Options{
		Generation: "v2",
		Origin:     testOrigin,
		Manifest:   Manifest{"/index.html", "/app.css"},
		Fallback:   "/index.html",
		Store:      store,
		Fetcher:    net,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func mustImpl(t *testing.T, c Controller) *controller {
	t.Helper()
	impl, ok := c.(*controller)
	if !ok {
		t.Fatalf("unexpected concrete type for Controller")
	}
	return impl
}

func serveManifest(n *fakeNet) {
	n.serve(testOrigin+"/index.html", "<html>app</html>", func(r *Response) {
		r.Header.Set("Content-Type", "text/html")
	})
	n.serve(testOrigin+"/app.css", "body{}")
}

func get(t *testing.T, raw string) *Request {
	t.Helper()
	r, err := NewRequest(http.MethodGet, raw)
	if err != nil {
		t.Fatalf("NewRequest(%q): %v", raw, err)
	}
	return r
}

func navigate(t *testing.T, raw string) *Request {
	r := get(t, raw)
	r.Mode = ModeNavigate
	r.Destination = DestinationDocument
	return r
}

func register(t *testing.T, c Controller) {
	t.Helper()
	if err := c.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if c.State() != StateActivated {
		t.Fatalf("state=%v want activated", c.State())
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrGenerationRequired) {
		t.Fatalf("missing generation: err=%v", err)
	}
	if _, err := New(Options{Generation: "v1", Manifest: Manifest{"/index.html"}}); err == nil {
		t.Fatalf("relative manifest without origin should fail")
	}
	if _, err := New(Options{Generation: "v1", Origin: "/relative"}); err == nil {
		t.Fatalf("relative origin should fail")
	}
	if _, err := New(Options{Generation: "v1", Origin: testOrigin, Manifest: Manifest{"/a", testOrigin + "/a"}}); err == nil {
		t.Fatalf("duplicate manifest identity should fail")
	}
	// without an origin the default fetcher could not tell same-origin apart
	if _, err := New(Options{Generation: "v1"}); !errors.Is(err, ErrOriginRequired) {
		t.Fatalf("default fetcher without origin: err=%v", err)
	}
	if _, err := New(Options{Generation: "v1", Fetcher: newFakeNet()}); err != nil {
		t.Fatalf("custom fetcher without origin: %v", err)
	}
}

// Fresh install: the generation holds exactly the manifest.
func TestInstall_FreshStoresManifest(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	c := newTestController(t, store, n, nil)

	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if c.State() != StateInstalled {
		t.Fatalf("state=%v want installed", c.State())
	}

	cache, _ := store.Open(ctx, "v2")
	keys, err := cache.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	want := []string{"GET " + testOrigin + "/index.html", "GET " + testOrigin + "/app.css"}
	slices.Sort(keys)
	slices.Sort(want)
	if !slices.Equal(keys, want) {
		t.Fatalf("keys=%v want %v", keys, want)
	}
	rec, ok, err := cache.Match(ctx, "GET "+testOrigin+"/app.css")
	if err != nil || !ok || string(rec.Body) != "body{}" {
		t.Fatalf("Match app.css: ok=%v err=%v body=%q", ok, err, rec.Body)
	}
}

// Any unfetchable entry fails the whole install and nothing is stored.
func TestInstall_AtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	n.serve(testOrigin+"/index.html", "<html/>") // /app.css => 404
	store := cachestore.New(cachestore.Options{})
	h := &recHooks{}
	c := newTestController(t, store, n, func(o *Options) { o.Hooks = h })

	err := c.Install(ctx)
	var ierr *InstallError
	if !errors.As(err, &ierr) {
		t.Fatalf("err=%v want *InstallError", err)
	}
	if len(ierr.Entries) != 1 || ierr.Entries[0].URL != testOrigin+"/app.css" {
		t.Fatalf("entries=%v", ierr.Entries)
	}
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != http.StatusNotFound {
		t.Fatalf("want StatusError 404 in chain, got %v", err)
	}
	if c.State() != StateRedundant {
		t.Fatalf("state=%v want redundant", c.State())
	}
	cache, _ := store.Open(ctx, "v2")
	if keys, _ := cache.Keys(ctx); len(keys) != 0 {
		t.Fatalf("nothing should be stored, got %v", keys)
	}
	if err := c.Activate(ctx); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("Activate after failed install: err=%v", err)
	}
	if len(h.failed) != 1 {
		t.Fatalf("InstallFailed hook calls=%d", len(h.failed))
	}
}

// A failed install of a new version leaves the old version in control.
func TestRegister_FailedUpdateKeepsOldVersion(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})

	old := newTestController(t, store, n, func(o *Options) { o.Generation = "v1" })
	register(t, old)

	next := newTestController(t, store, n, func(o *Options) {
		o.Manifest = Manifest{"/index.html", "/app.css", "/missing.js"}
	})
	if err := next.Register(ctx); err == nil {
		t.Fatalf("Register should fail")
	}
	if active, _ := store.Active(ctx); active != "v1" {
		t.Fatalf("active=%q want v1", active)
	}
	if ok, _ := store.Has(ctx, "v1"); !ok {
		t.Fatalf("v1 must survive a failed update")
	}
	// old version still answers from cache
	resp, err := old.Fetch(ctx, get(t, "/app.css"))
	if err != nil || resp.Source != SourceCache {
		t.Fatalf("old controller fetch: src=%v err=%v", resp.Source, err)
	}
}

// While a newer generation cannot install, the previously active one keeps
// answering from its cache, without taking new writes.
func TestRegister_FailedUpdateServesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	register(t, newTestController(t, store, n, func(o *Options) { o.Generation = "v1" }))

	n.offline.Store(true)
	next := newTestController(t, store, n, nil)
	if err := next.Register(ctx); err == nil {
		t.Fatalf("Register should fail while offline")
	}
	if next.State() != StateRedundant {
		t.Fatalf("state=%v want redundant", next.State())
	}

	resp, err := next.Fetch(ctx, navigate(t, "/index.html"))
	if err != nil || resp.Source != SourceCache || string(resp.Body) != "<html>app</html>" {
		t.Fatalf("navigate /index.html: resp=%+v err=%v", resp, err)
	}
	resp, err = next.Fetch(ctx, navigate(t, "/reports/42"))
	if err != nil || resp.Source != SourceFallback {
		t.Fatalf("navigate /reports/42: resp=%+v err=%v", resp, err)
	}

	// back online: misses go to the network but v1 is not written to
	n.offline.Store(false)
	n.serve(testOrigin+"/logo.png", "png")
	if resp, err := next.Fetch(ctx, get(t, "/logo.png")); err != nil || resp.Source != SourceNetwork {
		t.Fatalf("miss: resp=%+v err=%v", resp, err)
	}
	mustImpl(t, next).settle()
	v1, _ := store.Open(ctx, "v1")
	if _, ok, _ := v1.Match(ctx, "GET "+testOrigin+"/logo.png"); ok {
		t.Fatalf("previous generation must not take writes")
	}
}

// Activate leaves exactly the current generation.
func TestActivate_RemovesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	v1, _ := store.Open(ctx, "v1")
	if err := v1.Put(ctx, "GET "+testOrigin+"/old.js", cachestore.Record{Status: 200, Type: "basic"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := &recHooks{}
	c := newTestController(t, store, n, func(o *Options) { o.Hooks = h })

	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	keys, _ := store.Keys(ctx)
	if !slices.Equal(keys, []string{"v1", "v2"}) {
		t.Fatalf("keys before activate=%v", keys)
	}
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	keys, _ = store.Keys(ctx)
	if !slices.Equal(keys, []string{"v2"}) {
		t.Fatalf("keys after activate=%v want [v2]", keys)
	}
	if !slices.Equal(h.removed, []string{"v1"}) || !slices.Equal(h.claimed, []string{"v2"}) {
		t.Fatalf("removed=%v claimed=%v", h.removed, h.claimed)
	}
	if active, _ := store.Active(ctx); active != "v2" {
		t.Fatalf("active=%q", active)
	}
}

// failingDeleteStore refuses to delete one generation.
type failingDeleteStore struct {
	cachestore.CacheStore
	refuse string
}

func (s *failingDeleteStore) Delete(ctx context.Context, gen string) (bool, error) {
	if gen == s.refuse {
		return false, errors.New("backend unavailable")
	}
	return s.CacheStore.Delete(ctx, gen)
}

func TestActivate_IgnoresDeleteFailures(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	inner := cachestore.New(cachestore.Options{})
	_, _ = inner.Open(ctx, "v0")
	_, _ = inner.Open(ctx, "v1")
	store := &failingDeleteStore{CacheStore: inner, refuse: "v0"}
	h := &recHooks{}
	c := newTestController(t, store, n, func(o *Options) { o.Hooks = h })

	register(t, c)
	keys, _ := store.Keys(ctx)
	if !slices.Equal(keys, []string{"v0", "v2"}) {
		t.Fatalf("keys=%v want [v0 v2]", keys)
	}
	if !slices.Equal(h.staleErr, []string{"v0"}) {
		t.Fatalf("stale delete failures=%v", h.staleErr)
	}

	// next activation retries
	store.refuse = ""
	if err := c.Activate(ctx); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	keys, _ = store.Keys(ctx)
	if !slices.Equal(keys, []string{"v2"}) {
		t.Fatalf("keys after retry=%v", keys)
	}
}

// A restart of the active generation finishes a cleanup that failed earlier.
func TestRegister_ReclaimSweepsStaleGenerations(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	inner := cachestore.New(cachestore.Options{})
	_, _ = inner.Open(ctx, "v0")
	store := &failingDeleteStore{CacheStore: inner, refuse: "v0"}
	register(t, newTestController(t, store, n, nil))
	if keys, _ := store.Keys(ctx); !slices.Equal(keys, []string{"v0", "v2"}) {
		t.Fatalf("keys=%v want [v0 v2]", keys)
	}
	calls := n.count(testOrigin + "/index.html")

	store.refuse = ""
	h := &recHooks{}
	register(t, newTestController(t, store, n, func(o *Options) { o.Hooks = h }))
	if keys, _ := store.Keys(ctx); !slices.Equal(keys, []string{"v2"}) {
		t.Fatalf("keys after restart=%v want [v2]", keys)
	}
	if n.count(testOrigin+"/index.html") != calls {
		t.Fatalf("restart re-fetched the manifest")
	}
	if !slices.Equal(h.claimed, []string{"v2"}) {
		t.Fatalf("claimed=%v", h.claimed)
	}
}

// Cached requests never reach the network.
func TestFetch_CacheFirst(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, nil)
	register(t, c)

	before := n.count(testOrigin + "/app.css")
	for i := 0; i < 3; i++ {
		resp, err := c.Fetch(ctx, get(t, "/app.css"))
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if resp.Source != SourceCache || string(resp.Body) != "body{}" {
			t.Fatalf("src=%v body=%q", resp.Source, resp.Body)
		}
		if resp.StoredAt.IsZero() {
			t.Fatalf("cached answer should carry StoredAt")
		}
	}
	if got := n.count(testOrigin + "/app.css"); got != before {
		t.Fatalf("network calls grew from %d to %d", before, got)
	}

	// fragments do not change identity
	if resp, _ := c.Fetch(ctx, get(t, "/app.css#top")); resp == nil || resp.Source != SourceCache {
		t.Fatalf("fragment request should hit the cache")
	}
}

func TestFetch_MissStoresBasic200(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	n.serve(testOrigin+"/logo.png", "png")
	c := newTestController(t, nil, n, nil)
	register(t, c)

	resp, err := c.Fetch(ctx, get(t, "/logo.png"))
	if err != nil || resp.Source != SourceNetwork {
		t.Fatalf("first fetch: src=%v err=%v", resp.Source, err)
	}
	mustImpl(t, c).settle()

	resp, err = c.Fetch(ctx, get(t, "/logo.png"))
	if err != nil || resp.Source != SourceCache || string(resp.Body) != "png" {
		t.Fatalf("second fetch: src=%v err=%v", resp.Source, err)
	}
	if got := n.count(testOrigin + "/logo.png"); got != 1 {
		t.Fatalf("network calls=%d want 1", got)
	}
}

// Later 200 responses overwrite; everything else never writes.
func TestFetch_AtMostOneEntryPerIdentity(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	c := newTestController(t, store, n, nil)
	register(t, c)
	impl := mustImpl(t, c)
	cache, _ := store.Open(ctx, "v2")

	cases := []struct {
		name  string
		url   string
		mut   func(*Response)
		store bool
	}{
		{"ok", "/a.js", nil, true},
		{"not found", "/b.js", func(r *Response) { r.Status = http.StatusNotFound }, false},
		{"partial", "/c.js", func(r *Response) { r.Status = http.StatusPartialContent }, false},
		{"redirected", "/d.js", func(r *Response) { r.Redirected = true }, false},
		{"cors", "/e.js", func(r *Response) { r.Type = TypeCORS }, false},
		{"vary star", "/f.js", func(r *Response) { r.Header.Set("Vary", "*") }, false},
	}
	for _, tc := range cases {
		var muts []func(*Response)
		if tc.mut != nil {
			muts = append(muts, tc.mut)
		}
		n.serve(testOrigin+tc.url, tc.name, muts...)
		if _, err := c.Fetch(ctx, get(t, tc.url)); err != nil {
			t.Fatalf("%s: Fetch: %v", tc.name, err)
		}
		impl.settle()
		_, ok, _ := cache.Match(ctx, "GET "+testOrigin+tc.url)
		if ok != tc.store {
			t.Fatalf("%s: stored=%v want %v", tc.name, ok, tc.store)
		}
	}

	// direct overwrite keeps one entry
	if err := cache.Put(ctx, "GET "+testOrigin+"/a.js", cachestore.Record{Status: 200, Body: []byte("new")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	keys, _ := cache.Keys(ctx)
	count := 0
	for _, k := range keys {
		if k == "GET "+testOrigin+"/a.js" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("entries for /a.js=%d want 1", count)
	}
}

func TestFetch_OpaqueNotCached(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	cdn := "https://cdn.example/lib.js"
	n.serve(cdn, "lib", func(r *Response) { r.Type = TypeOpaque })
	store := cachestore.New(cachestore.Options{})
	c := newTestController(t, store, n, nil)
	register(t, c)
	cache, _ := store.Open(ctx, "v2")
	before, _ := cache.Keys(ctx)

	req := get(t, cdn)
	req.Mode = ModeNoCORS
	resp, err := c.Fetch(ctx, req)
	if err != nil || resp.Type != TypeOpaque || string(resp.Body) != "lib" {
		t.Fatalf("opaque fetch: resp=%+v err=%v", resp, err)
	}
	mustImpl(t, c).settle()
	after, _ := cache.Keys(ctx)
	if !slices.Equal(before, after) {
		t.Fatalf("cache changed: %v -> %v", before, after)
	}
}

func TestFetch_NonGETBypassesCache(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, nil)
	register(t, c)

	before := n.count(testOrigin + "/app.css")
	req, _ := NewRequest(http.MethodPost, "/app.css")
	resp, err := c.Fetch(ctx, req)
	if err != nil || resp.Source != SourceNetwork {
		t.Fatalf("POST: src=%v err=%v", resp.Source, err)
	}
	if n.count(testOrigin+"/app.css") != before+1 {
		t.Fatalf("POST should reach the network")
	}
}

// failingPutStore hands out caches whose writes fail once fail is set.
type failingPutStore struct {
	cachestore.CacheStore
	fail atomic.Bool
}

func (s *failingPutStore) Open(ctx context.Context, gen string) (cachestore.Cache, error) {
	cc, err := s.CacheStore.Open(ctx, gen)
	if err != nil {
		return nil, err
	}
	return &failingPutCache{Cache: cc, fail: &s.fail}, nil
}

type failingPutCache struct {
	cachestore.Cache
	fail *atomic.Bool
}

func (c *failingPutCache) Put(ctx context.Context, id string, rec cachestore.Record) error {
	if c.fail.Load() {
		return errors.New("disk full")
	}
	return c.Cache.Put(ctx, id, rec)
}

// A cache write that fails is reported and the network answer still delivered.
func TestFetch_CacheWriteFailure(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	n.serve(testOrigin+"/logo.png", "png")
	inner := cachestore.New(cachestore.Options{})
	store := &failingPutStore{CacheStore: inner}
	h := &recHooks{}
	c := newTestController(t, store, n, func(o *Options) { o.Hooks = h })
	register(t, c)
	v2, _ := inner.Open(ctx, "v2")
	before, _ := v2.Keys(ctx)

	store.fail.Store(true)
	resp, err := c.Fetch(ctx, get(t, "/logo.png"))
	if err != nil || resp.Source != SourceNetwork || string(resp.Body) != "png" {
		t.Fatalf("Fetch: resp=%+v err=%v", resp, err)
	}
	mustImpl(t, c).settle()

	h.mu.Lock()
	writeErr := h.writeErr
	h.mu.Unlock()
	if writeErr != 1 {
		t.Fatalf("CacheWriteFailed calls=%d want 1", writeErr)
	}
	after, _ := v2.Keys(ctx)
	if !slices.Equal(before, after) {
		t.Fatalf("cache changed: %v -> %v", before, after)
	}
	if _, ok, _ := v2.Match(ctx, "GET "+testOrigin+"/logo.png"); ok {
		t.Fatalf("failed write must not be visible")
	}
}

func TestFetch_Vary(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	n.serve(testOrigin+"/feed", "feed", func(r *Response) { r.Header.Set("Vary", "Accept-Language") })
	c := newTestController(t, nil, n, nil)
	register(t, c)

	en := get(t, "/feed")
	en.Header.Set("Accept-Language", "en")
	if _, err := c.Fetch(ctx, en); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	mustImpl(t, c).settle()

	if resp, _ := c.Fetch(ctx, en); resp.Source != SourceCache {
		t.Fatalf("same Accept-Language should hit, got %v", resp.Source)
	}
	de := get(t, "/feed")
	de.Header.Set("Accept-Language", "de")
	if resp, _ := c.Fetch(ctx, de); resp.Source != SourceNetwork {
		t.Fatalf("different Accept-Language should miss, got %v", resp.Source)
	}
}

// A failed navigation gets the cached fallback document.
func TestFetch_NavigationFallback(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, nil)
	register(t, c)
	n.offline.Store(true)

	resp, err := c.Fetch(ctx, navigate(t, "/reports/42"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Source != SourceFallback || string(resp.Body) != "<html>app</html>" {
		t.Fatalf("src=%v body=%q", resp.Source, resp.Body)
	}

	// sub-resources propagate the failure
	_, err = c.Fetch(ctx, get(t, "/data.json"))
	var nerr *NetworkError
	if !errors.As(err, &nerr) || nerr.Navigation {
		t.Fatalf("err=%v want non-navigation NetworkError", err)
	}
}

func TestFetch_FallbackMissing(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, func(o *Options) { o.Fallback = "/offline.html" })
	register(t, c)
	n.offline.Store(true)

	_, err := c.Fetch(ctx, navigate(t, "/reports/42"))
	if !errors.Is(err, ErrNoFallback) {
		t.Fatalf("err=%v want ErrNoFallback", err)
	}
}

func TestFetch_BeforeActivationPassesThrough(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	c := newTestController(t, store, n, nil)

	resp, err := c.Fetch(ctx, get(t, "/app.css"))
	if err != nil || resp.Source != SourceNetwork {
		t.Fatalf("src=%v err=%v", resp.Source, err)
	}
	mustImpl(t, c).settle()
	if keys, _ := store.Keys(ctx); len(keys) != 0 {
		t.Fatalf("uncontrolled fetch must not write, keys=%v", keys)
	}
}

func TestFetch_Disabled(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, func(o *Options) { o.Disabled = true })
	register(t, c)

	if resp, _ := c.Fetch(ctx, get(t, "/app.css")); resp.Source != SourceNetwork {
		t.Fatalf("disabled controller answered from %v", resp.Source)
	}
}

// A restart with the same generation re-claims without fetching the manifest.
func TestRegister_RestartReclaims(t *testing.T) {
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	register(t, newTestController(t, store, n, nil))
	calls := n.count(testOrigin + "/index.html")

	h := &recHooks{}
	again := newTestController(t, store, n, func(o *Options) { o.Hooks = h })
	register(t, again)
	if n.count(testOrigin+"/index.html") != calls {
		t.Fatalf("restart re-fetched the manifest")
	}
	if !slices.Equal(h.claimed, []string{"v2"}) {
		t.Fatalf("claimed=%v", h.claimed)
	}
}

func TestRegister_UpdateAvailable(t *testing.T) {
	n := newFakeNet()
	serveManifest(n)
	store := cachestore.New(cachestore.Options{})
	register(t, newTestController(t, store, n, func(o *Options) { o.Generation = "v1" }))

	h := &recHooks{}
	register(t, newTestController(t, store, n, func(o *Options) { o.Hooks = h }))
	if len(h.updates) != 1 || h.updates[0] != [2]string{"v1", "v2"} {
		t.Fatalf("updates=%v", h.updates)
	}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, nil)

	if err := c.Dispatch(ctx, Event{Kind: EventInstall}).Wait(ctx); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := c.Dispatch(ctx, Event{Kind: EventActivate}).Wait(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}
	done := c.Dispatch(ctx, Event{Kind: EventFetch, Request: get(t, "/index.html")})
	<-done.Done()
	if done.Err() != nil || done.Response() == nil || done.Response().Source != SourceCache {
		t.Fatalf("fetch completion: resp=%+v err=%v", done.Response(), done.Err())
	}

	err := c.Dispatch(ctx, Event{Kind: EventKind(99)}).Wait(ctx)
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("unknown kind: err=%v", err)
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	c := newTestController(t, nil, newFakeNet(), func(o *Options) { o.Hooks = h })

	// default tag is bound; unknown tags are no-ops
	if err := c.Sync(ctx, DefaultSyncTag); err != nil {
		t.Fatalf("default tag: %v", err)
	}
	if err := c.Sync(ctx, "nobody"); err != nil {
		t.Fatalf("unbound tag: %v", err)
	}

	var runs atomic.Int32
	fail := true
	c.OnSync("outbox", func(context.Context) error {
		runs.Add(1)
		if fail {
			return errors.New("still offline")
		}
		return nil
	})
	c.RequestSync("outbox")
	c.RequestSync("outbox")

	if err := c.Online(ctx); err == nil {
		t.Fatalf("first Online should report the failed body")
	}
	fail = false
	if err := c.Online(ctx); err != nil {
		t.Fatalf("second Online: %v", err)
	}
	if err := c.Online(ctx); err != nil {
		t.Fatalf("third Online: %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs=%d want 2 (failed once, retried once)", got)
	}
}

// A body still running when Online stops waiting is never started twice.
func TestOnline_SlowTaskRunsOnce(t *testing.T) {
	ctx := context.Background()
	h := &recHooks{}
	c := newTestController(t, nil, newFakeNet(), func(o *Options) { o.Hooks = h })

	release := make(chan struct{})
	var runs, active, maxActive atomic.Int32
	var fail atomic.Bool
	fail.Store(true)
	c.OnSync("outbox", func(context.Context) error {
		runs.Add(1)
		if n := active.Add(1); n > maxActive.Load() {
			maxActive.Store(n)
		}
		defer active.Add(-1)
		<-release
		if fail.Load() {
			return errors.New("still offline")
		}
		return nil
	})
	c.RequestSync("outbox")

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := c.Online(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first Online: err=%v want deadline exceeded", err)
	}
	// body still running: nothing to start
	if err := c.Online(ctx); err != nil {
		t.Fatalf("second Online: %v", err)
	}
	c.RequestSync("outbox")
	if err := c.Online(ctx); err != nil {
		t.Fatalf("third Online: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs=%d want 1 while the first body is running", got)
	}

	// the body fails after the wait ended; the tag comes back once
	close(release)
	mustImpl(t, c).settle()
	fail.Store(false)
	if err := c.Online(ctx); err != nil {
		t.Fatalf("retry Online: %v", err)
	}
	if err := c.Online(ctx); err != nil {
		t.Fatalf("idle Online: %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("runs=%d want 2", got)
	}
	if got := maxActive.Load(); got != 1 {
		t.Fatalf("max concurrent bodies=%d want 1", got)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	n := newFakeNet()
	serveManifest(n)
	c := newTestController(t, nil, n, nil)
	register(t, c)

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := c.Fetch(ctx, get(t, "/app.css")); !errors.Is(err, ErrClosed) {
		t.Fatalf("Fetch after Close: %v", err)
	}
	if err := c.Dispatch(ctx, Event{Kind: EventInstall}).Wait(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Dispatch after Close: %v", err)
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
