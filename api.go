package offcache

import (
	"context"

	"github.com/unkn0wn-root/offcache/cachestore"
)

// SyncFunc is the body of a deferred task. It runs once connectivity returns.
type SyncFunc func(ctx context.Context) error

// State is the lifecycle state of the controller's generation.
type State int32

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Controller intercepts a page's requests and keeps one cache generation
// coherent: cache-first lookups, network fallback with opportunistic
// population, and generation-level cleanup on activation.
type Controller interface {
	// Generation is the current generation identifier.
	Generation() string
	State() State

	// Register is one registration attempt: install (unless the store already
	// records this generation as active), then activate immediately. Until
	// then the previously active generation, if any, answers fetches.
	Register(ctx context.Context) error
	// Install fetches the whole manifest and stores it as one batch.
	Install(ctx context.Context) error
	// Activate deletes every other generation and claims open pages.
	Activate(ctx context.Context) error

	// Fetch answers one request with a cached, network or fallback response.
	Fetch(ctx context.Context, req *Request) (*Response, error)

	// Dispatch runs the handler registered for ev.Kind and returns its
	// completion signal.
	Dispatch(ctx context.Context, ev Event) *Completion

	// OnSync binds a task body to tag, replacing any previous body.
	OnSync(tag string, fn SyncFunc)
	// RequestSync registers interest in tag; it runs on the next Online.
	RequestSync(tag string)
	// Online signals that connectivity returned. Pending tags are synced;
	// failed ones stay pending. A tag still running is not started again.
	Online(ctx context.Context) error
	// Sync runs the body bound to tag (no-op for unbound tags).
	Sync(ctx context.Context, tag string) error

	// Close waits for outstanding events and background cache writes, then
	// closes the store.
	Close(ctx context.Context) error
}

// Options configure a Controller. Only Generation is required.
type Options struct {
	// Generation names the cache for this deployment, e.g. "evenup-v1.0.0".
	// It MUST change whenever Manifest changes.
	Generation string
	Manifest   Manifest
	// Fallback is the document served to navigations that fail at the network
	// (normally the app entry point). Empty disables the fallback.
	Fallback string
	// Origin is the app's own origin; relative URLs resolve against it and
	// responses from it are same-origin. Required unless Fetcher is set.
	Origin string

	Namespace          string                // store namespace when Store is nil; "" => "offcache"
	Store              cachestore.CacheStore // nil => in-memory cachestore
	Fetcher            Fetcher               // nil => HTTPFetcher{Origin}
	Logger             Logger                // nil => NopLogger
	Hooks              Hooks                 // nil => NopHooks
	InstallConcurrency int                   // 0 => 6
	SyncTasks          map[string]SyncFunc   // bound at construction, after DefaultSyncTag
	Disabled           bool                  // default false; true => every request goes to the network
}

// New validates opts and wires the event handlers once.
func New(opts Options) (Controller, error) {
	return newController(opts)
}
