package offcache

// Hooks are lightweight callbacks for lifecycle and request events. A page
// collaborator drives its install/update banners from them.
// Implementations MUST be cheap and non-blocking; fetch hooks run on every
// request. Wrap slow sinks with hooks/async.
type Hooks interface {
	// Install finished; entries is the manifest size.
	Installed(generation string, entries int)
	InstallFailed(generation string, err error)
	// A new generation installed while another one was active.
	UpdateAvailable(previous, current string)

	// Activate finished; removed lists deleted stale generations.
	Activated(generation string, removed []string)
	StaleGenerationDeleteFailed(generation string, err error)
	// The controller took over open pages.
	Claimed(generation string)

	// One request was answered. source ∈ {cache, network, fallback}.
	FetchServed(source Source, navigation bool)
	// Opportunistic store of a network response failed (ignored).
	CacheWriteFailed(identity string, err error)
	FallbackServed(identity string)
	// A stored entry was deleted on read. reason ∈ {"corrupt", "decode"}
	SelfHeal(storageKey, reason string)

	SyncCompleted(tag string, err error)
	ConnectivityChanged(online bool)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Installed(string, int)                     {}
func (NopHooks) InstallFailed(string, error)               {}
func (NopHooks) UpdateAvailable(string, string)            {}
func (NopHooks) Activated(string, []string)                {}
func (NopHooks) StaleGenerationDeleteFailed(string, error) {}
func (NopHooks) Claimed(string)                            {}
func (NopHooks) FetchServed(Source, bool)                  {}
func (NopHooks) CacheWriteFailed(string, error)            {}
func (NopHooks) FallbackServed(string)                     {}
func (NopHooks) SelfHeal(string, string)                   {}
func (NopHooks) SyncCompleted(string, error)               {}
func (NopHooks) ConnectivityChanged(bool)                  {}

// MultiHooks fans every event out to each member in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) Installed(g string, n int) {
	for _, h := range m {
		h.Installed(g, n)
	}
}

func (m MultiHooks) InstallFailed(g string, err error) {
	for _, h := range m {
		h.InstallFailed(g, err)
	}
}

func (m MultiHooks) UpdateAvailable(prev, cur string) {
	for _, h := range m {
		h.UpdateAvailable(prev, cur)
	}
}

func (m MultiHooks) Activated(g string, removed []string) {
	for _, h := range m {
		h.Activated(g, removed)
	}
}

func (m MultiHooks) StaleGenerationDeleteFailed(g string, err error) {
	for _, h := range m {
		h.StaleGenerationDeleteFailed(g, err)
	}
}

func (m MultiHooks) Claimed(g string) {
	for _, h := range m {
		h.Claimed(g)
	}
}

func (m MultiHooks) FetchServed(s Source, nav bool) {
	for _, h := range m {
		h.FetchServed(s, nav)
	}
}

func (m MultiHooks) CacheWriteFailed(id string, err error) {
	for _, h := range m {
		h.CacheWriteFailed(id, err)
	}
}

func (m MultiHooks) FallbackServed(id string) {
	for _, h := range m {
		h.FallbackServed(id)
	}
}

func (m MultiHooks) SelfHeal(k, reason string) {
	for _, h := range m {
		h.SelfHeal(k, reason)
	}
}

func (m MultiHooks) SyncCompleted(tag string, err error) {
	for _, h := range m {
		h.SyncCompleted(tag, err)
	}
}

func (m MultiHooks) ConnectivityChanged(online bool) {
	for _, h := range m {
		h.ConnectivityChanged(online)
	}
}
