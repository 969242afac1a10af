package offcache

const (
	defaultInstallConcurrency = 6
	defaultNamespace          = "offcache"

	// DefaultSyncTag is the deferred-sync tag bound to a logging no-op at
	// construction. Replace its body with OnSync.
	DefaultSyncTag = "background-sync"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
