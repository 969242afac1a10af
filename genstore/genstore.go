// Package genstore records which cache generations exist, which request
// identities each generation holds and which generation is active.
//
// Response bytes never live here; they sit in a provider. Keeping the index
// separate lets byte stores that cannot enumerate keys (ristretto, bigcache)
// still support whole-generation deletion.
package genstore

import "context"

// GenStore abstracts where generation metadata lives.
// Use Local (default) for a single process, or Redis to share generations across
// processes and survive restarts.
type GenStore interface {
	// Add registers a generation; created is false if it already existed.
	Add(ctx context.Context, gen string) (created bool, err error)
	// Has reports whether gen is registered.
	Has(ctx context.Context, gen string) (bool, error)
	// List returns registered generations in creation order.
	List(ctx context.Context) ([]string, error)
	// Remove forgets gen and its member index. Missing gens are not an error.
	Remove(ctx context.Context, gen string) error

	// Track records identity as a member of gen (idempotent).
	Track(ctx context.Context, gen, identity string) error
	// Untrack drops identity from gen (idempotent).
	Untrack(ctx context.Context, gen, identity string) error
	// Members returns the identities stored in gen in first-insertion order.
	Members(ctx context.Context, gen string) ([]string, error)

	// Active returns the generation that last completed activation ("" if none).
	Active(ctx context.Context) (string, error)
	// SetActive records gen as the active generation.
	SetActive(ctx context.Context, gen string) error

	// Close releases resources (no-op ok).
	Close(context.Context) error
}
