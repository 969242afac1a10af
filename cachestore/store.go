// Package cachestore maps cache generations to stored responses.
//
// A generation is a named cache (one per deployed asset manifest). Inside a
// generation every entry is keyed by request identity. Generation names and
// member identities are indexed in a genstore.GenStore; the encoded records
// live in a provider.Provider under
//
//	entry:<ns>:<generation>:<hash(identity)>
//
// Records are codec-encoded and framed (magic, version, stored-at) before they
// reach the provider. A frame that fails validation is deleted on read and
// reported as a miss.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	c "github.com/unkn0wn-root/offcache/codec"
	gen "github.com/unkn0wn-root/offcache/genstore"
	"github.com/unkn0wn-root/offcache/internal/util"
	"github.com/unkn0wn-root/offcache/internal/wire"
	pr "github.com/unkn0wn-root/offcache/provider"
	"github.com/unkn0wn-root/offcache/provider/memory"
)

var (
	ErrGenerationRequired = errors.New("cachestore: generation name is required")
	ErrIdentityRequired   = errors.New("cachestore: request identity is required")
	ErrRejected           = errors.New("cachestore: provider rejected write")
)

// Record is one stored response. StoredAt comes from the frame, not the payload.
type Record struct {
	URL        string            `json:"url" msgpack:"url"`
	Status     int               `json:"status" msgpack:"status"`
	StatusText string            `json:"status_text,omitempty" msgpack:"status_text,omitempty"`
	Header     http.Header       `json:"header,omitempty" msgpack:"header,omitempty"`
	Body       []byte            `json:"body,omitempty" msgpack:"body,omitempty"`
	Type       string            `json:"type" msgpack:"type"`
	Redirected bool              `json:"redirected,omitempty" msgpack:"redirected,omitempty"`
	Vary       map[string]string `json:"vary,omitempty" msgpack:"vary,omitempty"`

	StoredAt time.Time `json:"-" msgpack:"-" cbor:"-"`
}

// CacheStore is the process-wide generation → cache mapping.
type CacheStore interface {
	// Open returns the named generation, creating it if absent.
	Open(ctx context.Context, generation string) (Cache, error)
	Has(ctx context.Context, generation string) (bool, error)
	// Keys lists generation names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a generation with all its entries.
	// deleted is false when the generation did not exist.
	Delete(ctx context.Context, generation string) (deleted bool, err error)

	// Active/SetActive persist which generation last completed activation.
	Active(ctx context.Context) (string, error)
	SetActive(ctx context.Context, generation string) error

	Close(ctx context.Context) error
}

// Cache is one generation.
type Cache interface {
	Name() string
	Match(ctx context.Context, identity string) (Record, bool, error)
	// Put stores rec under identity, replacing any previous entry.
	Put(ctx context.Context, identity string, rec Record) error
	// Keys lists stored identities in first-insertion order.
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, identity string) (bool, error)
}

// Options configure a Store. All fields are optional.
type Options struct {
	Namespace string          // "" => "offcache"
	Provider  pr.Provider     // nil => memory.New()
	GenStore  gen.GenStore    // nil => genstore.NewLocal()
	Codec     c.Codec[Record] // nil => codec.Msgpack[Record]
	// OnSelfHeal is called after a corrupt or undecodable entry was removed.
	// reason ∈ {"corrupt", "decode"}
	OnSelfHeal func(storageKey, reason string)
	Now        func() time.Time
}

// Store is the default CacheStore.
type Store struct {
	ns       string
	provider pr.Provider
	gens     gen.GenStore
	codec    c.Codec[Record]
	onHeal   func(string, string)
	now      func() time.Time
}

var _ CacheStore = (*Store)(nil)

func New(opts Options) *Store {
	s := &Store{
		ns:       opts.Namespace,
		provider: opts.Provider,
		gens:     opts.GenStore,
		codec:    opts.Codec,
		onHeal:   opts.OnSelfHeal,
		now:      opts.Now,
	}
	if s.ns == "" {
		s.ns = "offcache"
	}
	if s.provider == nil {
		s.provider = memory.New()
	}
	if s.gens == nil {
		s.gens = gen.NewLocal()
	}
	if s.codec == nil {
		s.codec = c.Msgpack[Record]{}
	}
	if s.onHeal == nil {
		s.onHeal = func(string, string) {}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) Open(ctx context.Context, generation string) (Cache, error) {
	if generation == "" {
		return nil, ErrGenerationRequired
	}
	if _, err := s.gens.Add(ctx, generation); err != nil {
		return nil, fmt.Errorf("cachestore: open %q: %w", generation, err)
	}
	return &cache{s: s, name: generation}, nil
}

func (s *Store) Has(ctx context.Context, generation string) (bool, error) {
	return s.gens.Has(ctx, generation)
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.gens.List(ctx)
}

// Delete drops every member's bytes first and only then forgets the
// generation. If any byte delete fails the generation stays listed, so a later
// Delete retries the leftovers.
func (s *Store) Delete(ctx context.Context, generation string) (bool, error) {
	ok, err := s.gens.Has(ctx, generation)
	if err != nil || !ok {
		return false, err
	}
	members, err := s.gens.Members(ctx, generation)
	if err != nil {
		return false, fmt.Errorf("cachestore: members of %q: %w", generation, err)
	}
	var errs []error
	for _, id := range members {
		if err := s.provider.Del(ctx, s.entryKey(generation, id)); err != nil {
			errs = append(errs, fmt.Errorf("delete %q: %w", id, err))
		}
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("cachestore: delete generation %q: %w", generation, errors.Join(errs...))
	}
	if err := s.gens.Remove(ctx, generation); err != nil {
		return false, fmt.Errorf("cachestore: remove generation %q: %w", generation, err)
	}
	return true, nil
}

func (s *Store) Active(ctx context.Context) (string, error) { return s.gens.Active(ctx) }

func (s *Store) SetActive(ctx context.Context, generation string) error {
	if generation == "" {
		return ErrGenerationRequired
	}
	return s.gens.SetActive(ctx, generation)
}

func (s *Store) Close(ctx context.Context) error {
	// gen store first (best effort)
	_ = s.gens.Close(ctx)
	return s.provider.Close(ctx)
}

func (s *Store) entryKey(generation, identity string) string {
	return util.EntryKey("entry:"+s.ns, generation, identity)
}

type cache struct {
	s    *Store
	name string
}

func (g *cache) Name() string { return g.name }

func (g *cache) Match(ctx context.Context, identity string) (Record, bool, error) {
	k := g.s.entryKey(g.name, identity)
	raw, ok, err := g.s.provider.Get(ctx, k)
	if err != nil || !ok {
		return Record{}, false, err
	}
	storedAt, payload, err := wire.DecodeEntry(raw)
	if err != nil {
		g.heal(ctx, k, identity, "corrupt")
		return Record{}, false, nil
	}
	rec, err := g.s.codec.Decode(payload)
	if err != nil {
		g.heal(ctx, k, identity, "decode")
		return Record{}, false, nil
	}
	rec.StoredAt = storedAt
	return rec, true, nil
}

// Put tracks the identity before writing bytes: a member without bytes is a
// harmless miss, bytes without a member could never be deleted.
func (g *cache) Put(ctx context.Context, identity string, rec Record) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	payload, err := g.s.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("cachestore: encode %q: %w", identity, err)
	}
	if err := g.s.gens.Track(ctx, g.name, identity); err != nil {
		return fmt.Errorf("cachestore: track %q: %w", identity, err)
	}
	framed := wire.EncodeEntry(g.s.now(), payload)
	ok, err := g.s.provider.Set(ctx, g.s.entryKey(g.name, identity), framed, int64(len(framed)), 0)
	if err != nil {
		return fmt.Errorf("cachestore: put %q: %w", identity, err)
	}
	if !ok {
		return ErrRejected
	}
	return nil
}

func (g *cache) Keys(ctx context.Context) ([]string, error) {
	return g.s.gens.Members(ctx, g.name)
}

func (g *cache) Delete(ctx context.Context, identity string) (bool, error) {
	k := g.s.entryKey(g.name, identity)
	_, ok, err := g.s.provider.Get(ctx, k)
	if err != nil {
		return false, err
	}
	if err := g.s.provider.Del(ctx, k); err != nil {
		return false, err
	}
	if err := g.s.gens.Untrack(ctx, g.name, identity); err != nil {
		return false, err
	}
	return ok, nil
}

func (g *cache) heal(ctx context.Context, storageKey, identity, reason string) {
	_ = g.s.provider.Del(ctx, storageKey)
	_ = g.s.gens.Untrack(ctx, g.name, identity)
	g.s.onHeal(storageKey, reason)
}
