// Package badger keeps cached responses in an embedded badger database so the
// current generation survives process restarts without an external service.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	pr "github.com/unkn0wn-root/offcache/provider"
)

type Provider struct {
	db      *badgerdb.DB
	closeDB bool
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string
	// InMemory runs badger without touching disk (tests, ephemeral edges).
	InMemory bool
	// SyncWrites fsyncs every write.
	SyncWrites bool
}

// Open opens (or creates) a badger database owned by the provider.
func Open(cfg Config) (*Provider, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger provider: dir is required")
	}
	opts := badgerdb.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger provider: open: %w", err)
	}
	return &Provider{db: db, closeDB: true}, nil
}

// NewWithDB wraps a database owned by the caller; Close leaves it open.
func NewWithDB(db *badgerdb.DB) *Provider { return &Provider{db: db} }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := p.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	err := p.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	return p.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (p *Provider) Close(_ context.Context) error {
	if !p.closeDB {
		return nil
	}
	return p.db.Close()
}
