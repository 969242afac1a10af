package genstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares generation metadata across processes and survives restarts.
//
// Layout (ns = logical namespace, should match the cache store namespace):
//
//	gen:<ns>:names            ZSET  generation -> creation time
//	gen:<ns>:members:<gen>    ZSET  identity   -> first-insertion time
//	gen:<ns>:active           STRING
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	closeClient bool
	now         func() time.Time
}

var _ GenStore = (*Redis)(nil)

// NewRedis creates a redis-backed generation store. The client is closed by
// Close only when closeClient is true.
func NewRedis(client redis.UniversalClient, namespace string, closeClient bool) *Redis {
	return &Redis{rdb: client, ns: namespace, closeClient: closeClient, now: time.Now}
}

func (s *Redis) namesKey() string             { return "gen:" + s.ns + ":names" }
func (s *Redis) membersKey(gen string) string { return "gen:" + s.ns + ":members:" + gen }
func (s *Redis) activeKey() string            { return "gen:" + s.ns + ":active" }
func (s *Redis) score() float64               { return float64(s.now().UnixNano()) }
func (s *Redis) z(member string) redis.Z      { return redis.Z{Score: s.score(), Member: member} }

func (s *Redis) Add(ctx context.Context, gen string) (bool, error) {
	n, err := s.rdb.ZAddNX(ctx, s.namesKey(), s.z(gen)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Redis) Has(ctx context.Context, gen string) (bool, error) {
	err := s.rdb.ZScore(ctx, s.namesKey(), gen).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Redis) List(ctx context.Context) ([]string, error) {
	return s.rdb.ZRange(ctx, s.namesKey(), 0, -1).Result()
}

// Remove drops the name and the member index in one MULTI/EXEC.
func (s *Redis) Remove(ctx context.Context, gen string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, s.namesKey(), gen)
		p.Del(ctx, s.membersKey(gen))
		return nil
	})
	return err
}

func (s *Redis) Track(ctx context.Context, gen, identity string) error {
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddNX(ctx, s.namesKey(), s.z(gen))
		p.ZAddNX(ctx, s.membersKey(gen), s.z(identity))
		return nil
	})
	return err
}

func (s *Redis) Untrack(ctx context.Context, gen, identity string) error {
	return s.rdb.ZRem(ctx, s.membersKey(gen), identity).Err()
}

func (s *Redis) Members(ctx context.Context, gen string) ([]string, error) {
	return s.rdb.ZRange(ctx, s.membersKey(gen), 0, -1).Result()
}

func (s *Redis) Active(ctx context.Context) (string, error) {
	v, err := s.rdb.Get(ctx, s.activeKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Redis) SetActive(ctx context.Context, gen string) error {
	return s.rdb.Set(ctx, s.activeKey(), gen, 0).Err()
}

func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
