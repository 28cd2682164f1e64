// Package faststore implements the fast-store adapter of spec §4.2: sorted
// set operations whose key shapes are part of the external interface (§6),
// plus scalar ops for the mappack scorer (§4.8). Grounded on the Redis
// sorted-set idioms in darshilgit-learning-redis's leaderboard example
// (ZAdd/ZRevRank/ZRangeByScore/Pipeline), generalized into a typed adapter
// the ranking engine depends on through an interface rather than a bare
// *redis.Client.
package faststore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the set of sorted-set and scalar operations the ranking and
// mappack engines need. Implementations need not support cross-key
// transactions (§4.2); only per-key atomicity of ReplaceAll is required.
type Store interface {
	// Add sets member's score in the leaderboard at key, creating the key
	// if absent.
	Add(ctx context.Context, key string, member string, score int64) error
	// Del removes the leaderboard at key entirely.
	Del(ctx context.Context, key string) error
	// Count returns the number of members in the leaderboard at key.
	Count(ctx context.Context, key string) (int64, error)
	// Rank returns member's 0-based ordinal rank (ascending by score), or
	// ok=false if member is absent.
	Rank(ctx context.Context, key, member string) (rank int64, ok bool, err error)
	// Score returns member's score, or ok=false if member is absent.
	Score(ctx context.Context, key, member string) (score int64, ok bool, err error)
	// Range returns members in ascending score order over [start, stop]
	// (inclusive, 0-based, -1 meaning "last").
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	// RangeByScore returns up to limit members with lo <= score <= hi, in
	// ascending score order. Equal scores come back in the store's own tie
	// order (RedisStore: lexical by member; Fake: insertion order), the same
	// order Rank uses, so the first member returned at a score holds the
	// lowest ordinal among its ties.
	RangeByScore(ctx context.Context, key string, lo, hi int64, limit int64) ([]string, error)

	// ReplaceAll atomically deletes key and repopulates it with members —
	// the force-rebuild primitive of §4.3 step 3. Observers see either the
	// pre-state or the full post-state.
	ReplaceAll(ctx context.Context, key string, members []Member) error

	// Scalar ops for mappack-derived values (§4.8).
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Persist(ctx context.Context, key string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Expire applies ttl to any key regardless of its underlying type,
	// used by the mappack scorer (§4.8 step 8) to age out an MX-style
	// mappack's sorted-set and set keys alongside its scalars. ttl <= 0
	// clears any existing expiration.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Member is one (player, score) pair used by ReplaceAll.
type Member struct {
	Member string
	Score  int64
}

// RedisStore is the Store backed by a real Redis-compatible server.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// New wraps an existing go-redis client.
func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Add(ctx context.Context, key, member string, score int64) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *RedisStore) Rank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

func (s *RedisStore) Score(ctx context.Context, key, member string) (int64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int64(score), true, nil
}

func (s *RedisStore) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) RangeByScore(ctx context.Context, key string, lo, hi int64, limit int64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    fmtInt(lo),
		Max:    fmtInt(hi),
		Offset: 0,
		Count:  limit,
	}).Result()
}

func (s *RedisStore) ReplaceAll(ctx context.Context, key string, members []Member) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(members) == 0 {
			return nil
		}
		zs := make([]redis.Z, len(members))
		for i, m := range members {
			zs[i] = redis.Z{Score: float64(m.Score), Member: m.Member}
		}
		pipe.ZAdd(ctx, key, zs...)
		return nil
	})
	return err
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Persist(ctx context.Context, key string) error {
	return s.client.Persist(ctx, key).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return s.client.Persist(ctx, key).Err()
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

func fmtInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
