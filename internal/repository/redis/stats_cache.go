// Package redis holds Redis-backed caches used next to the Postgres ledger.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-interview-backend/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const (
	statsKeyPrefix      = "stats:interviews:"
	generationKeyPrefix = "stats:generation:"
	generationTTL       = 7 * 24 * time.Hour
)

var errGenerationMoved = errors.New("stats generation moved")

// StatsCache keeps one hash per owner scope, one field per window key, so a ledger
// change drops every window of the scope with a single DEL. A per-scope counter
// next to the hash fences writes computed before the last invalidation.
type StatsCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStatsCache(client *goredis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatsCache{client: client, ttl: ttl}
}

func statsKey(scope domain.OwnerScope) string {
	return statsKeyPrefix + string(scope.Role) + ":" + scope.OwnerID
}

func generationKey(scope domain.OwnerScope) string {
	return generationKeyPrefix + string(scope.Role) + ":" + scope.OwnerID
}

func (c *StatsCache) Get(ctx context.Context, scope domain.OwnerScope, windowKey string) (*domain.StatsCacheEntry, bool, error) {
	raw, err := c.client.HGet(ctx, statsKey(scope), windowKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry domain.StatsCacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("corrupt stats snapshot: %w", err)
	}
	return &entry, true, nil
}

func (c *StatsCache) Generation(ctx context.Context, scope domain.OwnerScope) (int64, error) {
	n, err := c.client.Get(ctx, generationKey(scope)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// Set writes the entry inside WATCH/MULTI on the generation key. A moved
// generation, before or during the transaction, drops the write silently.
func (c *StatsCache) Set(ctx context.Context, scope domain.OwnerScope, windowKey string, generation int64, entry *domain.StatsCacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key, genKey := statsKey(scope), generationKey(scope)

	err = c.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != generation {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, windowKey, raw)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errGenerationMoved) || errors.Is(err, goredis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate bumps each scope's generation and drops its snapshots atomically.
func (c *StatsCache) Invalidate(ctx context.Context, scopes ...domain.OwnerScope) error {
	if len(scopes) == 0 {
		return nil
	}
	keys := make([]string, len(scopes))
	pipe := c.client.TxPipeline()
	for i, s := range scopes {
		keys[i] = statsKey(s)
		genKey := generationKey(s)
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
	}
	pipe.Del(ctx, keys...)
	_, err := pipe.Exec(ctx)
	return err
}
