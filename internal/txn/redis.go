package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/khill1269/servalsheets-sub001/internal/clock"
)

// DefaultRedisPrefix namespaces transaction keys.
const DefaultRedisPrefix = "servalguard:txn:"

// RedisRegistry stores entries as JSON values in Redis, shared by every
// process pointing at the same server.
//
// Keys carry a Redis TTL of the entry's remaining lifetime plus Retain, so
// an expired entry is still observed (and reported as expired) for a while
// before Redis drops it.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	clock  clock.Clock

	// Retain is how long an expired entry stays observable.
	Retain time.Duration
}

// NewRedisRegistry creates a registry on client. An empty prefix means
// DefaultRedisPrefix.
func NewRedisRegistry(client redis.UniversalClient, prefix string, clk clock.Clock) *RedisRegistry {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRegistry{
		client: client,
		prefix: prefix,
		clock:  clock.OrSystem(clk),
		Retain: time.Hour,
	}
}

func (r *RedisRegistry) key(id string) string {
	return r.prefix + id
}

func (r *RedisRegistry) expiry(tx *Transaction) time.Duration {
	d := tx.ExpiresAt.Sub(r.clock.Now()) + r.Retain
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Get implements Registry.
func (r *RedisRegistry) Get(ctx context.Context, id string) (*Transaction, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", id, err)
	}
	return &tx, nil
}

// Create implements Registry with SET NX.
func (r *RedisRegistry) Create(ctx context.Context, tx *Transaction) (bool, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return false, fmt.Errorf("redis encode %s: %w", tx.ID, err)
	}
	ok, err := r.client.SetNX(ctx, r.key(tx.ID), data, r.expiry(tx)).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", tx.ID, err)
	}
	return ok, nil
}

// Update implements Registry with SET XX.
func (r *RedisRegistry) Update(ctx context.Context, tx *Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("redis encode %s: %w", tx.ID, err)
	}
	ok, err := r.client.SetXX(ctx, r.key(tx.ID), data, r.expiry(tx)).Result()
	if err != nil {
		return fmt.Errorf("redis setxx %s: %w", tx.ID, err)
	}
	if !ok {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrNotFound)
	}
	return nil
}

// Delete implements Registry.
func (r *RedisRegistry) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// DeleteExpired implements Registry by scanning the key prefix.
func (r *RedisRegistry) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("redis get %s: %w", key, err)
		}
		var tx Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return n, fmt.Errorf("redis decode %s: %w", key, err)
		}
		if !tx.Expired(now) {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return n, fmt.Errorf("redis del %s: %w", key, err)
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}
