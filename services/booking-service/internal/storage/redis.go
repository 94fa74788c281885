package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

const redisMaxTxRetries = 16

// RedisBackend stores one JSON value per tenant plus a sorted-set index
// ordered by creation. Mutations use WATCH/MULTI and retry when another
// writer got there first.
type RedisBackend struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisBackend(rdb redis.UniversalClient, prefix string) *RedisBackend {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "tenantbook"
	}
	return &RedisBackend{rdb: rdb, prefix: prefix}
}

func (b *RedisBackend) key(id string) string { return b.prefix + ":tenant:" + id }
func (b *RedisBackend) indexKey() string    { return b.prefix + ":tenants" }
func (b *RedisBackend) seqKey() string      { return b.prefix + ":tenants:seq" }

func (b *RedisBackend) List(ctx context.Context) ([]model.Tenant, error) {
	ids, err := b.rdb.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list index: %w", err)
	}
	out := make([]model.Tenant, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.key(id)
	}
	vals, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load tenants: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Index entry without a document: deleted between the two reads.
			continue
		}
		t, err := decodeTenant([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("redis: decode tenant %s: %w", ids[i], err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (model.Tenant, error) {
	raw, err := b.rdb.Get(ctx, b.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Tenant{}, ErrNotFound
	}
	if err != nil {
		return model.Tenant{}, fmt.Errorf("redis: get tenant: %w", err)
	}
	return decodeTenant(raw)
}

func (b *RedisBackend) Insert(ctx context.Context, t model.Tenant) error {
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("redis: encode tenant: %w", err)
	}
	seq, err := b.rdb.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis: next sequence: %w", err)
	}
	key := b.key(t.ID)
	return b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(seq), Member: t.ID})
			return nil
		})
		return err
	}, key)
}

func (b *RedisBackend) Mutate(ctx context.Context, id string, fn MutateFunc) (model.Tenant, error) {
	key := b.key(id)
	var out model.Tenant
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		t, err := decodeTenant(raw)
		if err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		doc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, doc, 0)
			return nil
		})
		if err == nil {
			out = t
		}
		return err
	}

	for i := 0; i < redisMaxTxRetries; i++ {
		err := b.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return model.Tenant{}, err
		}
		return out, nil
	}
	return model.Tenant{}, fmt.Errorf("redis: tenant %s: too much write contention", id)
}

func (b *RedisBackend) Delete(ctx context.Context, id string) (bool, error) {
	var del *redis.IntCmd
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, b.key(id))
		pipe.ZRem(ctx, b.indexKey(), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis: delete tenant: %w", err)
	}
	return del.Val() > 0, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func decodeTenant(raw []byte) (model.Tenant, error) {
	var t model.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Tenant{}, err
	}
	t.Normalize()
	return t, nil
}
