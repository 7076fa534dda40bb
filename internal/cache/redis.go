package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys when Config.Prefix is empty.
const DefaultRedisPrefix = "keepernest:view:"

const scanBatch = 200

// Redis caches views in a Redis server shared by every API instance.
type Redis struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects and pings the server named by cfg.RedisAddr.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis cache requires an address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.TTL, cfg.Prefix), nil
}

// NewRedisFromClient wraps an existing client without pinging it.
func NewRedisFromClient(rdb *goredis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (r *Redis) generation(ctx context.Context, view string) (uint64, error) {
	gen, err := r.rdb.Get(ctx, genKey(r.prefix, view)).Uint64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation %s: %w", view, err)
	}
	return gen, nil
}

// Get implements Cache. Entries are keyed by generation, so entries written
// under an older generation are unreachable once Invalidate ran.
func (r *Redis) Get(ctx context.Context, view, qualifier string, dst any) (bool, uint64, error) {
	gen, err := r.generation(ctx, view)
	if err != nil {
		return false, 0, err
	}
	raw, err := r.rdb.Get(ctx, entryKey(r.prefix, view, gen, qualifier)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, gen, nil
	}
	if err != nil {
		return false, gen, fmt.Errorf("redis get %s: %w", view, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, gen, fmt.Errorf("decode cached %s: %w", view, err)
	}
	return true, gen, nil
}

// Set implements Cache. A value read under a stale generation is still
// written, but under a key no reader looks up; it expires with the TTL.
func (r *Redis) Set(ctx context.Context, view, qualifier string, gen uint64, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", view, err)
	}
	if err := r.rdb.Set(ctx, entryKey(r.prefix, view, gen, qualifier), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", view, err)
	}
	return nil
}

// Invalidate advances the generation of each view, then scans for its
// entries and deletes them.
func (r *Redis) Invalidate(ctx context.Context, views ...string) error {
	for _, view := range views {
		if err := r.rdb.Incr(ctx, genKey(r.prefix, view)).Err(); err != nil {
			return fmt.Errorf("redis incr generation %s: %w", view, err)
		}
		iter := r.rdb.Scan(ctx, 0, viewPattern(r.prefix, view), scanBatch).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan %s: %w", view, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", view, err)
		}
	}
	return nil
}

// Close releases the client.
func (r *Redis) Close() error { return r.rdb.Close() }
