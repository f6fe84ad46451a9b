package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"accessmap/internal/adapters/observability"
)

// Cache is a JSON read-through cache. Keys are namespaced so several
// deployments can share one redis database.
type Cache struct {
	c      *redis.Client
	prefix string
}

func NewClient(addr, pass string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

func New(c *redis.Client, prefix string) *Cache {
	return &Cache{c: c, prefix: prefix}
}

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, r.prefix+key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		observability.ObserveCache("redis", "error")
		return false, err
	}
	if err := json.Unmarshal(v, dst); err != nil {
		// a stale entry from an older schema is treated as a miss
		observability.ObserveCache("redis", "miss")
		_ = r.c.Del(ctx, r.prefix+key).Err()
		return false, nil
	}
	observability.ObserveCache("redis", "hit")
	return true, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return r.c.Set(ctx, r.prefix+key, b, time.Duration(ttlSec)*time.Second).Err()
}

// Del bumps the generation and drops the value in one MULTI.
func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	_, err := r.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, r.genKey(key))
		p.Del(ctx, r.prefix+key)
		return nil
	})
	return err
}

func (r *Cache) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := r.c.Get(ctx, r.genKey(key)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// KEYS[1] value, KEYS[2] generation; ARGV payload, expected generation, ttl.
var setIfGeneration = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
if cur ~= tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[3])
return 1
`)

func (r *Cache) SetIfGeneration(ctx context.Context, key string, v any, gen int64, ttlSec int) (bool, error) {
	if ttlSec <= 0 {
		return false, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	n, err := setIfGeneration.Run(ctx, r.c, []string{r.prefix + key, r.genKey(key)}, b, gen, ttlSec).Int()
	if err != nil {
		observability.ObserveCache("redis", "error")
		return false, err
	}
	if n == 0 {
		observability.ObserveCache("redis", "stale")
		return false, nil
	}
	observability.ObserveCache("redis", "set")
	return true, nil
}

func (r *Cache) genKey(key string) string { return r.prefix + "gen:" + key }
