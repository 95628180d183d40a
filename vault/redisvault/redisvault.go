// Package redisvault stores vault values in Redis.
package redisvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goVerify/vault"
	"github.com/redis/go-redis/v9"
)

// compareAndSwapLua replaces KEYS[1] atomically.
//
// ARGV[1] = "1" when an existing value is expected, "0" when the key must be absent
// ARGV[2] = expected value
// ARGV[3] = "1" to delete instead of writing
// ARGV[4] = new value
var compareAndSwapLua = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '1' then
  if not cur or cur ~= ARGV[2] then
    return 0
  end
elseif cur then
  return 0
end

if ARGV[3] == '1' then
  redis.call('DEL', KEYS[1])
else
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl > 0 then
    redis.call('SET', KEYS[1], ARGV[4], 'PX', ttl)
  else
    redis.call('SET', KEYS[1], ARGV[4])
  end
end
return 1
`)

// Vault is a Redis-backed vault.Vault and vault.Swapper.
type Vault struct {
	redis  redis.UniversalClient
	prefix string
}

// New returns a Vault that namespaces every key under prefix (default "gv").
func New(redisClient redis.UniversalClient, prefix string) *Vault {
	if prefix == "" {
		prefix = "gv"
	}
	return &Vault{redis: redisClient, prefix: prefix}
}

func (v *Vault) key(k string) string {
	return v.prefix + ":" + k
}

func (v *Vault) Store(ctx context.Context, key string, value []byte) error {
	if err := v.redis.Set(ctx, v.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", vault.ErrBackend, err)
	}
	return nil
}

func (v *Vault) Retrieve(ctx context.Context, key string) ([]byte, error) {
	data, err := v.redis.Get(ctx, v.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, vault.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", vault.ErrBackend, err)
	}
	return data, nil
}

func (v *Vault) Remove(ctx context.Context, key string) (bool, error) {
	n, err := v.redis.Del(ctx, v.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", vault.ErrBackend, err)
	}
	return n > 0, nil
}

func (v *Vault) CompareAndSwap(ctx context.Context, key string, old, next []byte) (bool, error) {
	expect, del := "0", "0"
	if old != nil {
		expect = "1"
	}
	if next == nil {
		del = "1"
	}
	n, err := compareAndSwapLua.Run(ctx, v.redis, []string{v.key(key)}, expect, old, del, next).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", vault.ErrBackend, err)
	}
	return n == 1, nil
}

var _ vault.Swapper = (*Vault)(nil)
