package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bfc-vpn/mfa-core/internal/store"
)

// Each record lives in a Redis hash with two fields: "v" (the JSON
// value) and "ver" (a monotonically increasing version). The compare
// and the write run server-side in one Lua script, so a conditional
// put is atomic across replicas. Same discipline as SETNX, generalized
// to versioned records.
var conditionalPutScript = redis.NewScript(`
local ver = redis.call('HGET', KEYS[1], 'ver')
if ver == false then
	if ARGV[1] == '0' then
		redis.call('HSET', KEYS[1], 'v', ARGV[2], 'ver', 1)
		return 1
	end
	return 0
end
if ver == ARGV[1] then
	redis.call('HSET', KEYS[1], 'v', ARGV[2], 'ver', tonumber(ver) + 1)
	return 1
end
return 0
`)

var putScript = redis.NewScript(`
local ver = redis.call('HGET', KEYS[1], 'ver')
if ver == false then
	ver = 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'ver', tonumber(ver) + 1)
return tonumber(ver) + 1
`)

// Get returns the value and version of a record.
func (c *Client) Get(ctx context.Context, key string) ([]byte, int64, error) {
	fields, err := c.rdb.HMGet(ctx, key, "v", "ver").Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	if fields[0] == nil || fields[1] == nil {
		return nil, 0, store.ErrNotFound
	}

	value, ok := fields[0].(string)
	if !ok {
		return nil, 0, fmt.Errorf("redis get %s: unexpected value type %T", key, fields[0])
	}
	var version int64
	if _, err := fmt.Sscanf(fields[1].(string), "%d", &version); err != nil {
		return nil, 0, fmt.Errorf("redis get %s: bad version: %w", key, err)
	}
	return []byte(value), version, nil
}

// Put writes unconditionally, bumping the version.
func (c *Client) Put(ctx context.Context, key string, value []byte) error {
	if err := putScript.Run(ctx, c.rdb, []string{key}, string(value)).Err(); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	return nil
}

// ConditionalPut writes only if the record is still at expectedVersion.
// expectedVersion 0 creates the record only if it is absent.
func (c *Client) ConditionalPut(ctx context.Context, key string, expectedVersion int64, value []byte) (bool, error) {
	res, err := conditionalPutScript.Run(ctx, c.rdb,
		[]string{key},
		fmt.Sprintf("%d", expectedVersion), string(value),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis conditional put %s: %w", key, err)
	}
	return res == 1, nil
}

// Delete removes a record. Deleting an absent key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}
