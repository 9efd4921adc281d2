package redisdb

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	applog "docqa/internal/platform/log"
)

// DocCache 父块字节缓存。key 格式 parent_doc:<parent_id>，每次写入都带 TTL。
// 后端任何错误都表现为 miss 或静默失败：缓存整体故障时读路径退化为全部回源。
type DocCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewDocCache 创建父块缓存
func NewDocCache(rdb *redis.Client, ttlSeconds int) *DocCache {
	ttl := 24 * time.Hour
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &DocCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "parent_doc:",
	}
}

// Get 读取缓存。miss 和后端错误都返回 (nil, false)。
func (c *DocCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			applog.Warn("[DocCache] Get failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Set 写入缓存（带 TTL），失败仅记录日志。
func (c *DocCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.redis.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		applog.Warn("[DocCache] Set failed", "key", key, "error", err)
	}
}

// Delete 删除缓存条目，失败仅记录日志。
func (c *DocCache) Delete(ctx context.Context, key string) {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		applog.Warn("[DocCache] Delete failed", "key", key, "error", err)
	}
}
