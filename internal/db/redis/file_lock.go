package redisdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	applog "docqa/internal/platform/log"
)

// FileLock 基于 Redis SETNX 的单文件处理租约。
// 防止扫描器重跑时同名文件被两个 worker 并发处理。
type FileLock struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewFileLock 创建文件租约。ttl 要覆盖单文件最长处理耗时。
func NewFileLock(rdb *redis.Client, ttl time.Duration) *FileLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &FileLock{
		redis: rdb,
		ttl:   ttl,
	}
}

// Acquire 获取租约
func (l *FileLock) Acquire(ctx context.Context, filename string) (bool, error) {
	key := lockKey(filename)
	acquired, err := l.redis.SetNX(ctx, key, "locked", l.ttl).Result()
	if err != nil {
		applog.Warn("[FileLock] Failed to acquire lock", "filename", filename, "error", err)
		return false, err
	}

	if acquired {
		applog.Debug("[FileLock] Lock acquired", "filename", filename)
	} else {
		applog.Debug("[FileLock] Lock already held", "filename", filename)
	}
	return acquired, nil
}

// Release 释放租约
func (l *FileLock) Release(ctx context.Context, filename string) error {
	key := lockKey(filename)
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		applog.Warn("[FileLock] Failed to release lock", "filename", filename, "error", err)
		return err
	}
	applog.Debug("[FileLock] Lock released", "filename", filename)
	return nil
}

func lockKey(filename string) string {
	return fmt.Sprintf("ingest:lock:%s", filename)
}
