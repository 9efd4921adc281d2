package redisdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docqa/internal/domain/ingest"
	applog "docqa/internal/platform/log"
)

// IngestQueue Redis 任务队列：就绪任务走 list（LPUSH/BRPOP），
// 退避重试的延迟任务进 sorted set，由 PromoteDue 按到期时间搬回就绪队列。
type IngestQueue struct {
	redis      *redis.Client
	readyKey   string
	delayedKey string
}

// NewIngestQueue 创建任务队列
func NewIngestQueue(rdb *redis.Client) *IngestQueue {
	return &IngestQueue{
		redis:      rdb,
		readyKey:   "ingest:queue",
		delayedKey: "ingest:delayed",
	}
}

// Enqueue 立即入队
func (q *IngestQueue) Enqueue(ctx context.Context, msg ingest.TaskMessage) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := q.redis.LPush(ctx, q.readyKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.Filename, err)
	}
	return nil
}

// EnqueueDelayed 延迟入队，score = 到期时间戳
func (q *IngestQueue) EnqueueDelayed(ctx context.Context, msg ingest.TaskMessage, delay time.Duration) error {
	msg.EnqueuedAt = time.Now()
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.redis.ZAdd(ctx, q.delayedKey, redis.Z{Score: due, Member: data}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", msg.Filename, err)
	}
	applog.Debug("[IngestQueue] Task delayed", "filename", msg.Filename, "attempt", msg.Attempt, "delay", delay)
	return nil
}

// Dequeue 阻塞出队。超时内无任务返回 (nil, nil)。
func (q *IngestQueue) Dequeue(ctx context.Context, timeout time.Duration) (*ingest.TaskMessage, error) {
	result, err := q.redis.BRPop(ctx, timeout, q.readyKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP 返回 [key, value]
	if len(result) < 2 {
		return nil, nil
	}

	var msg ingest.TaskMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		applog.Warn("[IngestQueue] Dropping undecodable task", "payload", result[1], "error", err)
		return nil, nil
	}
	return &msg, nil
}

// PromoteDue 将到期的延迟任务搬回就绪队列
func (q *IngestQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.redis.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan delayed tasks: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	promoted := 0
	for _, member := range members {
		// 先从延迟集合移除再入队，避免重复搬运
		removed, err := q.redis.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.redis.LPush(ctx, q.readyKey, member).Err(); err != nil {
			applog.Warn("[IngestQueue] Failed to promote task", "error", err)
			continue
		}
		promoted++
	}

	if promoted > 0 {
		applog.Debug("[IngestQueue] Delayed tasks promoted", "count", promoted)
	}
	return promoted, nil
}
