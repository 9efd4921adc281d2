package ingest

import (
	"context"
	"time"
)

// TaskMessage 入库任务消息。Attempt 为已失败次数（0 = 首次执行）。
type TaskMessage struct {
	Filename   string    `json:"filename"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskQueue 任务队列接口（Redis list + 延迟集合实现）。
type TaskQueue interface {
	// Enqueue 立即入队
	Enqueue(ctx context.Context, msg TaskMessage) error
	// EnqueueDelayed 延迟入队（退避重试用）
	EnqueueDelayed(ctx context.Context, msg TaskMessage, delay time.Duration) error
	// Dequeue 阻塞出队；超时无任务返回 (nil, nil)
	Dequeue(ctx context.Context, timeout time.Duration) (*TaskMessage, error)
	// PromoteDue 将到期的延迟任务搬进就绪队列，返回搬运数量
	PromoteDue(ctx context.Context) (int, error)
}

// FileLock 单文件互斥租约，防止同名文件被并发处理。
type FileLock interface {
	Acquire(ctx context.Context, filename string) (bool, error)
	Release(ctx context.Context, filename string) error
}
