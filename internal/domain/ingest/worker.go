package ingest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	applog "docqa/internal/platform/log"
)

// WorkerConfig 消费端配置
type WorkerConfig struct {
	// Consumers 并发消费协程数
	Consumers int `json:"consumers"`
	// DequeueTimeoutSeconds 阻塞出队超时
	DequeueTimeoutSeconds int `json:"dequeue_timeout_seconds"`
	// PromoteIntervalSeconds 延迟任务晋升检查间隔
	PromoteIntervalSeconds int `json:"promote_interval_seconds"`
	// LockedRequeueSeconds 撞锁后重新入队的延迟
	LockedRequeueSeconds int `json:"locked_requeue_seconds"`
	// BackoffBaseSeconds 重试退避基数
	BackoffBaseSeconds int `json:"backoff_base_seconds"`
	// BackoffCapSeconds 退避上限
	BackoffCapSeconds int `json:"backoff_cap_seconds"`
}

// DefaultWorkerConfig 默认消费端配置
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Consumers:              4,
		DequeueTimeoutSeconds:  5,
		PromoteIntervalSeconds: 10,
		LockedRequeueSeconds:   30,
		BackoffBaseSeconds:     5,
		BackoffCapSeconds:      600,
	}
}

// Worker 摄取消费端：N 个消费协程从队列拉任务交给 Processor，
// 外加一个晋升协程把到期的延迟任务搬回就绪队列。
type Worker struct {
	queue     TaskQueue
	processor *Processor
	tracker   TrackingStore
	cfg       WorkerConfig
	wg        sync.WaitGroup
}

// NewWorker 创建摄取消费端
func NewWorker(queue TaskQueue, processor *Processor, tracker TrackingStore, cfg WorkerConfig) *Worker {
	if cfg.Consumers <= 0 {
		cfg.Consumers = DefaultWorkerConfig().Consumers
	}
	if cfg.DequeueTimeoutSeconds <= 0 {
		cfg.DequeueTimeoutSeconds = DefaultWorkerConfig().DequeueTimeoutSeconds
	}
	if cfg.PromoteIntervalSeconds <= 0 {
		cfg.PromoteIntervalSeconds = DefaultWorkerConfig().PromoteIntervalSeconds
	}
	if cfg.LockedRequeueSeconds <= 0 {
		cfg.LockedRequeueSeconds = DefaultWorkerConfig().LockedRequeueSeconds
	}
	if cfg.BackoffBaseSeconds <= 0 {
		cfg.BackoffBaseSeconds = DefaultWorkerConfig().BackoffBaseSeconds
	}
	if cfg.BackoffCapSeconds <= 0 {
		cfg.BackoffCapSeconds = DefaultWorkerConfig().BackoffCapSeconds
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		tracker:   tracker,
		cfg:       cfg,
	}
}

// Run 启动消费和晋升协程，阻塞到 ctx 取消且全部协程退出。
func (w *Worker) Run(ctx context.Context) {
	applog.Info("[Ingest] Worker starting", "consumers", w.cfg.Consumers)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.cfg.Consumers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.consumeLoop(ctx, id)
		}(i)
	}

	w.wg.Wait()
	applog.Info("[Ingest] Worker stopped")
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(w.cfg.PromoteIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.queue.PromoteDue(ctx)
			if err != nil {
				applog.Warn("[Ingest] Failed to promote delayed tasks", "error", err)
				continue
			}
			if n > 0 {
				applog.Info("[Ingest] Delayed tasks promoted", "count", n)
			}
		}
	}
}

func (w *Worker) consumeLoop(ctx context.Context, id int) {
	timeout := time.Duration(w.cfg.DequeueTimeoutSeconds) * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			applog.Warn("[Ingest] Dequeue failed", "consumer", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.handle(ctx, task)
	}
}

// handle 执行任务并落实状态迁移。
// 撞锁：延迟重排，不计失败次数。可重试错误：RETRY_n + 退避重排，
// 超过上限转 FAILED。其他错误：直接 FAILED。
func (w *Worker) handle(ctx context.Context, task *TaskMessage) {
	err := w.processor.Process(ctx, task)
	if err == nil {
		return
	}

	if errors.Is(err, ErrFileLocked) {
		applog.Info("[Ingest] File locked, requeueing", "file", task.Filename)
		delay := time.Duration(w.cfg.LockedRequeueSeconds) * time.Second
		if qErr := w.queue.EnqueueDelayed(ctx, *task, delay); qErr != nil {
			applog.Error("[Ingest] Failed to requeue locked task", "file", task.Filename, "error", qErr)
		}
		return
	}

	if IsRetryable(err) && task.Attempt < MaxRetries {
		next := task.Attempt + 1
		delay := w.backoff(next)
		applog.Warn("[Ingest] Task failed, scheduling retry",
			"file", task.Filename, "retry", next, "delay", delay, "error", err)

		if uErr := w.tracker.UpdateStatus(ctx, task.Filename, RetryStatus(next), err.Error()); uErr != nil {
			applog.Error("[Ingest] Failed to record retry status", "file", task.Filename, "error", uErr)
		}

		retryTask := *task
		retryTask.Attempt = next
		retryTask.EnqueuedAt = time.Now()
		if qErr := w.queue.EnqueueDelayed(ctx, retryTask, delay); qErr != nil {
			applog.Error("[Ingest] Failed to schedule retry", "file", task.Filename, "error", qErr)
		}
		return
	}

	applog.Error("[Ingest] Task failed permanently",
		"file", task.Filename, "attempts", task.Attempt, "error", err)
	if uErr := w.tracker.UpdateStatus(ctx, task.Filename, StatusFailed, err.Error()); uErr != nil {
		applog.Error("[Ingest] Failed to record failure", "file", task.Filename, "error", uErr)
	}
}

// backoff 第 n 次重试的延迟：base * 2^(n-1)，封顶后加 ±20% 抖动。
func (w *Worker) backoff(n int) time.Duration {
	base := float64(w.cfg.BackoffBaseSeconds)
	secs := base
	for i := 1; i < n; i++ {
		secs *= 2
		if secs >= float64(w.cfg.BackoffCapSeconds) {
			secs = float64(w.cfg.BackoffCapSeconds)
			break
		}
	}
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(secs * jitter * float64(time.Second))
}
