package ingest

import (
	"bytes"
	"context"
	"fmt"

	"docqa/internal/domain/retrieval"
	applog "docqa/internal/platform/log"
)

// Indexer 入库侧需要的检索引擎能力
type Indexer interface {
	DeleteBySource(ctx context.Context, source string) error
	AddDocuments(ctx context.Context, parents []retrieval.ParentDocument) (int, error)
}

// Processor 单个文件的摄取处理器。
// 流程：抢锁 → PROCESSING → 下载 → 解析 → 切分 → 清旧 → 入库 → COMPLETED。
// 同名文件重复入库先删后加，保证幂等。
type Processor struct {
	lock     FileLock
	tracker  TrackingStore
	raw      retrieval.ObjectStore
	registry *ParserRegistry
	indexer  Indexer
	cfg      *retrieval.Config
}

// NewProcessor 创建摄取处理器。raw 是源文件所在的对象存储。
func NewProcessor(lock FileLock, tracker TrackingStore, raw retrieval.ObjectStore, registry *ParserRegistry, indexer Indexer, cfg *retrieval.Config) *Processor {
	return &Processor{
		lock:     lock,
		tracker:  tracker,
		raw:      raw,
		registry: registry,
		indexer:  indexer,
		cfg:      cfg,
	}
}

// Process 处理一个摄取任务。
// 返回 ErrFileLocked 表示别的 worker 正在处理，调用方应延迟重新入队且不计入重试。
// 返回 RetryableError 表示瞬时故障，可按退避重试；其余错误视为永久失败。
func (p *Processor) Process(ctx context.Context, task *TaskMessage) error {
	acquired, err := p.lock.Acquire(ctx, task.Filename)
	if err != nil {
		return Retryable("acquire lock for %s: %v", task.Filename, err)
	}
	if !acquired {
		return ErrFileLocked
	}
	defer p.lock.Release(context.WithoutCancel(ctx), task.Filename)

	if err := p.tracker.UpdateStatus(ctx, task.Filename, StatusProcessing, ""); err != nil {
		return Retryable("mark processing %s: %v", task.Filename, err)
	}

	applog.Info("[Ingest] Processing file", "file", task.Filename, "attempt", task.Attempt)

	data, err := p.raw.Get(ctx, task.Filename)
	if err != nil {
		return Retryable("download %s: %v", task.Filename, err)
	}
	if data == nil {
		// 可能还在上传中，留给重试
		return Retryable("file %s not found in object storage", task.Filename)
	}

	parser, err := p.registry.Get(task.Filename)
	if err != nil {
		// 不支持的类型不会因为重试变得支持
		return fmt.Errorf("resolve parser: %w", err)
	}

	result, err := parser.Parse(bytes.NewReader(data), task.Filename)
	if err != nil {
		return Retryable("parse %s: %v", task.Filename, err)
	}

	parents := retrieval.SplitParents(result.Content, task.Filename, p.cfg.ParentChunkSize)
	if len(parents) == 0 {
		return Retryable("no content extracted from %s", task.Filename)
	}

	// 先清理同名文件的旧数据，防止重复入库产生重复块
	if err := p.indexer.DeleteBySource(ctx, task.Filename); err != nil {
		return Retryable("purge stale data for %s: %v", task.Filename, err)
	}

	children, err := p.indexer.AddDocuments(ctx, parents)
	if err != nil {
		return Retryable("index %s: %v", task.Filename, err)
	}

	if err := p.tracker.UpdateStatus(ctx, task.Filename, StatusCompleted, ""); err != nil {
		return Retryable("mark completed %s: %v", task.Filename, err)
	}

	applog.Info("[Ingest] File ingested",
		"file", task.Filename,
		"parents", len(parents),
		"children", children,
		"pages", result.Pages)
	return nil
}
