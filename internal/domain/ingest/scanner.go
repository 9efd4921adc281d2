package ingest

import (
	"context"
	"time"

	"docqa/internal/domain/retrieval"
	applog "docqa/internal/platform/log"
)

// ScanResult 扫描结果统计
type ScanResult struct {
	Discovered  int `json:"discovered"`
	Enqueued    int `json:"enqueued"`
	Reset       int `json:"reset"` // FAILED 重置重试数
	Skipped     int `json:"skipped"`
	Unsupported int `json:"unsupported"`
}

// Scanner 扫描原始文件存储，为新文件建立追踪记录并入队。
// 已有追踪记录的文件跳过，FAILED 除外：重置为 PENDING 并重新入队；
// 其他状态的重新摄取走删除再扫描。
type Scanner struct {
	raw      retrieval.ObjectStore
	tracker  TrackingStore
	queue    TaskQueue
	registry *ParserRegistry
}

// NewScanner 创建文件扫描器
func NewScanner(raw retrieval.ObjectStore, tracker TrackingStore, queue TaskQueue, registry *ParserRegistry) *Scanner {
	return &Scanner{
		raw:      raw,
		tracker:  tracker,
		queue:    queue,
		registry: registry,
	}
}

// Scan 执行一次全量扫描
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	filenames, err := s.raw.List(ctx, "")
	if err != nil {
		return nil, err
	}

	result := &ScanResult{Discovered: len(filenames)}

	for _, name := range filenames {
		if !s.registry.Supported(name) {
			result.Unsupported++
			continue
		}

		created, err := s.tracker.Create(ctx, name)
		if err != nil {
			applog.Error("[Ingest] Failed to create tracking record", "file", name, "error", err)
			continue
		}
		if !created {
			if s.rescanFailed(ctx, name) {
				result.Reset++
				result.Enqueued++
			} else {
				result.Skipped++
			}
			continue
		}

		msg := TaskMessage{Filename: name, Attempt: 0, EnqueuedAt: time.Now()}
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			applog.Error("[Ingest] Failed to enqueue task", "file", name, "error", err)
			// 回滚追踪记录，让下次扫描重新入队
			if dErr := s.tracker.Delete(ctx, name); dErr != nil {
				applog.Error("[Ingest] Failed to roll back tracking record", "file", name, "error", dErr)
			}
			continue
		}
		result.Enqueued++
	}

	applog.Info("[Ingest] Scan completed",
		"discovered", result.Discovered,
		"enqueued", result.Enqueued,
		"reset", result.Reset,
		"skipped", result.Skipped,
		"unsupported", result.Unsupported)
	return result, nil
}

// rescanFailed 对已有追踪记录的文件检查 FAILED 状态：
// 重置为 PENDING 并重新入队（重试计数归零）。非 FAILED 一律不碰。
func (s *Scanner) rescanFailed(ctx context.Context, name string) bool {
	rec, err := s.tracker.Get(ctx, name)
	if err != nil {
		applog.Error("[Ingest] Failed to read tracking record", "file", name, "error", err)
		return false
	}
	if rec == nil || rec.Status != StatusFailed {
		return false
	}

	if err := s.tracker.ResetToPending(ctx, name); err != nil {
		applog.Error("[Ingest] Failed to reset FAILED record", "file", name, "error", err)
		return false
	}

	msg := TaskMessage{Filename: name, Attempt: 0, EnqueuedAt: time.Now()}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		applog.Error("[Ingest] Failed to enqueue reset task", "file", name, "error", err)
		// 恢复 FAILED，下次扫描再试
		if uErr := s.tracker.UpdateStatus(ctx, name, StatusFailed, rec.ErrorMsg); uErr != nil {
			applog.Error("[Ingest] Failed to restore FAILED status", "file", name, "error", uErr)
		}
		return false
	}

	applog.Info("[Ingest] FAILED record reset and requeued", "file", name)
	return true
}
