package ingest

import (
	"context"
	"testing"
)

// TestScannerEnqueuesNewFiles 新文件建档并入队，不支持的类型跳过
func TestScannerEnqueuesNewFiles(t *testing.T) {
	raw := newFakeRawStore()
	tracker := newFakeTracker()
	queue := newFakeQueue()
	scanner := NewScanner(raw, tracker, queue, NewParserRegistry())

	ctx := context.Background()
	raw.Put(ctx, "manual.pdf", []byte("%PDF"))
	raw.Put(ctx, "notes.md", []byte("# notes"))
	raw.Put(ctx, "photo.png", []byte{0x89})

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if result.Discovered != 3 {
		t.Fatalf("expected 3 discovered, got %d", result.Discovered)
	}
	if result.Enqueued != 2 {
		t.Fatalf("expected 2 enqueued, got %d", result.Enqueued)
	}
	if result.Unsupported != 1 {
		t.Fatalf("expected 1 unsupported, got %d", result.Unsupported)
	}

	if got := tracker.statusOf("manual.pdf"); got != StatusPending {
		t.Fatalf("new file should be PENDING, got %s", got)
	}
	if rec, _ := tracker.Get(ctx, "photo.png"); rec != nil {
		t.Fatal("unsupported file must not be tracked")
	}
	t.Logf("✅ 扫描建档入队正确")
}

// TestScannerIdempotent 重复扫描不重复入队
func TestScannerIdempotent(t *testing.T) {
	raw := newFakeRawStore()
	tracker := newFakeTracker()
	queue := newFakeQueue()
	scanner := NewScanner(raw, tracker, queue, NewParserRegistry())

	ctx := context.Background()
	raw.Put(ctx, "doc.md", []byte("content"))

	if _, err := scanner.Scan(ctx); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	second, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}

	if second.Enqueued != 0 || second.Skipped != 1 {
		t.Fatalf("second scan should skip tracked file: %+v", second)
	}
	if len(queue.ready) != 1 {
		t.Fatalf("expected exactly 1 queued task, got %d", len(queue.ready))
	}
	t.Logf("✅ 重复扫描幂等")
}

// TestScannerCompletedNotRequeued 已完成的文件不会被重新入队
func TestScannerCompletedNotRequeued(t *testing.T) {
	raw := newFakeRawStore()
	tracker := newFakeTracker()
	queue := newFakeQueue()
	scanner := NewScanner(raw, tracker, queue, NewParserRegistry())

	ctx := context.Background()
	raw.Put(ctx, "done.md", []byte("content"))
	tracker.Create(ctx, "done.md")
	tracker.UpdateStatus(ctx, "done.md", StatusCompleted, "")

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if result.Enqueued != 0 {
		t.Fatal("completed file must not be re-enqueued")
	}
	if got := tracker.statusOf("done.md"); got != StatusCompleted {
		t.Fatalf("scan must not reset status, got %s", got)
	}
}

// TestScannerResetsFailedRecord FAILED 记录重新扫描时重置为 PENDING 并重新入队
func TestScannerResetsFailedRecord(t *testing.T) {
	raw := newFakeRawStore()
	tracker := newFakeTracker()
	queue := newFakeQueue()
	scanner := NewScanner(raw, tracker, queue, NewParserRegistry())

	ctx := context.Background()
	raw.Put(ctx, "broken.pdf", []byte("%PDF"))
	tracker.Create(ctx, "broken.pdf")
	tracker.UpdateStatus(ctx, "broken.pdf", StatusFailed, "parse failed after 3 retries")

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if result.Reset != 1 || result.Enqueued != 1 {
		t.Fatalf("FAILED record should be reset and requeued: %+v", result)
	}
	if got := tracker.statusOf("broken.pdf"); got != StatusPending {
		t.Fatalf("FAILED record should be reset to PENDING, got %s", got)
	}
	if len(queue.ready) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(queue.ready))
	}
	if queue.ready[0].Attempt != 0 {
		t.Fatalf("reset task must start with attempt 0, got %d", queue.ready[0].Attempt)
	}
	t.Logf("✅ FAILED 记录重扫重置入队")
}

// TestScannerLeavesActiveRecordsAlone 进行中和重试中的记录不受扫描影响
func TestScannerLeavesActiveRecordsAlone(t *testing.T) {
	raw := newFakeRawStore()
	tracker := newFakeTracker()
	queue := newFakeQueue()
	scanner := NewScanner(raw, tracker, queue, NewParserRegistry())

	ctx := context.Background()
	active := map[string]FileStatus{
		"pending.md":    StatusPending,
		"processing.md": StatusProcessing,
		"retrying.md":   StatusRetry2,
	}
	for name, status := range active {
		raw.Put(ctx, name, []byte("content"))
		tracker.Create(ctx, name)
		tracker.UpdateStatus(ctx, name, status, "")
	}

	result, err := scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if result.Enqueued != 0 || result.Reset != 0 {
		t.Fatalf("active records must not be touched: %+v", result)
	}
	if result.Skipped != 3 {
		t.Fatalf("expected 3 skipped, got %d", result.Skipped)
	}
	for name, status := range active {
		if got := tracker.statusOf(name); got != status {
			t.Fatalf("%s: status changed from %s to %s", name, status, got)
		}
	}
	if len(queue.ready) != 0 {
		t.Fatalf("queue must stay empty, got %d tasks", len(queue.ready))
	}
}
