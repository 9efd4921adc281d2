package ingest

import (
	"context"
	"strings"
	"sync"
	"time"

	"docqa/internal/domain/retrieval"
)

// fakeLock 进程内互斥租约
type fakeLock struct {
	mu    sync.Mutex
	held  map[string]bool
	busy  bool // 强制 Acquire 失败
	fails int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, filename string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.busy || l.held[filename] {
		l.fails++
		return false, nil
	}
	l.held[filename] = true
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, filename)
	return nil
}

// fakeTracker 内存状态追踪
type fakeTracker struct {
	mu      sync.Mutex
	records map[string]*FileRecord
	history map[string][]FileStatus
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		records: make(map[string]*FileRecord),
		history: make(map[string][]FileStatus),
	}
}

func (t *fakeTracker) Get(ctx context.Context, filename string) (*FileRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[filename]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (t *fakeTracker) Create(ctx context.Context, filename string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[filename]; ok {
		return false, nil
	}
	now := time.Now()
	t.records[filename] = &FileRecord{Filename: filename, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
	t.history[filename] = append(t.history[filename], StatusPending)
	return true, nil
}

func (t *fakeTracker) UpdateStatus(ctx context.Context, filename string, status FileStatus, errorMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[filename]
	if !ok {
		rec = &FileRecord{Filename: filename, CreatedAt: time.Now()}
		t.records[filename] = rec
	}
	rec.Status = status
	rec.ErrorMsg = TruncateErrorMsg(errorMsg)
	rec.UpdatedAt = time.Now()
	t.history[filename] = append(t.history[filename], status)
	return nil
}

func (t *fakeTracker) ResetToPending(ctx context.Context, filename string) error {
	return t.UpdateStatus(ctx, filename, StatusPending, "")
}

func (t *fakeTracker) Delete(ctx context.Context, filename string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, filename)
	return nil
}

func (t *fakeTracker) List(ctx context.Context) ([]FileRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []FileRecord
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (t *fakeTracker) statusOf(filename string) FileStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[filename]
	if !ok {
		return ""
	}
	return rec.Status
}

// fakeRawStore 内存原始文件存储
type fakeRawStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeRawStore() *fakeRawStore {
	return &fakeRawStore{data: make(map[string][]byte)}
}

func (s *fakeRawStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *fakeRawStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeRawStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *fakeRawStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fakeIndexer 记录入库和删除调用
type fakeIndexer struct {
	mu       sync.Mutex
	added    map[string]int // source → parent count
	deletes  []string
	addErr   error
	addCalls int
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{added: make(map[string]int)}
}

func (x *fakeIndexer) DeleteBySource(ctx context.Context, source string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deletes = append(x.deletes, source)
	x.added[source] = 0
	return nil
}

func (x *fakeIndexer) AddDocuments(ctx context.Context, parents []retrieval.ParentDocument) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.addCalls++
	if x.addErr != nil {
		return 0, x.addErr
	}
	if len(parents) > 0 {
		x.added[parents[0].Metadata.Source] = len(parents)
	}
	return len(parents), nil
}

// fakeQueue 内存任务队列：就绪队列 + 延迟集合
type fakeQueue struct {
	mu      sync.Mutex
	ready   []TaskMessage
	delayed []delayedTask
}

type delayedTask struct {
	msg   TaskMessage
	delay time.Duration
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{}
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg TaskMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, msg)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(ctx context.Context, msg TaskMessage, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedTask{msg: msg, delay: delay})
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*TaskMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return nil, nil
	}
	msg := q.ready[0]
	q.ready = q.ready[1:]
	return &msg, nil
}

func (q *fakeQueue) PromoteDue(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.delayed)
	for _, d := range q.delayed {
		q.ready = append(q.ready, d.msg)
	}
	q.delayed = nil
	return n, nil
}

func (q *fakeQueue) delayedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed)
}
