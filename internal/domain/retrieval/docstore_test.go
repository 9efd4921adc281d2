package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// memObjectStore 内存对象存储桩
type memObjectStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	getHits int
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{data: make(map[string][]byte)}
}

func (s *memObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getHits++
	if s.getErr != nil {
		return nil, s.getErr
	}
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (s *memObjectStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
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

// memCache 内存缓存桩。broken 时所有读都 miss，模拟缓存后端故障。
type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	broken bool
	sets   int
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, false
	}
	v, ok := c.data[key]
	return v, ok
}

func (c *memCache) Set(ctx context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.broken {
		return
	}
	c.data[key] = value
}

func (c *memCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// TestDocStoreBatchGetOrder 结果与 keys 保序对应，缺失 key 对应 nil
func TestDocStoreBatchGetOrder(t *testing.T) {
	objects := newMemObjectStore()
	cache := newMemCache()
	store := NewDocStore(objects, cache, 4)

	ctx := context.Background()
	if err := store.BatchSet(ctx, []KV{
		{Key: "doc-a", Value: []byte("alpha")},
		{Key: "doc-b", Value: []byte("beta")},
	}); err != nil {
		t.Fatalf("batch set failed: %v", err)
	}

	results, err := store.BatchGet(ctx, []string{"doc-b", "missing", "doc-a"})
	if err != nil {
		t.Fatalf("batch get failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if string(results[0]) != "beta" || string(results[2]) != "alpha" {
		t.Fatalf("results out of order: %q, %q", results[0], results[2])
	}
	if results[1] != nil {
		t.Fatalf("missing key should map to nil, got %q", results[1])
	}
	t.Logf("✅ 批量读取保序，缺失 key 返回 nil")
}

// TestDocStoreCacheWriteBack 回源取到的值回填缓存，二次读取不再回源
func TestDocStoreCacheWriteBack(t *testing.T) {
	objects := newMemObjectStore()
	cache := newMemCache()
	store := NewDocStore(objects, cache, 4)

	ctx := context.Background()
	objects.Put(ctx, ParentStorePrefix+"doc-1", []byte("payload"))

	if _, err := store.BatchGet(ctx, []string{"doc-1"}); err != nil {
		t.Fatalf("first get failed: %v", err)
	}
	before := objects.getHits

	results, err := store.BatchGet(ctx, []string{"doc-1"})
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if string(results[0]) != "payload" {
		t.Fatalf("unexpected payload: %q", results[0])
	}
	if objects.getHits != before {
		t.Fatal("cache hit should not fall through to object storage")
	}
	t.Logf("✅ 缓存回填生效")
}

// TestDocStoreCacheBroken 缓存故障退化为全量回源，数据仍正确
func TestDocStoreCacheBroken(t *testing.T) {
	objects := newMemObjectStore()
	cache := newMemCache()
	cache.broken = true
	store := NewDocStore(objects, cache, 4)

	ctx := context.Background()
	if err := store.BatchSet(ctx, []KV{{Key: "doc-x", Value: []byte("x")}}); err != nil {
		t.Fatalf("batch set failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		results, err := store.BatchGet(ctx, []string{"doc-x"})
		if err != nil {
			t.Fatalf("get %d failed: %v", i, err)
		}
		if string(results[0]) != "x" {
			t.Fatalf("unexpected value: %q", results[0])
		}
	}
	if objects.getHits < 2 {
		t.Fatal("broken cache should fall through to object storage each time")
	}
	t.Logf("✅ 缓存故障时退化为回源")
}

// TestDocStoreObjectStorageError 对象存储错误向上传播
func TestDocStoreObjectStorageError(t *testing.T) {
	objects := newMemObjectStore()
	objects.getErr = fmt.Errorf("connection refused")
	store := NewDocStore(objects, nil, 4)

	if _, err := store.BatchGet(context.Background(), []string{"doc-1"}); err == nil {
		t.Fatal("expected error from object storage")
	}
}

// TestDocStoreDeleteEvictsCache 删除同时清理缓存
func TestDocStoreDeleteEvictsCache(t *testing.T) {
	objects := newMemObjectStore()
	cache := newMemCache()
	store := NewDocStore(objects, cache, 4)

	ctx := context.Background()
	store.BatchSet(ctx, []KV{{Key: "doc-d", Value: []byte("d")}})
	if err := store.BatchDelete(ctx, []string{"doc-d"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	results, err := store.BatchGet(ctx, []string{"doc-d"})
	if err != nil {
		t.Fatalf("get after delete failed: %v", err)
	}
	if results[0] != nil {
		t.Fatal("deleted key should be absent in both tiers")
	}

	keys, err := store.ListKeys(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty store, got %v", keys)
	}
	t.Logf("✅ 删除同时清理两层")
}
