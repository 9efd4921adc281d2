package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	applog "docqa/internal/platform/log"
)

// ParentStorePrefix 父块在对象存储中的 key 前缀
const ParentStorePrefix = "parent_store/"

// KV 批量写入的键值对
type KV struct {
	Key   string
	Value []byte
}

// DocStore 两层文档存储：TTL 缓存 + 对象存储（cache-aside）。
// 对象存储是唯一真实来源；缓存整体故障退化为全 miss，读全部回源。
type DocStore struct {
	cache   CacheStore // 可选
	objects ObjectStore
	prefix  string
	workers int
}

// NewDocStore 创建两层文档存储
func NewDocStore(objects ObjectStore, cache CacheStore, fetchWorkers int) *DocStore {
	if fetchWorkers <= 0 {
		fetchWorkers = 10
	}
	return &DocStore{
		cache:   cache,
		objects: objects,
		prefix:  ParentStorePrefix,
		workers: fetchWorkers,
	}
}

// BatchGet 批量读取。结果与 keys 一一对应且保序；两层均不存在的 key 对应 nil，
// 不视为错误。缓存 miss 的 key 以有界并发回源对象存储，取到的值回填缓存。
func (s *DocStore) BatchGet(ctx context.Context, keys []string) ([][]byte, error) {
	results := make([][]byte, len(keys))
	var missIdx []int

	for i, key := range keys {
		if s.cache != nil {
			if data, ok := s.cache.Get(ctx, key); ok {
				results[i] = data
				continue
			}
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return results, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	sem := make(chan struct{}, s.workers)

	for _, idx := range missIdx {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			key := keys[idx]
			data, err := s.objects.Get(ctx, s.prefix+key)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("fetch %s: %w", key, err)
				}
				mu.Unlock()
				return
			}
			if data == nil {
				// 两层都没有：absent，不报错
				return
			}

			mu.Lock()
			results[idx] = data
			mu.Unlock()

			if s.cache != nil {
				s.cache.Set(ctx, key, data)
			}
		}(idx)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	applog.Debug("[DocStore] Batch get",
		"keys", len(keys),
		"cache_misses", len(missIdx),
	)
	return results, nil
}

// BatchSet 批量写入。先写对象存储并确认成功，再更新缓存；
// 缓存写入失败仅记录日志，整体仍视为成功。
func (s *DocStore) BatchSet(ctx context.Context, pairs []KV) error {
	for _, kv := range pairs {
		if err := s.objects.Put(ctx, s.prefix+kv.Key, kv.Value); err != nil {
			return fmt.Errorf("put %s: %w", kv.Key, err)
		}
		if s.cache != nil {
			s.cache.Set(ctx, kv.Key, kv.Value)
		}
	}
	return nil
}

// BatchDelete 批量删除：先对象存储后缓存，缓存删除失败不致命。
func (s *DocStore) BatchDelete(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.objects.Delete(ctx, s.prefix+key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		if s.cache != nil {
			s.cache.Delete(ctx, key)
		}
	}
	return nil
}

// ListKeys 列出对象存储中所有父块 ID
func (s *DocStore) ListKeys(ctx context.Context) ([]string, error) {
	objKeys, err := s.objects.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.prefix, err)
	}
	keys := make([]string, 0, len(objKeys))
	for _, k := range objKeys {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}
