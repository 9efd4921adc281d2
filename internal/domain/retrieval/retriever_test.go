package retrieval

import (
	"context"
	"strings"
	"testing"
)

// fakeIndex 向量索引桩。onUpsert 供测试观察写入时机。
type fakeIndex struct {
	upserted []ChildChunk
	hits     []ScoredChild
	deleted  []string
	onUpsert func([]ChildChunk)
}

func (f *fakeIndex) Upsert(ctx context.Context, children []ChildChunk) error {
	f.upserted = append(f.upserted, children...)
	if f.onUpsert != nil {
		f.onUpsert(children)
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, dense []float32, sparse SparseVector, limit int, filter *QueryFilter) ([]ScoredChild, error) {
	return f.hits, nil
}

func (f *fakeIndex) DeleteBySource(ctx context.Context, source string) error {
	f.deleted = append(f.deleted, source)
	return nil
}

func (f *fakeIndex) DeleteByDocIDs(ctx context.Context, docIDs []string) error { return nil }

func (f *fakeIndex) CountBySource(ctx context.Context, source string) (int, error) { return 0, nil }

func (f *fakeIndex) ListDocIDs(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, c := range f.upserted {
		out[c.DocID]++
	}
	return out, nil
}

func (f *fakeIndex) ListDocIDsBySource(ctx context.Context, source string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range f.upserted {
		if c.Source == source && !seen[c.DocID] {
			seen[c.DocID] = true
			ids = append(ids, c.DocID)
		}
	}
	return ids, nil
}

// fakeEmbedder 返回固定维度的零向量
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (fakeEmbedder) Dims() int { return 4 }

func newTestRetriever(index VectorIndex) (*ParentChildRetriever, *DocStore) {
	store := NewDocStore(newMemObjectStore(), newMemCache(), 4)
	cfg := DefaultConfig()
	return NewParentChildRetriever(index, store, fakeEmbedder{}, NewBM25Encoder(), cfg), store
}

// TestAddDocumentsParentBeforeChild 子块进索引前父块必须已可取回
func TestAddDocumentsParentBeforeChild(t *testing.T) {
	index := &fakeIndex{}
	var retriever *ParentChildRetriever
	var store *DocStore
	retriever, store = newTestRetriever(index)

	ctx := context.Background()
	index.onUpsert = func(children []ChildChunk) {
		for _, c := range children {
			blobs, err := store.BatchGet(ctx, []string{c.DocID})
			if err != nil || blobs[0] == nil {
				t.Errorf("child %s indexed before its parent was stored", c.DocID)
			}
		}
	}

	parents := []ParentDocument{{
		Content:  strings.Repeat("维护手册内容。", 100),
		Metadata: DocumentMetadata{Source: "manual.pdf"},
	}}
	n, err := retriever.AddDocuments(ctx, parents)
	if err != nil {
		t.Fatalf("add documents failed: %v", err)
	}
	if n == 0 || len(index.upserted) != n {
		t.Fatalf("expected %d children upserted, got %d", n, len(index.upserted))
	}
	for _, c := range index.upserted {
		if c.DocID == "" {
			t.Fatal("child chunk missing doc_id back reference")
		}
		if c.Source != "manual.pdf" {
			t.Fatalf("child source not propagated: %q", c.Source)
		}
	}
	t.Logf("✅ 父块先于子块落盘 (%d children)", n)
}

// TestInvokeDedupeAndOrder 多个子块命中同一父块时按首次出现去重
func TestInvokeDedupeAndOrder(t *testing.T) {
	index := &fakeIndex{}
	retriever, store := newTestRetriever(index)

	ctx := context.Background()
	store.BatchSet(ctx, []KV{
		{Key: "p1", Value: []byte(`{"id":"p1","content":"first","metadata":{"source":"a.pdf"}}`)},
		{Key: "p2", Value: []byte(`{"id":"p2","content":"second","metadata":{"source":"a.pdf"}}`)},
	})
	index.hits = []ScoredChild{
		{DocID: "p2", Score: 0.9},
		{DocID: "p1", Score: 0.8},
		{DocID: "p2", Score: 0.7},
		{DocID: "p1", Score: 0.6},
	}

	docs, err := retriever.Invoke(ctx, "query", 5, nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 deduped parents, got %d", len(docs))
	}
	if docs[0].ID != "p2" || docs[1].ID != "p1" {
		t.Fatalf("first-seen order not preserved: %s, %s", docs[0].ID, docs[1].ID)
	}
	t.Logf("✅ doc_id 去重且保持首次出现顺序")
}

// TestInvokeSkipsOrphans 父块缺失的命中被跳过，不报错
func TestInvokeSkipsOrphans(t *testing.T) {
	index := &fakeIndex{}
	retriever, store := newTestRetriever(index)

	ctx := context.Background()
	store.BatchSet(ctx, []KV{
		{Key: "alive", Value: []byte(`{"id":"alive","content":"ok","metadata":{"source":"a.pdf"}}`)},
	})
	index.hits = []ScoredChild{
		{DocID: "ghost", Score: 0.9},
		{DocID: "alive", Score: 0.5},
	}

	docs, err := retriever.Invoke(ctx, "query", 5, nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "alive" {
		t.Fatalf("expected only the live parent, got %+v", docs)
	}
	t.Logf("✅ 孤儿命中被静默跳过")
}

// TestInvokeEmptyHits 零命中返回空结果
func TestInvokeEmptyHits(t *testing.T) {
	index := &fakeIndex{}
	retriever, _ := newTestRetriever(index)

	docs, err := retriever.Invoke(context.Background(), "nothing", 5, nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if docs != nil {
		t.Fatalf("expected nil result, got %d docs", len(docs))
	}
}

// TestDeleteBySourceRemovesParents 按来源删除向量和父块，其他来源不受影响。
// 要删的父块 ID 取自索引的来源过滤，不扫描整个父块存储。
func TestDeleteBySourceRemovesParents(t *testing.T) {
	index := &fakeIndex{}
	retriever, store := newTestRetriever(index)

	ctx := context.Background()
	store.BatchSet(ctx, []KV{
		{Key: "p1", Value: []byte(`{"id":"p1","content":"x","metadata":{"source":"old.pdf"}}`)},
		{Key: "p2", Value: []byte(`{"id":"p2","content":"y","metadata":{"source":"keep.pdf"}}`)},
	})
	index.upserted = []ChildChunk{
		{DocID: "p1", Source: "old.pdf"},
		{DocID: "p1", Source: "old.pdf"},
		{DocID: "p2", Source: "keep.pdf"},
	}

	if err := retriever.DeleteBySource(ctx, "old.pdf"); err != nil {
		t.Fatalf("delete by source failed: %v", err)
	}
	if len(index.deleted) != 1 || index.deleted[0] != "old.pdf" {
		t.Fatalf("vector deletion not invoked: %v", index.deleted)
	}

	keys, _ := store.ListKeys(ctx)
	if len(keys) != 1 || keys[0] != "p2" {
		t.Fatalf("expected only p2 to survive, got %v", keys)
	}
	t.Logf("✅ 按来源删除隔离正确")
}

// TestDeleteBySourceUnknown 未知来源删除是无副作用的空操作
func TestDeleteBySourceUnknown(t *testing.T) {
	index := &fakeIndex{}
	retriever, store := newTestRetriever(index)

	ctx := context.Background()
	store.BatchSet(ctx, []KV{
		{Key: "p1", Value: []byte(`{"id":"p1","content":"x","metadata":{"source":"keep.pdf"}}`)},
	})
	index.upserted = []ChildChunk{{DocID: "p1", Source: "keep.pdf"}}

	if err := retriever.DeleteBySource(ctx, "missing.pdf"); err != nil {
		t.Fatalf("delete by source failed: %v", err)
	}
	keys, _ := store.ListKeys(ctx)
	if len(keys) != 1 {
		t.Fatalf("no parents should be deleted, got %v", keys)
	}
}
