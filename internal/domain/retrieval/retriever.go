package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	applog "docqa/internal/platform/log"
)

// ParentChildRetriever 父子检索器。
// 写路径：父块切子块，子块进向量索引，父块进两层存储；
// 读路径：子块混合检索 → 按 doc_id 去重 → 批量取回父块。
type ParentChildRetriever struct {
	index    VectorIndex
	store    *DocStore
	embedder Embedder
	sparse   SparseEncoder
	config   *Config
}

// NewParentChildRetriever 创建父子检索器
func NewParentChildRetriever(index VectorIndex, store *DocStore, embedder Embedder, sparse SparseEncoder, cfg *Config) *ParentChildRetriever {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ParentChildRetriever{
		index:    index,
		store:    store,
		embedder: embedder,
		sparse:   sparse,
		config:   cfg,
	}
}

// AddDocuments 入库一批父块，返回产出的子块数。
// 父块必须先于子块落盘：索引里可搜到的子块，必须能取回其父块。
func (r *ParentChildRetriever) AddDocuments(ctx context.Context, parents []ParentDocument) (int, error) {
	if len(parents) == 0 {
		return 0, nil
	}

	start := time.Now()

	var (
		pairs    []KV
		children []ChildChunk
		texts    []string
	)

	for i := range parents {
		if parents[i].ID == "" {
			parents[i].ID = uuid.New().String()
		}
		parent := parents[i]

		data, err := json.Marshal(parent)
		if err != nil {
			return 0, fmt.Errorf("marshal parent %s: %w", parent.ID, err)
		}
		pairs = append(pairs, KV{Key: parent.ID, Value: data})

		for _, slice := range ChildSlices(parent.Content, r.config.ChildChunkSize, r.config.ChildChunkOverlap) {
			children = append(children, ChildChunk{
				DocID:      parent.ID,
				Content:    slice.Text,
				Source:     parent.Metadata.Source,
				PageLabel:  PageLabelAt(parent.Content, slice.Start),
				HeaderPath: parent.Metadata.HeaderPath,
			})
			texts = append(texts, slice.Text)
		}
	}

	if len(children) == 0 {
		return 0, fmt.Errorf("no child chunks produced from %d parents", len(parents))
	}

	vectors, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed children: %w", err)
	}
	if len(vectors) != len(children) {
		return 0, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(children), len(vectors))
	}
	for i := range children {
		children[i].Dense = vectors[i]
		children[i].Sparse = r.sparse.Encode(children[i].Content)
	}

	// 先写父块存储，再写向量索引
	if err := r.store.BatchSet(ctx, pairs); err != nil {
		return 0, fmt.Errorf("store parents: %w", err)
	}
	if err := r.index.Upsert(ctx, children); err != nil {
		return 0, fmt.Errorf("index children: %w", err)
	}

	applog.Info("[Retrieval] Documents added",
		"parents", len(parents),
		"children", len(children),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return len(children), nil
}

// Invoke 混合检索 top-k 子块并取回去重后的父块。
// 父块缺失（孤儿子块）的命中直接跳过，不报错。
func (r *ParentChildRetriever) Invoke(ctx context.Context, query string, k int, filter *QueryFilter) ([]ParentDocument, error) {
	if k <= 0 {
		k = r.config.DefaultTopK
	}

	dense, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	sparse := r.sparse.Encode(query)

	hits, err := r.index.Search(ctx, dense[0], sparse, k, filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// 按 doc_id 去重，保持首次出现顺序
	seen := make(map[string]bool, len(hits))
	var docIDs []string
	for _, hit := range hits {
		if hit.DocID == "" || seen[hit.DocID] {
			continue
		}
		seen[hit.DocID] = true
		docIDs = append(docIDs, hit.DocID)
	}

	blobs, err := r.store.BatchGet(ctx, docIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch parents: %w", err)
	}

	parents := make([]ParentDocument, 0, len(docIDs))
	orphaned := 0
	for i, data := range blobs {
		if data == nil {
			orphaned++
			continue
		}
		var parent ParentDocument
		if err := json.Unmarshal(data, &parent); err != nil {
			applog.Warn("[Retrieval] Skipping undecodable parent", "doc_id", docIDs[i], "error", err)
			continue
		}
		parents = append(parents, parent)
	}

	if orphaned > 0 {
		applog.Warn("[Retrieval] Orphaned child hits skipped",
			"orphaned", orphaned,
			"returned", len(parents),
		)
	}
	return parents, nil
}

// DeleteBySource 删除某来源文件名对应的全部子块和父块（幂等重新入库的前置步骤）。
// 先从索引按来源收集 doc_id，再删子块、删父块；不扫描整个父块存储。
func (r *ParentChildRetriever) DeleteBySource(ctx context.Context, source string) error {
	stale, err := r.index.ListDocIDsBySource(ctx, source)
	if err != nil {
		return fmt.Errorf("list doc_ids for %s: %w", source, err)
	}

	if err := r.index.DeleteBySource(ctx, source); err != nil {
		return fmt.Errorf("delete vectors for %s: %w", source, err)
	}

	if len(stale) == 0 {
		return nil
	}
	if err := r.store.BatchDelete(ctx, stale); err != nil {
		return fmt.Errorf("delete parents for %s: %w", source, err)
	}

	applog.Info("[Retrieval] Source deleted", "source", source, "parents_deleted", len(stale))
	return nil
}

// Store 返回底层两层存储（供一致性清扫使用）
func (r *ParentChildRetriever) Store() *DocStore {
	return r.store
}

// Index 返回底层向量索引（供一致性清扫使用）
func (r *ParentChildRetriever) Index() VectorIndex {
	return r.index
}
