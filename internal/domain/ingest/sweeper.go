package ingest

import (
	"context"

	"docqa/internal/domain/retrieval"
	applog "docqa/internal/platform/log"
)

// SweepResult 一致性清扫结果
type SweepResult struct {
	IndexedDocs    int `json:"indexed_docs"`
	StoredParents  int `json:"stored_parents"`
	OrphanChildren int `json:"orphan_children"`
	OrphanParents  int `json:"orphan_parents"`
}

// Sweeper 父块存储与向量索引之间的一致性清扫。
// 孤儿子块（向量索引里有、父块存储里没有）会污染检索结果，直接删除；
// 孤儿父块（父块存储里有、索引里无任何子块）永远检索不到，也删除。
type Sweeper struct {
	index retrieval.VectorIndex
	store *retrieval.DocStore
}

// NewSweeper 创建一致性清扫器
func NewSweeper(index retrieval.VectorIndex, store *retrieval.DocStore) *Sweeper {
	return &Sweeper{index: index, store: store}
}

// Sweep 执行一次全量清扫
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	indexed, err := s.index.ListDocIDs(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	storedSet := make(map[string]bool, len(stored))
	for _, id := range stored {
		storedSet[id] = true
	}

	result := &SweepResult{
		IndexedDocs:   len(indexed),
		StoredParents: len(stored),
	}

	var orphanDocIDs []string
	for docID, chunks := range indexed {
		if !storedSet[docID] {
			orphanDocIDs = append(orphanDocIDs, docID)
			result.OrphanChildren += chunks
		}
	}
	if len(orphanDocIDs) > 0 {
		if err := s.index.DeleteByDocIDs(ctx, orphanDocIDs); err != nil {
			return nil, err
		}
		applog.Warn("[Ingest] Orphan children removed",
			"docs", len(orphanDocIDs), "chunks", result.OrphanChildren)
	}

	var orphanParents []string
	for _, id := range stored {
		if _, ok := indexed[id]; !ok {
			orphanParents = append(orphanParents, id)
		}
	}
	if len(orphanParents) > 0 {
		if err := s.store.BatchDelete(ctx, orphanParents); err != nil {
			return nil, err
		}
		result.OrphanParents = len(orphanParents)
		applog.Warn("[Ingest] Orphan parents removed", "count", len(orphanParents))
	}

	applog.Info("[Ingest] Consistency sweep completed",
		"indexed_docs", result.IndexedDocs,
		"stored_parents", result.StoredParents,
		"orphan_children", result.OrphanChildren,
		"orphan_parents", result.OrphanParents)
	return result, nil
}
