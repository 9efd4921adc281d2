package retrieval

import "context"

// ObjectStore 持久对象存储（S3 兼容）。Get 对不存在的 key 返回 (nil, nil)。
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// CacheStore TTL 字节缓存（Redis 兼容）。后端故障表现为 miss，不返回错误。
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, key string)
}

// VectorIndex 混合检索向量索引（Qdrant 兼容），仅存子块。
type VectorIndex interface {
	Upsert(ctx context.Context, children []ChildChunk) error
	Search(ctx context.Context, dense []float32, sparse SparseVector, limit int, filter *QueryFilter) ([]ScoredChild, error)
	DeleteBySource(ctx context.Context, source string) error
	DeleteByDocIDs(ctx context.Context, docIDs []string) error
	CountBySource(ctx context.Context, source string) (int, error)
	ListDocIDs(ctx context.Context) (map[string]int, error)
	ListDocIDsBySource(ctx context.Context, source string) ([]string, error)
}

// Embedder 向量生成接口
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dims() int
}

// SparseEncoder 稀疏向量编码接口
type SparseEncoder interface {
	Encode(text string) SparseVector
}

// Reranker 重排序接口。对候选父块按与 query 的相关性重新排序。
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []ParentDocument, topK int) ([]ParentDocument, error)
}

// QueryRewriter 查询改写接口。失败时必须返回原始 query 和 nil filter，不得返回错误。
type QueryRewriter interface {
	Rewrite(ctx context.Context, query string, history []Message) (string, *QueryFilter)
}

// DocumentRetriever 父子检索读路径（供 Pipeline 组合）
type DocumentRetriever interface {
	Invoke(ctx context.Context, query string, k int, filter *QueryFilter) ([]ParentDocument, error)
}
