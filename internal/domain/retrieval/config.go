package retrieval

// Config 检索模块配置
type Config struct {
	// 分块配置
	ParentChunkSize   int `json:"parent_chunk_size"`   // 父块最大字符数
	ChildChunkSize    int `json:"child_chunk_size"`    // 子块窗口字符数
	ChildChunkOverlap int `json:"child_chunk_overlap"` // 子块重叠字符数

	// 检索配置
	DefaultTopK         int `json:"default_top_k"`
	CandidateMultiplier int `json:"candidate_multiplier"` // candidate_k = top_k * multiplier
	MinCandidates       int `json:"min_candidates"`
	FetchWorkers        int `json:"fetch_workers"` // 缓存 miss 并发回源数
	MaxHistoryTurns     int `json:"max_history_turns"`

	// 缓存配置
	CacheTTLSeconds int `json:"cache_ttl_seconds"` // 父块缓存 TTL

	// Embedding
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDims  int    `json:"embedding_dims"`

	// 查询改写
	EnableRewrite   bool   `json:"enable_rewrite"`
	RewriteProvider string `json:"rewrite_provider,omitempty"`
	RewriteModel    string `json:"rewrite_model,omitempty"`

	// Rerank
	EnableRerank   bool   `json:"enable_rerank"`
	RerankProvider string `json:"rerank_provider,omitempty"`
	RerankModel    string `json:"rerank_model,omitempty"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ParentChunkSize:     2000,
		ChildChunkSize:      400,
		ChildChunkOverlap:   50,
		DefaultTopK:         5,
		CandidateMultiplier: 3,
		MinCandidates:       20,
		FetchWorkers:        10,
		MaxHistoryTurns:     6,
		CacheTTLSeconds:     86400, // 24h
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDims:       1536,
		EnableRewrite:       true,
		RewriteProvider:     "openai",
		RewriteModel:        "gpt-4o-mini",
		EnableRerank:        true,
		RerankProvider:      "openai",
		RerankModel:         "gpt-4o-mini",
	}
}

// CandidateK 计算召回候选数：top_k 的若干倍，且不低于下限。
func (c *Config) CandidateK(topK int) int {
	mult := c.CandidateMultiplier
	if mult <= 0 {
		mult = 3
	}
	k := topK * mult
	min := c.MinCandidates
	if min <= 0 {
		min = 20
	}
	if k < min {
		k = min
	}
	return k
}

// HasRewrite 是否启用查询改写
func (c *Config) HasRewrite() bool {
	return c.EnableRewrite && c.RewriteProvider != "" && c.RewriteModel != ""
}

// HasRerank 是否启用重排序
func (c *Config) HasRerank() bool {
	return c.EnableRerank && c.RerankProvider != "" && c.RerankModel != ""
}
