package retrieval

// ParentDocument 父块：粗粒度文本块，作为 LLM 上下文返回。
// 由 DocStore 独占持有；入库时创建，写入后不可变。
type ParentDocument struct {
	ID       string           `json:"id"`
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata 父块元数据
type DocumentMetadata struct {
	Source     string `json:"source"`                // 来源文件名
	HeaderPath string `json:"header_path,omitempty"` // 所属标题路径
}

// ChildChunk 子块：父块文本的细粒度切片，仅用于向量检索。
// 通过 DocID 反向引用父块（按约定，不解引用）。
type ChildChunk struct {
	DocID      string       `json:"doc_id"`
	Content    string       `json:"content"`
	Source     string       `json:"source"`
	PageLabel  string       `json:"page_label,omitempty"`
	HeaderPath string       `json:"header_path,omitempty"`
	Dense      []float32    `json:"-"`
	Sparse     SparseVector `json:"-"`
}

// SparseVector 稀疏向量（词项 → 权重）
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// ScoredChild 向量检索命中的子块
type ScoredChild struct {
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}

// QueryFilter 封闭形态的检索过滤条件（单字段等值匹配）。
// 改写器返回的其他形态一律丢弃。
type QueryFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Message 会话历史消息（改写器输入）
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Metrics 单次查询各阶段耗时（秒），不落盘。
type Metrics struct {
	RewriteSeconds   float64 `json:"rewrite_seconds"`
	RetrievalSeconds float64 `json:"retrieval_seconds"`
	RerankSeconds    float64 `json:"rerank_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}
