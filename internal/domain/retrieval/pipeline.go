package retrieval

import (
	"context"
	"time"

	applog "docqa/internal/platform/log"
)

// Pipeline 检索编排：改写 → 父子检索 → 重排。
// 三个阶段严格串行、各自计时；改写与重排失败只降级不失败，
// 检索本身的基础设施错误在查询层表现为空结果 + 零指标。
type Pipeline struct {
	retriever DocumentRetriever
	rewriter  QueryRewriter // 可选
	reranker  Reranker      // 可选
	config    *Config
}

// NewPipeline 创建检索编排器
func NewPipeline(retriever DocumentRetriever, cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Pipeline{
		retriever: retriever,
		config:    cfg,
	}
}

// SetRewriter 设置查询改写器
func (p *Pipeline) SetRewriter(r QueryRewriter) {
	p.rewriter = r
}

// SetReranker 设置重排序器
func (p *Pipeline) SetReranker(r Reranker) {
	p.reranker = r
}

// GetRelevantDocs 执行完整检索流程。
// 召回 candidate_k 个候选后，用原始 query（而非改写后的）重排，截到 topK。
// 零候选返回空列表和零值指标，不返回错误。
func (p *Pipeline) GetRelevantDocs(ctx context.Context, query string, topK int, history []Message) ([]ParentDocument, Metrics, error) {
	if topK <= 0 {
		topK = p.config.DefaultTopK
	}

	var metrics Metrics
	total := time.Now()

	// 1. 查询改写（失败退回原始 query）
	rewritten := query
	var filter *QueryFilter
	if p.rewriter != nil {
		start := time.Now()
		rewritten, filter = p.rewriter.Rewrite(ctx, query, history)
		metrics.RewriteSeconds = time.Since(start).Seconds()
	}

	// 2. 父子检索（召回多取候选供重排）
	candidateK := p.config.CandidateK(topK)
	start := time.Now()
	candidates, err := p.retriever.Invoke(ctx, rewritten, candidateK, filter)
	metrics.RetrievalSeconds = time.Since(start).Seconds()
	if err != nil {
		applog.Warn("[Pipeline] Retrieval failed, returning empty result", "query", query, "error", err)
		return nil, Metrics{}, nil
	}
	if len(candidates) == 0 {
		applog.Info("[Pipeline] No candidates retrieved", "query", query)
		return nil, Metrics{}, nil
	}

	// 3. 重排：针对原始 query，失败退回召回顺序
	docs := candidates
	if p.reranker != nil {
		start = time.Now()
		reranked, err := p.reranker.Rerank(ctx, query, candidates, topK)
		metrics.RerankSeconds = time.Since(start).Seconds()
		if err != nil {
			applog.Warn("[Pipeline] Rerank failed, using retrieval order", "error", err)
		} else {
			docs = reranked
		}
	}
	if len(docs) > topK {
		docs = docs[:topK]
	}

	metrics.TotalSeconds = time.Since(total).Seconds()

	applog.Info("[Pipeline] Query completed",
		"query", query,
		"top_k", topK,
		"candidates", len(candidates),
		"returned", len(docs),
		"total_seconds", metrics.TotalSeconds,
	)
	return docs, metrics, nil
}
