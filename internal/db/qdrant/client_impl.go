package qdrantdb

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"docqa/internal/domain/retrieval"
	applog "docqa/internal/platform/log"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
	sourceField      = "metadata.source"
)

// Config Qdrant 连接配置
type Config struct {
	Host       string `json:"host"`
	Port       int    `json:"port"` // gRPC 端口，默认 6334
	APIKey     string `json:"api_key"`
	UseTLS     bool   `json:"use_tls"`
	Collection string `json:"collection"`
	DenseDims  int    `json:"dense_dims"`
}

// Client Qdrant 向量索引适配器。
// 只存子块：命名 dense（cosine）+ 命名 sparse 向量，payload 带 doc_id 反向引用。
type Client struct {
	qc         *qdrant.Client
	collection string
	dims       int
}

// NewClient 创建 Qdrant 客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.Port <= 0 {
		cfg.Port = 6334
	}
	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Client{
		qc:         qc,
		collection: cfg.Collection,
		dims:       cfg.DenseDims,
	}, nil
}

// EnsureCollection 确保集合和 payload 索引存在。启动期失败应视为致命。
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.qc.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", c.collection, err)
	}

	if !exists {
		err = c.qc.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     uint64(c.dims),
					Distance: qdrant.Distance_Cosine,
				},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {},
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", c.collection, err)
		}
		applog.Info("[Qdrant] Collection created", "collection", c.collection, "dims", c.dims)
	}

	// 来源文件名做 keyword 索引，支撑按文件过滤和删除
	_, err = c.qc.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: c.collection,
		FieldName:      sourceField,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("create field index %s: %w", sourceField, err)
	}
	return nil
}

// Upsert 写入子块（wait=true，返回即可搜）
func (c *Client) Upsert(ctx context.Context, children []retrieval.ChildChunk) error {
	if len(children) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(children))
	for _, ch := range children {
		points = append(points, &qdrant.PointStruct{
			Id: qdrant.NewID(uuid.New().String()),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				denseVectorName:  qdrant.NewVectorDense(ch.Dense),
				sparseVectorName: qdrant.NewVectorSparse(ch.Sparse.Indices, ch.Sparse.Values),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"doc_id":  ch.DocID,
				"content": ch.Content,
				"metadata": map[string]any{
					"source":      ch.Source,
					"page_label":  ch.PageLabel,
					"header_path": ch.HeaderPath,
				},
			}),
		})
	}

	_, err := c.qc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}

	applog.Debug("[Qdrant] Points upserted", "count", len(points))
	return nil
}

// Search 混合检索：dense + sparse 双路 prefetch，服务端 RRF 融合。
func (c *Client) Search(ctx context.Context, dense []float32, sparse retrieval.SparseVector, limit int, filter *retrieval.QueryFilter) ([]retrieval.ScoredChild, error) {
	if limit <= 0 {
		limit = 10
	}

	prefetchLimit := uint64(limit * 2)
	prefetch := []*qdrant.PrefetchQuery{
		{
			Query: qdrant.NewQueryDense(dense),
			Using: qdrant.PtrOf(denseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		},
	}
	if len(sparse.Indices) > 0 {
		prefetch = append(prefetch, &qdrant.PrefetchQuery{
			Query: qdrant.NewQuerySparse(sparse.Indices, sparse.Values),
			Using: qdrant.PtrOf(sparseVectorName),
			Limit: qdrant.PtrOf(prefetchLimit),
		})
	}

	req := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Prefetch:       prefetch,
		Query:          qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter != nil {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(filter.Field, filter.Value)},
		}
	}

	points, err := c.qc.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("hybrid query: %w", err)
	}

	hits := make([]retrieval.ScoredChild, 0, len(points))
	for _, p := range points {
		hit := retrieval.ScoredChild{Score: float64(p.Score)}
		if v, ok := p.Payload["doc_id"]; ok {
			hit.DocID = v.GetStringValue()
		}
		if v, ok := p.Payload["content"]; ok {
			hit.Content = v.GetStringValue()
		}
		if meta, ok := p.Payload["metadata"]; ok {
			if fields := meta.GetStructValue().GetFields(); fields != nil {
				hit.Source = fields["source"].GetStringValue()
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteBySource 删除某来源文件名的全部子块
func (c *Client) DeleteBySource(ctx context.Context, source string) error {
	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(sourceField, source)},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete by source %s: %w", source, err)
	}
	applog.Info("[Qdrant] Vectors deleted by source", "source", source)
	return nil
}

// DeleteByDocIDs 按父块 ID 删除子块（一致性清扫用）
func (c *Client) DeleteByDocIDs(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(docIDs))
	for _, id := range docIDs {
		conditions = append(conditions, qdrant.NewMatch("doc_id", id))
	}
	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Should: conditions,
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete by doc_ids: %w", err)
	}
	return nil
}

// CountBySource 统计某来源的子块数
func (c *Client) CountBySource(ctx context.Context, source string) (int, error) {
	count, err := c.qc.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(sourceField, source)},
		},
		Exact: qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count by source %s: %w", source, err)
	}
	return int(count), nil
}

// ListDocIDs 滚动遍历全集合，返回 doc_id → 子块数。
func (c *Client) ListDocIDs(ctx context.Context) (map[string]int, error) {
	return c.scrollDocIDs(ctx, nil)
}

// ListDocIDsBySource 按来源文件名收集去重后的 doc_id（走 keyword 索引，不拉全集合）
func (c *Client) ListDocIDsBySource(ctx context.Context, source string) ([]string, error) {
	counts, err := c.scrollDocIDs(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(sourceField, source)},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) scrollDocIDs(ctx context.Context, filter *qdrant.Filter) (map[string]int, error) {
	result := make(map[string]int)
	var offset *qdrant.PointId

	for {
		resp, err := c.qc.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: c.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(uint32(512)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("doc_id"),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll points: %w", err)
		}

		for _, p := range resp.GetResult() {
			if v, ok := p.Payload["doc_id"]; ok {
				if id := v.GetStringValue(); id != "" {
					result[id]++
				}
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return result, nil
}
