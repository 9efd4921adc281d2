package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain/retrieval"
	applog "docqa/internal/platform/log"
)

// QueryHandler 文档检索 API
type QueryHandler struct {
	pipeline *retrieval.Pipeline
	config   *retrieval.Config
}

// NewQueryHandler 创建检索处理器
func NewQueryHandler(pipeline *retrieval.Pipeline, config *retrieval.Config) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		config:   config,
	}
}

// RegisterRoutes 注册检索路由
func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.Query)
}

// QueryRequest 检索请求
type QueryRequest struct {
	Query   string              `json:"query"`
	TopK    int                 `json:"top_k,omitempty"`
	History []retrieval.Message `json:"history,omitempty"`
}

// QueryResponse 检索响应
type QueryResponse struct {
	Documents []DocumentView    `json:"documents"`
	Metrics   retrieval.Metrics `json:"metrics"`
}

// DocumentView 返回给调用方的文档视图
type DocumentView struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Source     string `json:"source,omitempty"`
	HeaderPath string `json:"header_path,omitempty"`
}

// Query 自然语言文档检索
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.config.DefaultTopK
	}

	docs, metrics, err := h.pipeline.GetRelevantDocs(r.Context(), req.Query, topK, req.History)
	if err != nil {
		applog.Error("[API] Query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, DocumentView{
			ID:         d.ID,
			Content:    retrieval.StripPageMarkers(d.Content),
			Source:     d.Metadata.Source,
			HeaderPath: d.Metadata.HeaderPath,
		})
	}

	writeJSON(w, http.StatusOK, &QueryResponse{
		Documents: views,
		Metrics:   metrics,
	})
}
