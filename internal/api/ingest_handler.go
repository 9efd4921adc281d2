package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"docqa/internal/domain/ingest"
	applog "docqa/internal/platform/log"
)

// IngestHandler 文件摄取管理 API
type IngestHandler struct {
	tracker ingest.TrackingStore
	scanner *ingest.Scanner
	sweeper *ingest.Sweeper
	indexer ingest.Indexer
}

// NewIngestHandler 创建摄取管理处理器
func NewIngestHandler(tracker ingest.TrackingStore, scanner *ingest.Scanner, sweeper *ingest.Sweeper, indexer ingest.Indexer) *IngestHandler {
	return &IngestHandler{
		tracker: tracker,
		scanner: scanner,
		sweeper: sweeper,
		indexer: indexer,
	}
}

// RegisterRoutes 注册摄取管理路由
func (h *IngestHandler) RegisterRoutes(r chi.Router) {
	r.Route("/ingestion", func(r chi.Router) {
		r.Get("/status", h.ListStatus)
		r.Get("/status/{filename}", h.GetStatus)
		r.Post("/scan", h.Scan)
		r.Post("/sweep", h.Sweep)
		r.Delete("/{filename}", h.Delete)
	})
}

// ListStatus 列出全部文件的摄取状态
func (h *IngestHandler) ListStatus(w http.ResponseWriter, r *http.Request) {
	records, err := h.tracker.List(r.Context())
	if err != nil {
		applog.Error("[API] Failed to list tracking records", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list ingestion status")
		return
	}
	if records == nil {
		records = []ingest.FileRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetStatus 查询单个文件的摄取状态
func (h *IngestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	filename, ok := pathFilename(w, r)
	if !ok {
		return
	}

	rec, err := h.tracker.Get(r.Context(), filename)
	if err != nil {
		applog.Error("[API] Failed to get tracking record", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get ingestion status")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "file not tracked")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Scan 扫描原始文件存储，新文件入队
func (h *IngestHandler) Scan(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.Scan(r.Context())
	if err != nil {
		applog.Error("[API] Scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sweep 父块存储与向量索引的一致性清扫
func (h *IngestHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		applog.Error("[API] Sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Delete 删除文件的索引数据和追踪记录。
// 原始文件保留在对象存储里，再次扫描会重新摄取。
func (h *IngestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filename, ok := pathFilename(w, r)
	if !ok {
		return
	}

	if err := h.indexer.DeleteBySource(r.Context(), filename); err != nil {
		applog.Error("[API] Failed to delete indexed data", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete indexed data")
		return
	}

	if err := h.tracker.Delete(r.Context(), filename); err != nil {
		applog.Error("[API] Failed to delete tracking record", "file", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete tracking record")
		return
	}

	applog.Info("[API] File removed from index", "file", filename)
	writeJSON(w, http.StatusOK, map[string]string{"filename": filename, "result": "deleted"})
}

// pathFilename 从路径参数提取文件名（URL 转义过的）
func pathFilename(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "filename")
	filename, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(filename) == "" {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return "", false
	}
	return filename, true
}
