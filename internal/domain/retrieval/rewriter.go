package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

// LLMRewriter 使用 LLM 做查询改写：消解代词、跨语言扩展同义词、
// 可选给出元数据过滤条件。任何失败都退回原始 query，绝不向上抛错。
type LLMRewriter struct {
	providerName    string
	model           string
	maxHistoryTurns int
}

// NewLLMRewriter 创建查询改写器
func NewLLMRewriter(providerName, model string, maxHistoryTurns int) *LLMRewriter {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = 6
	}
	return &LLMRewriter{
		providerName:    providerName,
		model:           model,
		maxHistoryTurns: maxHistoryTurns,
	}
}

const rewriteSystemPrompt = `你是检索查询改写助手。根据对话历史改写用户查询：
1. 消解代词和指代（"它"、"这个方法"等），替换为明确实体
2. 将专业术语扩展为中英双语同义词，用 OR 连接
3. 如果查询明确指向某个文件，给出 filter
仅返回 JSON：{"query": "改写后的查询", "filter": {"source": "文件名"} 或 null}`

// Rewrite 改写查询。返回改写后的 query 与可选过滤条件。
func (r *LLMRewriter) Rewrite(ctx context.Context, query string, history []Message) (string, *QueryFilter) {
	start := time.Now()

	p, err := provider.GetProvider(r.providerName)
	if err != nil {
		applog.Warn("[Rewriter] Provider unavailable, using raw query", "error", err)
		return query, nil
	}

	resp, err := p.Complete(ctx, &provider.CompletionRequest{
		Model: r.model,
		Messages: []provider.Message{
			{Role: "system", Content: rewriteSystemPrompt},
			{Role: "user", Content: r.buildPrompt(query, history)},
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		applog.Warn("[Rewriter] LLM call failed, using raw query", "error", err)
		return query, nil
	}

	rewritten, filter, err := parseRewriteResponse(resp.Content)
	if err != nil {
		applog.Warn("[Rewriter] Unparseable response, using raw query", "error", err)
		return query, nil
	}
	if strings.TrimSpace(rewritten) == "" {
		return query, nil
	}

	applog.Info("[Rewriter] Query rewritten",
		"original", query,
		"rewritten", rewritten,
		"has_filter", filter != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rewritten, filter
}

// buildPrompt 拼装历史（最多保留最近 maxHistoryTurns 条）与当前查询
func (r *LLMRewriter) buildPrompt(query string, history []Message) string {
	var sb strings.Builder
	if len(history) > r.maxHistoryTurns {
		history = history[len(history)-r.maxHistoryTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("对话历史：\n")
		for _, msg := range history {
			sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("当前查询：")
	sb.WriteString(query)
	return sb.String()
}

type rewriteResponse struct {
	Query  string          `json:"query"`
	Filter json.RawMessage `json:"filter"`
}

// parseRewriteResponse 解析 LLM 输出并净化 filter
func parseRewriteResponse(content string) (string, *QueryFilter, error) {
	content = extractJSONObject(content)

	var parsed rewriteResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil, fmt.Errorf("parse rewrite response: %w", err)
	}
	return parsed.Query, SanitizeFilter(parsed.Filter), nil
}

// SanitizeFilter 将 LLM 返回的松散 filter 转为封闭形态。
// 只接受 {"source": "<string>"} 或 {"metadata.source": "<string>"}；
// 嵌套结构、非字符串值、其他字段一律丢弃（返回 nil），保可用性弃精度。
func SanitizeFilter(raw json.RawMessage) *QueryFilter {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	if len(m) != 1 {
		return nil
	}

	for field, v := range m {
		value, ok := v.(string)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		switch field {
		case "source", "metadata.source":
			return &QueryFilter{Field: "metadata.source", Value: value}
		}
	}
	return nil
}

// extractJSONObject 从可能带说明文字的输出中提取第一个 JSON 对象
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
