package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"docqa/internal/provider"
)

// scriptedProvider 返回预设内容的 LLM 桩
type scriptedProvider struct {
	name    string
	content string
	err     error
	lastReq *provider.CompletionRequest
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &provider.CompletionResponse{Content: p.content}, nil
}

// TestRewriteFallbackNoProvider 供应商未注册时退回原始查询
func TestRewriteFallbackNoProvider(t *testing.T) {
	r := NewLLMRewriter("absent-provider", "model-x", 6)

	query, filter := r.Rewrite(context.Background(), "它的维护周期是多久", nil)
	if query != "它的维护周期是多久" {
		t.Fatalf("expected raw query, got %q", query)
	}
	if filter != nil {
		t.Fatal("expected nil filter on fallback")
	}
	t.Logf("✅ 供应商缺失时退回原始查询")
}

// TestRewriteFallbackLLMError LLM 调用失败时退回原始查询
func TestRewriteFallbackLLMError(t *testing.T) {
	p := &scriptedProvider{name: "rewrite-err", err: fmt.Errorf("timeout")}
	provider.RegisterProvider(p)

	r := NewLLMRewriter("rewrite-err", "model-x", 6)
	query, filter := r.Rewrite(context.Background(), "original", nil)
	if query != "original" || filter != nil {
		t.Fatalf("expected raw fallback, got %q / %+v", query, filter)
	}
}

// TestRewriteParsesResponse 正常改写并净化 filter
func TestRewriteParsesResponse(t *testing.T) {
	p := &scriptedProvider{
		name:    "rewrite-ok",
		content: `这是改写结果：{"query": "泵 pump 维护 maintenance 周期 interval", "filter": {"source": "pump_manual.pdf"}}`,
	}
	provider.RegisterProvider(p)

	r := NewLLMRewriter("rewrite-ok", "model-x", 2)
	history := []Message{
		{Role: "user", Content: "turn1"},
		{Role: "assistant", Content: "turn2"},
		{Role: "user", Content: "turn3"},
	}

	query, filter := r.Rewrite(context.Background(), "它的维护周期", history)
	if query != "泵 pump 维护 maintenance 周期 interval" {
		t.Fatalf("unexpected rewritten query: %q", query)
	}
	if filter == nil || filter.Field != "metadata.source" || filter.Value != "pump_manual.pdf" {
		t.Fatalf("unexpected filter: %+v", filter)
	}

	// 历史截断到最近 2 条
	if p.lastReq == nil || len(p.lastReq.Messages) != 2 {
		t.Fatal("expected system + user messages")
	}
	userPrompt := p.lastReq.Messages[1].Content
	if strings.Contains(userPrompt, "turn1") {
		t.Error("history not truncated to max turns")
	}
	if !strings.Contains(userPrompt, "turn3") {
		t.Error("recent history missing from prompt")
	}
	t.Logf("✅ 改写解析与历史截断正确")
}

// TestSanitizeFilter 过滤条件净化：只接受封闭形态
func TestSanitizeFilter(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want *QueryFilter
	}{
		{"source 字段", `{"source": "a.pdf"}`, &QueryFilter{Field: "metadata.source", Value: "a.pdf"}},
		{"metadata.source 字段", `{"metadata.source": "b.pdf"}`, &QueryFilter{Field: "metadata.source", Value: "b.pdf"}},
		{"null", `null`, nil},
		{"未知字段", `{"category": "x"}`, nil},
		{"多字段", `{"source": "a.pdf", "page": "3"}`, nil},
		{"非字符串值", `{"source": 42}`, nil},
		{"嵌套结构", `{"source": {"eq": "a.pdf"}}`, nil},
		{"空字符串值", `{"source": "  "}`, nil},
		{"数组", `["source"]`, nil},
	}

	for _, tc := range cases {
		got := SanitizeFilter(json.RawMessage(tc.raw))
		if tc.want == nil {
			if got != nil {
				t.Errorf("%s: expected nil, got %+v", tc.name, got)
			}
			continue
		}
		if got == nil || got.Field != tc.want.Field || got.Value != tc.want.Value {
			t.Errorf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
	t.Logf("✅ filter 净化封闭形态正确")
}
