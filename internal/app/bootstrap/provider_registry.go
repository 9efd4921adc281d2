package bootstrap

import (
	"docqa/internal/adapter/provider/llm/openai"
	applog "docqa/internal/platform/log"
	"docqa/internal/provider"
)

// RegisterLLMProviders registers configured LLM providers.
func RegisterLLMProviders(apiKey, baseURL string) {
	if apiKey == "" {
		applog.Warn("⚠️  No OPENAI_API_KEY set, query rewrite and rerank will be disabled")
		return
	}

	p := openai.New(openai.Config{
		APIKey:  apiKey,
		BaseURL: baseURL,
	})
	provider.RegisterProvider(p)
	applog.Infof("✅ Registered LLM provider: %s (base: %s)", p.Name(), baseURL)
}
