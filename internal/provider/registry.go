package provider

import (
	"fmt"
	"sync"
)

// registry 进程内 LLM 供应商注册表。
// 改写器和重排器按名字取供应商，启动时注册一次，之后只读。
type registry struct {
	mu        sync.RWMutex
	providers map[string]LLMProvider
}

var defaultRegistry = &registry{
	providers: make(map[string]LLMProvider),
}

// RegisterProvider 注册 LLM 供应商，同名覆盖
func RegisterProvider(p LLMProvider) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.providers[p.Name()] = p
}

// GetProvider 按名字获取 LLM 供应商
func GetProvider(name string) (LLMProvider, error) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	p, ok := defaultRegistry.providers[name]
	if !ok {
		return nil, fmt.Errorf("LLM provider not found: %s", name)
	}
	return p, nil
}

// HasProvider 供应商是否已注册。
// 启动时用来决定是否挂载改写/重排环节，避免配置开了开关但没有可用供应商。
func HasProvider(name string) bool {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	_, ok := defaultRegistry.providers[name]
	return ok
}

// ListProviders 列出所有已注册供应商
func ListProviders() []string {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	names := make([]string, 0, len(defaultRegistry.providers))
	for name := range defaultRegistry.providers {
		names = append(names, name)
	}
	return names
}
