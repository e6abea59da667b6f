package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/suPer8Hu/schoolhub/internal/config"
	"github.com/suPer8Hu/schoolhub/internal/metrics"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get builds the named provider and wraps it with call metrics.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	p, err := f(ctx, model)
	if err != nil {
		return nil, err
	}
	return &instrumented{name: name, model: model, next: p}, nil
}

// NewRegistryFromConfig registers every provider the deployment can select with AI_PROVIDER.
func NewRegistryFromConfig(cfg config.Config) *Registry {
	reg := NewRegistry()
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model,
			cfg.OpenRouterSiteURL, cfg.OpenRouterAppName, cfg.AITimeout), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider(cfg.OllamaBaseURL, model, cfg.AITimeout), nil
	})
	reg.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY is required")
		}
		return NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, model, cfg.AITimeout), nil
	})
	return reg
}

type instrumented struct {
	name  string
	model string
	next  Provider
}

func (p *instrumented) Chat(ctx context.Context, messages []Message) (*Completion, error) {
	start := time.Now()
	out, err := p.next.Chat(ctx, messages)
	metrics.ObserveAI(p.name, p.model, start, err)
	return out, err
}
