package services

import (
	"context"
	"time"

	"github.com/surajweb2603/ai-course-sub000/internal/config"
	"github.com/surajweb2603/ai-course-sub000/internal/logger"
)

const defaultProviderTimeout = 120 * time.Second

// Slot names, used when a slot has no provider to name itself.
const (
	primaryProviderName   = "openai"
	secondaryProviderName = "gemini"
)

// CompletionRequest is the provider-agnostic shape of one model call.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	JSON        bool
}

// Provider is one content-generation backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderRegistry holds the configured providers in fallback order. A slot
// without credentials stays nil.
type ProviderRegistry struct {
	Primary   Provider
	Secondary Provider
	Timeouts  map[string]time.Duration
}

// NewProviderRegistry builds the providers once at startup. A provider that
// fails to initialise is logged and left out.
func NewProviderRegistry(ctx context.Context, cfg *config.Config, log *logger.Logger) *ProviderRegistry {
	reg := &ProviderRegistry{Timeouts: map[string]time.Duration{}}

	if cfg.OpenAIAPIKey != "" {
		p := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		reg.Primary = p
		reg.Timeouts[p.Name()] = cfg.OpenAITimeout
	}

	if cfg.GeminiAPIKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn("gemini provider disabled", "error", err)
		} else {
			reg.Secondary = p
			reg.Timeouts[p.Name()] = cfg.GeminiTimeout
		}
	}

	return reg
}

// Ordered returns the configured providers, primary first.
func (r *ProviderRegistry) Ordered() []Provider {
	if r == nil {
		return nil
	}
	var out []Provider
	if r.Primary != nil {
		out = append(out, r.Primary)
	}
	if r.Secondary != nil {
		out = append(out, r.Secondary)
	}
	return out
}

// Missing names the slots left empty for lack of credentials.
func (r *ProviderRegistry) Missing() []string {
	if r == nil {
		return []string{primaryProviderName, secondaryProviderName}
	}
	var out []string
	if r.Primary == nil {
		out = append(out, primaryProviderName)
	}
	if r.Secondary == nil {
		out = append(out, secondaryProviderName)
	}
	return out
}

func (r *ProviderRegistry) Timeout(name string) time.Duration {
	if r != nil {
		if d, ok := r.Timeouts[name]; ok && d > 0 {
			return d
		}
	}
	return defaultProviderTimeout
}

// Close releases provider clients that hold connections.
func (r *ProviderRegistry) Close() {
	for _, p := range r.Ordered() {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
