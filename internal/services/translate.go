package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
)

// Translator converts text between languages. Implementations must return
// usable text even when translation is impossible.
type Translator interface {
	Translate(ctx context.Context, text, targetLang, sourceLang string) (string, error)
}

// ProviderTranslator asks the content providers for plain translations.
type ProviderTranslator struct {
	registry *ProviderRegistry
	cache    *cache.Cache
	timeout  time.Duration
	log      *logger.Logger
}

func NewProviderTranslator(registry *ProviderRegistry, log *logger.Logger) *ProviderTranslator {
	if log == nil {
		log = logger.Nop()
	}
	return &ProviderTranslator{
		registry: registry,
		cache:    cache.New(time.Hour, 10*time.Minute),
		timeout:  20 * time.Second,
		log:      log.With("service", "Translator"),
	}
}

// Translate returns text in targetLang. On any failure it returns the
// original text and the error, so callers may ignore the error.
func (t *ProviderTranslator) Translate(ctx context.Context, text, targetLang, sourceLang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || targetLang == "" || strings.EqualFold(targetLang, sourceLang) {
		return text, nil
	}

	key := sourceLang + ">" + targetLang + ":" + text
	if v, ok := t.cache.Get(key); ok {
		return v.(string), nil
	}

	req := CompletionRequest{
		System:      "You are a translation engine. Reply with the translation only, no quotes or notes.",
		Prompt:      buildTranslatePrompt(text, targetLang, sourceLang),
		Temperature: 0.1,
		MaxTokens:   256,
	}

	var lastErr error = ErrProviderUnavailable
	for _, p := range t.registry.Ordered() {
		callCtx, cancel := context.WithTimeout(ctx, t.timeout)
		out, err := p.Complete(callCtx, req)
		cancel()
		if err != nil {
			lastErr = err
			t.log.Debug("translation failed", "provider", p.Name(), "error", err)
			continue
		}
		out = strings.Trim(strings.TrimSpace(out), `"'`)
		if out == "" {
			continue
		}
		t.cache.Set(key, out, cache.DefaultExpiration)
		return out, nil
	}

	return text, fmt.Errorf("translate to %s: %w", targetLang, lastErr)
}

func buildTranslatePrompt(text, targetLang, sourceLang string) string {
	var b strings.Builder
	if sourceLang != "" {
		b.WriteString(fmt.Sprintf("Translate the following text from %s to %s.\n", sourceLang, targetLang))
	} else {
		b.WriteString(fmt.Sprintf("Translate the following text to %s.\n", targetLang))
	}
	b.WriteString("Keep technical terms that are usually written in English as they are.\n\n")
	b.WriteString(text)
	return b.String()
}
