package services

import (
	"context"
	"errors"
	"time"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

// backoffBase is the first retry delay; each further retry doubles it.
var backoffBase = 2 * time.Second

type GeneratorOptions struct {
	MaxAttempts      int
	Backoff          time.Duration
	Temperature      float32
	RetryTemperature float32
	MaxTokens        int
}

func (o GeneratorOptions) withDefaults() GeneratorOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 2
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.7
	}
	if o.RetryTemperature <= 0 {
		o.RetryTemperature = 0.3
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	return o
}

// Generator drives provider selection, timeout retries and fallback.
type Generator struct {
	registry *ProviderRegistry
	opts     GeneratorOptions
	log      *logger.Logger
}

func NewGenerator(registry *ProviderRegistry, opts GeneratorOptions, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		registry: registry,
		opts:     opts.withDefaults(),
		log:      log.With("service", "Generator"),
	}
}

// Generate returns validated content from the first provider that produces
// it. When every provider fails the error is a *GenerationError naming each,
// including slots that were never configured.
func (g *Generator) Generate(ctx context.Context, spec models.LessonSpec) (*models.LessonContent, error) {
	providers := g.registry.Ordered()
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}

	system, prompt := BuildLessonPrompt(spec)
	failures := make(map[string]error, 2)
	for _, name := range g.registry.Missing() {
		failures[name] = &ProviderError{Provider: name, Kind: KindUnavailable, Err: errors.New("not configured")}
	}

	for _, p := range providers {
		content, err := g.generateWith(ctx, p, system, prompt)
		if err == nil {
			g.log.Info("lesson generated", "provider", p.Name(), "lesson", spec.LessonTitle)
			return content, nil
		}
		failures[p.Name()] = err
		g.log.Warn("provider failed, falling back", "provider", p.Name(), "kind", KindOf(err).String(), "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &GenerationError{Failures: failures}
}

// generateWith runs one provider to a parsed result. A parse or validation
// failure earns exactly one more call at the retry temperature.
func (g *Generator) generateWith(ctx context.Context, p Provider, system, prompt string) (*models.LessonContent, error) {
	req := CompletionRequest{
		System:      system,
		Prompt:      prompt,
		Temperature: g.opts.Temperature,
		MaxTokens:   g.opts.MaxTokens,
		JSON:        true,
	}

	retried := false
	for {
		raw, err := g.completeWithRetry(ctx, p, req)
		if err != nil {
			return nil, err
		}

		content, err := ParseLessonContent(raw)
		if err == nil {
			return content, nil
		}
		if retried || !IsContentError(err) {
			return nil, err
		}

		g.log.Warn("unusable model output, retrying once", "provider", p.Name(), "error", err)
		retried = true
		req.Temperature = g.opts.RetryTemperature
	}
}

// completeWithRetry retries timeouts only, with exponential backoff.
func (g *Generator) completeWithRetry(ctx context.Context, p Provider, req CompletionRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.opts.MaxAttempts; attempt++ {
		raw, err := g.callWithTimeout(ctx, p, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if KindOf(err) != KindTimeout || ctx.Err() != nil {
			return "", err
		}
		if attempt == g.opts.MaxAttempts {
			break
		}

		delay := g.backoff(attempt)
		g.log.Warn("provider timed out", "provider", p.Name(), "attempt", attempt, "retry_in", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

// callWithTimeout races the call against its deadline. On timeout the call
// is cancelled and abandoned; its late result is discarded.
func (g *Generator) callWithTimeout(ctx context.Context, p Provider, req CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.registry.Timeout(p.Name()))
	defer cancel()

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := p.Complete(callCtx, req)
		done <- result{raw: raw, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && KindOf(r.err) != KindTimeout {
			return "", &ProviderError{Provider: p.Name(), Kind: KindTimeout, Err: r.err}
		}
		return r.raw, r.err
	case <-callCtx.Done():
		kind := KindTimeout
		if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = KindUpstream
		}
		return "", &ProviderError{Provider: p.Name(), Kind: kind, Err: callCtx.Err()}
	}
}

func (g *Generator) backoff(attempt int) time.Duration {
	base := g.opts.Backoff
	if base <= 0 {
		base = backoffBase
	}
	return base << (attempt - 1)
}
