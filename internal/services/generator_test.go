package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

// fakeProvider answers from a script of responses; the last entry repeats.
type fakeProvider struct {
	name      string
	responses []fakeResponse

	mu    sync.Mutex
	calls int
	temps []float32
}

type fakeResponse struct {
	raw   string
	err   error
	block bool // wait for the call context to end
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.temps = append(f.temps, req.Temperature)
	f.mu.Unlock()

	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	if r.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.raw, r.err
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) Temperatures() []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float32(nil), f.temps...)
}

func withFastBackoff(t *testing.T) {
	t.Helper()
	prev := backoffBase
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = prev })
}

func newTestGenerator(primary, secondary Provider) *Generator {
	reg := &ProviderRegistry{
		Primary:   primary,
		Secondary: secondary,
		Timeouts:  map[string]time.Duration{},
	}
	if primary != nil {
		reg.Timeouts[primary.Name()] = 20 * time.Millisecond
	}
	if secondary != nil {
		reg.Timeouts[secondary.Name()] = 20 * time.Millisecond
	}
	return NewGenerator(reg, GeneratorOptions{MaxAttempts: 2}, nil)
}

var bstSpec = models.LessonSpec{
	CourseTitle:   "Data Structures",
	ModuleTitle:   "Trees",
	LessonTitle:   "Binary Search Trees",
	AudienceLevel: models.LevelBeginner,
	Language:      "en",
}

func TestGenerate_NoProviders(t *testing.T) {
	g := newTestGenerator(nil, nil)
	_, err := g.Generate(context.Background(), bstSpec)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGenerate_PrimaryHealthy(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

	content, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.NoError(t, err)

	assert.NotEmpty(t, content.TheoryMd)
	assert.GreaterOrEqual(t, len(content.Quiz.Questions), minQuestions)
	assert.LessOrEqual(t, len(content.Quiz.Questions), maxQuestions)
	for _, m := range content.Media {
		assert.Nil(t, m.URL)
	}
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
}

func TestGenerate_PrimaryTimesOutFallsBack(t *testing.T) {
	withFastBackoff(t)
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{block: true}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

	content, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.NoError(t, err)
	require.NotNil(t, content)

	assert.Equal(t, 2, primary.Calls(), "primary is attempted exactly the retry cap")
	assert.Equal(t, 1, secondary.Calls())
}

func TestGenerate_TimeoutRecoversOnRetry(t *testing.T) {
	withFastBackoff(t)
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{block: true}, {raw: validLessonJSON(t)}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

	_, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
}

func TestGenerate_AuthAndQuotaAreNotRetried(t *testing.T) {
	for _, kind := range []ErrorKind{KindAuth, KindQuota} {
		t.Run(kind.String(), func(t *testing.T) {
			primary := &fakeProvider{name: "primary", responses: []fakeResponse{
				{err: &ProviderError{Provider: "primary", Kind: kind, Err: errors.New("denied")}},
			}}
			secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

			_, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
			require.NoError(t, err)
			assert.Equal(t, 1, primary.Calls())
			assert.Equal(t, 1, secondary.Calls())
		})
	}
}

func TestGenerate_UnparseableTwiceFallsBack(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{raw: "Sorry, I cannot help with that."}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

	content, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.NoError(t, err)
	assert.NotEmpty(t, content.TheoryMd)

	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, []float32{0.7, 0.3}, primary.Temperatures(), "the retry runs at the lower temperature")
	assert.Equal(t, 1, secondary.Calls())
}

func TestGenerate_ParseRetrySucceedsOnSameProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{raw: "{broken"}, {raw: validLessonJSON(t)}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{{raw: validLessonJSON(t)}}}

	_, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.NoError(t, err)
	assert.Equal(t, 2, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
}

func TestGenerate_BothFailNamesBoth(t *testing.T) {
	withFastBackoff(t)
	primary := &fakeProvider{name: "primary", responses: []fakeResponse{{block: true}}}
	secondary := &fakeProvider{name: "secondary", responses: []fakeResponse{
		{err: &ProviderError{Provider: "secondary", Kind: KindAuth, Err: errors.New("bad key")}},
	}}

	_, err := newTestGenerator(primary, secondary).Generate(context.Background(), bstSpec)
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Len(t, genErr.Failures, 2)
	assert.Equal(t, KindTimeout, KindOf(genErr.Failures["primary"]))
	assert.Equal(t, KindAuth, KindOf(genErr.Failures["secondary"]))

	msg := err.Error()
	assert.True(t, strings.Contains(msg, "primary") && strings.Contains(msg, "secondary"), msg)
}

func TestBuildLessonPrompt(t *testing.T) {
	spec := bstSpec
	spec.Language = "es"
	spec.AudienceLevel = models.LevelAdvanced
	spec.LessonSummary = "Ordered trees for fast lookup"

	system, prompt := BuildLessonPrompt(spec)
	assert.Contains(t, system, "JSON")
	assert.Contains(t, prompt, "Binary Search Trees")
	assert.Contains(t, prompt, "Data Structures")
	assert.Contains(t, prompt, "Ordered trees for fast lookup")
	assert.Contains(t, prompt, "advanced")
	assert.Contains(t, prompt, "es")
	assert.Contains(t, prompt, `"answerIndex"`)
}

func TestGenerate_SingleProviderFailureNamesUnconfiguredSlot(t *testing.T) {
	tests := []struct {
		name      string
		primary   Provider
		secondary Provider
		failed    string
		missing   string
	}{
		{
			name:    "only primary configured",
			primary: &fakeProvider{name: "openai", responses: []fakeResponse{{raw: "not json"}}},
			failed:  "openai",
			missing: "gemini",
		},
		{
			name:      "only secondary configured",
			secondary: &fakeProvider{name: "gemini", responses: []fakeResponse{{raw: "not json"}}},
			failed:    "gemini",
			missing:   "openai",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestGenerator(tc.primary, tc.secondary).Generate(context.Background(), bstSpec)
			require.Error(t, err)

			var genErr *GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Len(t, genErr.Failures, 2)
			assert.Equal(t, KindParse, KindOf(genErr.Failures[tc.failed]))
			assert.Equal(t, KindUnavailable, KindOf(genErr.Failures[tc.missing]))
			assert.Contains(t, err.Error(), tc.missing+": ")
		})
	}
}
