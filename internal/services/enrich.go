package services

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

const (
	genericImageSuffix = "educational diagram infographic"
	promptTopicTerms   = 3
)

type EnricherOptions struct {
	SearchLanguage string
	Concurrency    int
}

// Enricher resolves media placeholders to real image and video URLs.
type Enricher struct {
	images     ImageSearcher
	videos     VideoSearcher
	translator Translator
	opts       EnricherOptions
	log        *logger.Logger
}

func NewEnricher(images ImageSearcher, videos VideoSearcher, translator Translator, opts EnricherOptions, log *logger.Logger) *Enricher {
	if log == nil {
		log = logger.Nop()
	}
	if opts.SearchLanguage == "" {
		opts.SearchLanguage = "en"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	return &Enricher{
		images:     images,
		videos:     videos,
		translator: translator,
		opts:       opts,
		log:        log.With("service", "Enricher"),
	}
}

type resolvedImage struct {
	url   string
	title string
}

// Enrich returns a copy of content with image URLs resolved, video results
// merged in and every unresolved or unacceptable item dropped. Text fields
// are never touched and no failure is returned.
func (e *Enricher) Enrich(ctx context.Context, content *models.LessonContent, spec models.LessonSpec) *models.LessonContent {
	out := content.Clone()
	if out == nil {
		return nil
	}
	start := time.Now()

	resolved := make([]*resolvedImage, len(out.Media))
	var videos []models.VideoResult

	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	if e.videos != nil {
		g.Go(func() error {
			videos = e.videos.SearchVideos(ctx, e.searchText(ctx, spec.LessonTitle, spec.Language))
			return nil
		})
	}

	if e.images != nil {
		for i, item := range out.Media {
			if item.Type != models.MediaImage || item.URL != nil {
				continue
			}
			prompts := e.candidatePrompts(item, out, spec)
			g.Go(func() error {
				resolved[i] = e.resolveImage(ctx, prompts, spec.Language)
				return nil
			})
		}
	}
	g.Wait()

	media := make([]models.MediaItem, 0, len(out.Media)+len(videos))
	for i, item := range out.Media {
		if item.Type == models.MediaVideo {
			// replaced by search results below
			continue
		}
		if r := resolved[i]; r != nil {
			u := r.url
			item.URL = &u
			if r.title != "" {
				item.Title = r.title
			}
		}
		media = append(media, item)
	}
	for i, v := range videos {
		if i == maxVideoResults {
			break
		}
		u := v.WatchURL()
		media = append(media, models.MediaItem{
			Type:   models.MediaVideo,
			URL:    &u,
			Alt:    v.Title,
			Prompt: spec.LessonTitle,
			Title:  v.Title,
		})
	}

	out.Media = filterMedia(media)
	e.log.Info("media enrichment finished",
		"lesson", spec.LessonTitle,
		"media", len(out.Media),
		"videos", countVideos(out.Media),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// candidatePrompts lists the searches for one image in priority order.
func (e *Enricher) candidatePrompts(item models.MediaItem, content *models.LessonContent, spec models.LessonSpec) []string {
	var prompts []string
	seen := map[string]bool{}
	add := func(p string) {
		p = strings.Join(strings.Fields(p), " ")
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			return
		}
		seen[key] = true
		prompts = append(prompts, p)
	}

	add(item.Prompt)
	if item.Prompt != "" {
		if terms := lessonTopicTerms(content, item.Prompt, promptTopicTerms); len(terms) > 0 {
			add(item.Prompt + " " + strings.Join(terms, " "))
		}
	}
	add(strings.Join([]string{spec.LessonTitle, spec.CourseTitle, genericImageSuffix}, " "))
	return prompts
}

func (e *Enricher) resolveImage(ctx context.Context, prompts []string, lang string) *resolvedImage {
	for _, p := range prompts {
		if ctx.Err() != nil {
			return nil
		}
		query := e.searchText(ctx, p, lang)
		provider, results := e.images.SearchImages(ctx, query, 1)
		if len(results) == 0 {
			e.log.Debug("image prompt found nothing", "query", query)
			continue
		}
		e.log.Debug("image resolved", "query", query, "provider", provider, "url", results[0].URL)
		return &resolvedImage{url: results[0].URL, title: results[0].Title}
	}
	return nil
}

// searchText translates text into the search language when the lesson is
// written in another one. Translation failures keep the original text.
func (e *Enricher) searchText(ctx context.Context, text, lang string) string {
	if e.translator == nil || lang == "" || strings.EqualFold(lang, e.opts.SearchLanguage) {
		return text
	}
	translated, err := e.translator.Translate(ctx, text, e.opts.SearchLanguage, lang)
	if err != nil {
		e.log.Debug("search text left untranslated", "lang", lang, "error", err)
	}
	if strings.TrimSpace(translated) == "" {
		return text
	}
	return translated
}

// lessonTopicTerms picks the most frequent substantive words of the
// generated theory and example that the prompt does not already contain.
func lessonTopicTerms(content *models.LessonContent, prompt string, n int) []string {
	skip := map[string]bool{}
	for _, t := range tokenize(prompt) {
		skip[t] = true
	}

	counts := map[string]int{}
	first := map[string]int{}
	for i, tok := range tokenize(content.TheoryMd + " " + content.ExampleMd) {
		if len(tok) < 4 || stopwords[tok] || skip[tok] || isNumeric(tok) {
			continue
		}
		if _, ok := first[tok]; !ok {
			first[tok] = i
		}
		counts[tok]++
	}

	terms := make([]string, 0, len(counts))
	for t, c := range counts {
		if c >= 2 {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return first[terms[i]] < first[terms[j]]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func countVideos(media []models.MediaItem) int {
	n := 0
	for _, m := range media {
		if m.Type == models.MediaVideo {
			n++
		}
	}
	return n
}

// filterMedia drops unresolved items and URLs that are known dead-link
// shapes or disallowed hosts. Thumbnail proxies survive here, since the
// image engine only returns them as a last resort.
func filterMedia(in []models.MediaItem) []models.MediaItem {
	out := make([]models.MediaItem, 0, len(in))
	for _, m := range in {
		if m.URL == nil || *m.URL == "" {
			continue
		}
		switch m.Type {
		case models.MediaImage:
			if !AcceptableImageURL(*m.URL, true) {
				continue
			}
		case models.MediaVideo:
			u, err := url.Parse(*m.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				continue
			}
		default:
			continue
		}
		out = append(out, m)
	}
	return out
}
