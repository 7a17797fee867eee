package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/scrape"
)

// Search surfaces. Tests point these at httptest servers.
var (
	googleImagesURL = "https://www.google.com/search"
	bingImagesURL   = "https://www.bing.com/images/search"
)

// blockedBackoff is the pause before the next fingerprint after a block.
var blockedBackoff = 800 * time.Millisecond

type imageBackend struct {
	name       string
	searchURL  func(query string) string
	strategies []ExtractionStrategy
	// proxyFallback allows expiring thumbnail proxies when nothing else was found.
	proxyFallback bool
}

func googleBackend() imageBackend {
	return imageBackend{
		name: "google",
		searchURL: func(q string) string {
			v := url.Values{}
			v.Set("q", q)
			v.Set("tbm", "isch")
			v.Set("safe", "active")
			v.Set("hl", "en")
			return googleImagesURL + "?" + v.Encode()
		},
		strategies: []ExtractionStrategy{googleInitDataStrategy{}, googleMetaStrategy{}, genericImgStrategy{}},
	}
}

func bingBackend() imageBackend {
	return imageBackend{
		name: "bing",
		searchURL: func(q string) string {
			v := url.Values{}
			v.Set("q", q)
			v.Set("form", "HDRSC2")
			v.Set("first", "1")
			v.Set("adlt", "strict")
			return bingImagesURL + "?" + v.Encode()
		},
		strategies:    []ExtractionStrategy{bingIuscStrategy{}, bingMurlStrategy{}, genericImgStrategy{}},
		proxyFallback: true,
	}
}

// ImageSearcher is the contract the enrichment stage depends on.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, n int) (provider string, results []models.SearchCandidate)
}

// ImageSearchEngine scrapes image search pages. It never returns an error:
// no result is a normal outcome.
type ImageSearchEngine struct {
	client       *scrape.Client
	backends     []imageBackend
	fingerprints []scrape.Fingerprint
	scorer       *RelevanceScorer
	cache        *cache.Cache
	log          *logger.Logger
}

type cachedImages struct {
	provider string
	results  []models.SearchCandidate
}

func NewImageSearchEngine(client *scrape.Client, scorer *RelevanceScorer, log *logger.Logger) *ImageSearchEngine {
	if log == nil {
		log = logger.Nop()
	}
	if scorer == nil {
		scorer = NewRelevanceScorer(DefaultRelevanceThresholds)
	}
	return &ImageSearchEngine{
		client:       client,
		backends:     []imageBackend{googleBackend(), bingBackend()},
		fingerprints: scrape.Fingerprints,
		scorer:       scorer,
		cache:        cache.New(30*time.Minute, 10*time.Minute),
		log:          log.With("service", "ImageSearchEngine"),
	}
}

// SearchImages returns up to n accepted candidates and the backend that
// produced them, or an empty provider and nil.
func (e *ImageSearchEngine) SearchImages(ctx context.Context, query string, n int) (string, []models.SearchCandidate) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	if n <= 0 {
		n = 1
	}

	key := fmt.Sprintf("%d|%s", n, strings.ToLower(query))
	if v, ok := e.cache.Get(key); ok {
		c := v.(cachedImages)
		return c.provider, append([]models.SearchCandidate(nil), c.results...)
	}

	var proxyPool []models.SearchCandidate
	proxyProvider := ""

	for _, b := range e.backends {
		if ctx.Err() != nil {
			break
		}
		cands := e.collect(ctx, b, query)
		if len(cands) == 0 {
			continue
		}

		if results := e.rank(query, cands, n, false); len(results) > 0 {
			e.log.Debug("image search hit", "backend", b.name, "query", query, "results", len(results))
			e.cache.Set(key, cachedImages{provider: b.name, results: results}, cache.DefaultExpiration)
			return b.name, results
		}
		if b.proxyFallback {
			proxyPool = append(proxyPool, cands...)
			proxyProvider = b.name
		}
	}

	// Last resort: thumbnail proxies. They may expire, but are better than nothing.
	if len(proxyPool) > 0 {
		if results := e.rank(query, proxyPool, n, true); len(results) > 0 {
			e.log.Debug("image search fell back to proxy thumbnails", "backend", proxyProvider, "query", query)
			e.cache.Set(key, cachedImages{provider: proxyProvider, results: results}, cache.DefaultExpiration)
			return proxyProvider, results
		}
	}

	e.log.Debug("image search found nothing", "query", query)
	return "", nil
}

// collect tries every fingerprint against the backend until one page yields
// candidates from any extraction strategy. Errors another fingerprint cannot
// fix end the backend early.
func (e *ImageSearchEngine) collect(ctx context.Context, b imageBackend, query string) []models.SearchCandidate {
	target := b.searchURL(query)
	for i, fp := range e.fingerprints {
		page, err := e.client.FetchHTML(ctx, target, fp)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Debug("image search request failed", "backend", b.name, "fingerprint", fp.Name, "error", err)
			if !scrape.IsRetryableError(err) {
				return nil
			}
			if errors.Is(err, scrape.ErrBlocked) && i < len(e.fingerprints)-1 {
				wait := scrape.JitterSleep(blockedBackoff)
				var se *scrape.StatusError
				if errors.As(err, &se) && se.RetryAfter > wait {
					wait = se.RetryAfter
				}
				if scrape.Sleep(ctx, wait) != nil {
					return nil
				}
			}
			continue
		}

		for _, s := range b.strategies {
			cands := dedupeCandidates(s.Extract(page))
			if len(cands) == 0 {
				continue
			}
			// Untitled results are labelled after the query, as the backend
			// returned them for it.
			for j := range cands {
				if cands[j].Title == "" {
					cands[j].Title = fmt.Sprintf("%s - Image %d", query, j+1)
				}
			}
			e.log.Debug("extraction strategy matched", "backend", b.name, "strategy", s.Name(), "candidates", len(cands))
			return cands
		}
	}
	return nil
}

func (e *ImageSearchEngine) rank(query string, cands []models.SearchCandidate, n int, allowProxy bool) []models.SearchCandidate {
	filtered := make([]models.SearchCandidate, 0, len(cands))
	for _, c := range cands {
		if AcceptableImageURL(c.URL, allowProxy) {
			filtered = append(filtered, c)
		}
	}
	return e.scorer.Rank(query, filtered, n)
}
