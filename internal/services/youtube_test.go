package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surajweb2603/ai-course-sub000/internal/scrape"
)

const youtubeResultsPage = `<html><head><title>YouTube</title></head><body>
<script nonce="n">var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[
{"videoRenderer":{"videoId":"aaaaaaaaaaa","title":{"runs":[{"text":"Binary Search Tree Tutorial for Beginners"}]},"lengthText":{"simpleText":"12:34"},"viewCountText":{"simpleText":"1,234,567 views"},"ownerText":{"runs":[{"text":"CS Channel"}]},"thumbnail":{"thumbnails":[{"url":"https://i.ytimg.com/vi/aaaaaaaaaaa/default.jpg"},{"url":"https://i.ytimg.com/vi/aaaaaaaaaaa/hq.jpg"}]}}},
{"videoRenderer":{"videoId":"bbbbbbbbbbb","title":{"runs":[{"text":"Funny cat compilation"}]}}},
{"videoRenderer":{"videoId":"ccccccccccc","title":{"runs":[{"text":"Binary search trees "},{"text":"explained"}]},"lengthText":{"simpleText":"1:02:03"},"viewCountText":{"simpleText":"987 views"}}}
]}}]}}}}};</script>
</body></html>`

const youtubeRegexOnlyPage = `<html><body><script>window["ytInitialData"] = broken{"videoRenderer":{"videoId":"ddddddddddd","thumbnail":{},"title":{"runs":[{"text":"Binary search tree insertion tutorial"}]}}</script></body></html>`

// youtubeServers fakes the Data API and the public results page.
func youtubeServers(t *testing.T, search, videos http.HandlerFunc, results http.HandlerFunc) (apiHits *int32) {
	t.Helper()
	apiHits = new(int32)

	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(apiHits, 1)
		search(w, r)
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(apiHits, 1)
		videos(w, r)
	})
	api := httptest.NewServer(mux)
	site := httptest.NewServer(results)
	t.Cleanup(api.Close)
	t.Cleanup(site.Close)

	prevAPI, prevResults, prevBackoff := youtubeAPIEndpoint, youtubeResultsURL, blockedBackoff
	youtubeAPIEndpoint, youtubeResultsURL, blockedBackoff = api.URL+"/", site.URL+"/results", 0
	t.Cleanup(func() {
		youtubeAPIEndpoint, youtubeResultsURL, blockedBackoff = prevAPI, prevResults, prevBackoff
	})
	return apiHits
}

func serveJSON(v interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func serveQuotaExceeded(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.","errors":[{"message":"quota","domain":"youtube.quota","reason":"quotaExceeded"}]}}`))
}

func newTestVideoEngine(t *testing.T, apiKey string, quota *QuotaTracker) *YouTubeSearchEngine {
	t.Helper()
	e := NewYouTubeSearchEngine(context.Background(), apiKey, scrape.NewClient(2*time.Second, nil), quota, nil, nil)
	e.details = nil
	return e
}

func TestSearchVideos_API(t *testing.T) {
	search := serveJSON(map[string]interface{}{
		"items": []map[string]interface{}{
			{"id": map[string]string{"videoId": "v1"}, "snippet": map[string]interface{}{
				"title": "Binary Search Tree Tutorial", "description": "insert and search", "channelTitle": "CS",
				"thumbnails": map[string]interface{}{"high": map[string]string{"url": "https://i.ytimg.com/vi/v1/hq.jpg"}},
			}},
			{"id": map[string]string{"videoId": "v2"}, "snippet": map[string]interface{}{"title": "Top 10 movie trailers"}},
			{"id": map[string]string{"videoId": "v3"}, "snippet": map[string]interface{}{"title": "Binary search trees in Java"}},
		},
	})
	videos := serveJSON(map[string]interface{}{
		"items": []map[string]interface{}{
			{"id": "v1", "contentDetails": map[string]string{"duration": "PT12M5S"}, "statistics": map[string]string{"viewCount": "4200"}},
		},
	})
	var scraped int32
	apiHits := youtubeServers(t, search, videos, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&scraped, 1)
	})

	results := newTestVideoEngine(t, "test-key", nil).SearchVideos(context.Background(), "binary search tree")
	require.Len(t, results, 2)
	assert.Equal(t, "v1", results[0].VideoID)
	assert.Equal(t, "api", results[0].Source)
	assert.Equal(t, 725, results[0].DurationSeconds)
	assert.EqualValues(t, 4200, results[0].ViewCount)
	assert.Equal(t, "https://i.ytimg.com/vi/v1/hq.jpg", results[0].ThumbnailURL)
	assert.Equal(t, "v3", results[1].VideoID)
	assert.EqualValues(t, 2, atomic.LoadInt32(apiHits))
	assert.Zero(t, atomic.LoadInt32(&scraped))
}

func TestSearchVideos_QuotaExceededSkipsAPIUntilWindowElapses(t *testing.T) {
	apiHits := youtubeServers(t, serveQuotaExceeded, serveQuotaExceeded, servePage(youtubeResultsPage))
	quota, clock := newTestTracker(nil)
	e := newTestVideoEngine(t, "test-key", quota)
	ctx := context.Background()

	results := e.SearchVideos(ctx, "binary search tree")
	require.Len(t, results, 2)
	assert.Equal(t, "scrape", results[0].Source)
	assert.EqualValues(t, 1, atomic.LoadInt32(apiHits))
	assert.False(t, quota.State(ctx, youtubeProvider).Available)

	clock.Advance(time.Hour)
	results = e.SearchVideos(ctx, "binary search tree")
	require.Len(t, results, 2)
	assert.EqualValues(t, 1, atomic.LoadInt32(apiHits), "no metered call inside the window")

	// after the window the canary probe runs, still exhausted
	clock.Advance(24 * time.Hour)
	e.SearchVideos(ctx, "binary search tree")
	assert.EqualValues(t, 2, atomic.LoadInt32(apiHits))
	assert.False(t, quota.State(ctx, youtubeProvider).Available)
}

func TestSearchVideos_ScrapeWithoutAPIKey(t *testing.T) {
	apiHits := youtubeServers(t, serveQuotaExceeded, serveQuotaExceeded, servePage(youtubeResultsPage))

	results := newTestVideoEngine(t, "", nil).SearchVideos(context.Background(), "binary search tree")
	require.Len(t, results, 2)
	assert.Zero(t, atomic.LoadInt32(apiHits))

	first := results[0]
	assert.Equal(t, "aaaaaaaaaaa", first.VideoID)
	assert.Equal(t, "Binary Search Tree Tutorial for Beginners", first.Title)
	assert.Equal(t, "CS Channel", first.ChannelTitle)
	assert.Equal(t, 754, first.DurationSeconds)
	assert.EqualValues(t, 1234567, first.ViewCount)
	assert.Equal(t, "https://i.ytimg.com/vi/aaaaaaaaaaa/hq.jpg", first.ThumbnailURL)

	assert.Equal(t, "ccccccccccc", results[1].VideoID)
	assert.Equal(t, "Binary search trees explained", results[1].Title)
	assert.Equal(t, 3723, results[1].DurationSeconds)
}

func TestSearchVideos_TotalFailureIsEmpty(t *testing.T) {
	youtubeServers(t, serveQuotaExceeded, serveQuotaExceeded, serveStatus(http.StatusServiceUnavailable))

	results := newTestVideoEngine(t, "test-key", nil).SearchVideos(context.Background(), "binary search tree")
	assert.Empty(t, results)
}

func TestSearchScrape_FailureHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		hits    int
		blocked bool
	}{
		{"rate limited rotates every fingerprint", http.StatusTooManyRequests, len(scrape.Fingerprints), true},
		{"server error rotates every fingerprint", http.StatusBadGateway, len(scrape.Fingerprints), false},
		{"not found stops at once", http.StatusNotFound, 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var hits int32
			youtubeServers(t, serveQuotaExceeded, serveQuotaExceeded, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tc.status)
			})

			_, err := newTestVideoEngine(t, "", nil).searchScrape(context.Background(), "binary search tree")
			require.Error(t, err)
			assert.Equal(t, tc.blocked, errors.Is(err, ErrSearchBlocked), "got %v", err)
			assert.EqualValues(t, tc.hits, atomic.LoadInt32(&hits))
		})
	}
}

func TestExtractVideoRendererRegex(t *testing.T) {
	assert.Empty(t, extractInitialDataVideos(youtubeRegexOnlyPage))

	got := extractVideoRendererRegex(youtubeRegexOnlyPage)
	require.Len(t, got, 1)
	assert.Equal(t, "ddddddddddd", got[0].VideoID)
	assert.Equal(t, "Binary search tree insertion tutorial", got[0].Title)
}

func TestDurationParsers(t *testing.T) {
	assert.Equal(t, 3723, parseISODuration("PT1H2M3S"))
	assert.Equal(t, 45, parseISODuration("PT45S"))
	assert.Equal(t, 86400+60, parseISODuration("P1DT1M"))
	assert.Equal(t, 0, parseISODuration("garbage"))

	assert.Equal(t, 754, parseClockDuration("12:34"))
	assert.Equal(t, 0, parseClockDuration("LIVE"))
	assert.EqualValues(t, 987, parseViewCount("987 views"))
	assert.EqualValues(t, 0, parseViewCount("No views"))
}

func TestIsYouTubeQuotaError(t *testing.T) {
	assert.False(t, isYouTubeQuotaError(nil))
	assert.False(t, isYouTubeQuotaError(context.DeadlineExceeded))
}
