package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	yt "github.com/kkdai/youtube/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/scrape"
)

const (
	youtubeProvider  = "youtube"
	maxVideoResults  = 3
	apiVideoSurplus  = 10
	videoQuerySuffix = " tutorial education learning course lesson"
	// canaryVideoID is a long-lived public upload used to re-probe quota.
	canaryVideoID = "jNQXAC9IVRw"
)

// Tests point these at httptest servers. An empty endpoint keeps the
// client library's default.
var (
	youtubeAPIEndpoint = ""
	youtubeResultsURL  = "https://www.youtube.com/results"
)

// VideoSearcher is the contract the enrichment stage depends on.
type VideoSearcher interface {
	SearchVideos(ctx context.Context, topic string) []models.VideoResult
}

// videoDetailer fills duration and views for scraped results.
type videoDetailer interface {
	GetVideoContext(ctx context.Context, id string) (*yt.Video, error)
}

// YouTubeSearchEngine finds lesson videos through the Data API and, when
// the API is out of quota or unconfigured, the public results page.
type YouTubeSearchEngine struct {
	api     *youtube.Service
	details videoDetailer
	client  *scrape.Client
	quota   *QuotaTracker
	scorer  *RelevanceScorer
	log     *logger.Logger
}

func NewYouTubeSearchEngine(ctx context.Context, apiKey string, client *scrape.Client, quota *QuotaTracker, scorer *RelevanceScorer, log *logger.Logger) *YouTubeSearchEngine {
	if log == nil {
		log = logger.Nop()
	}
	if scorer == nil {
		scorer = NewRelevanceScorer(DefaultRelevanceThresholds)
	}
	if quota == nil {
		quota = NewQuotaTracker(0, nil, log)
	}
	e := &YouTubeSearchEngine{
		details: &yt.Client{},
		client:  client,
		quota:   quota,
		scorer:  scorer,
		log:     log.With("service", "YouTubeSearchEngine"),
	}

	if apiKey != "" {
		opts := []option.ClientOption{option.WithAPIKey(apiKey)}
		if youtubeAPIEndpoint != "" {
			opts = append(opts, option.WithEndpoint(youtubeAPIEndpoint))
		}
		svc, err := youtube.NewService(ctx, opts...)
		if err != nil {
			e.log.Warn("youtube data api disabled", "error", err)
		} else {
			e.api = svc
		}
	}
	return e
}

// SearchVideos returns at most three relevant videos. It never fails: an
// empty list is the worst case.
func (e *YouTubeSearchEngine) SearchVideos(ctx context.Context, topic string) []models.VideoResult {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	if e.api != nil && e.quota.Check(ctx, youtubeProvider, e.probe) {
		results, err := e.searchAPI(ctx, topic)
		switch {
		case err == nil && len(results) > 0:
			return results
		case isYouTubeQuotaError(err):
			e.quota.MarkExhausted(ctx, youtubeProvider)
		case err != nil:
			e.log.Warn("youtube api search failed", "topic", topic, "error", err)
		}
	}

	if e.client == nil {
		return nil
	}
	results, err := e.searchScrape(ctx, topic)
	if err != nil {
		e.log.Warn("youtube scrape failed", "topic", topic, "error", err)
		return nil
	}
	return results
}

func (e *YouTubeSearchEngine) probe(ctx context.Context) error {
	_, err := e.api.Videos.List([]string{"id"}).Id(canaryVideoID).Context(ctx).Do()
	if isYouTubeQuotaError(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (e *YouTubeSearchEngine) searchAPI(ctx context.Context, topic string) ([]models.VideoResult, error) {
	resp, err := e.api.Search.List([]string{"snippet"}).
		Q(topic + videoQuerySuffix).
		Type("video").
		MaxResults(apiVideoSurplus).
		Order("relevance").
		SafeSearch("strict").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	var results []models.VideoResult
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		if !e.scorer.AcceptVideo(topic, item.Snippet.Title, item.Snippet.Description) {
			continue
		}
		results = append(results, models.VideoResult{
			VideoID:      item.Id.VideoId,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelTitle: item.Snippet.ChannelTitle,
			ThumbnailURL: bestThumbnail(item.Snippet.Thumbnails),
			Source:       "api",
		})
		if len(results) == maxVideoResults {
			break
		}
	}
	if len(results) == 0 {
		return nil, nil
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.VideoID
	}
	details, err := e.api.Videos.List([]string{"contentDetails", "statistics"}).Id(ids...).Context(ctx).Do()
	if err != nil {
		// the search already succeeded, detail is optional
		if isYouTubeQuotaError(err) {
			e.quota.MarkExhausted(ctx, youtubeProvider)
		}
		e.log.Debug("youtube video details unavailable", "error", err)
		return results, nil
	}
	byID := make(map[string]*youtube.Video, len(details.Items))
	for _, v := range details.Items {
		byID[v.Id] = v
	}
	for i := range results {
		v, ok := byID[results[i].VideoID]
		if !ok {
			continue
		}
		if v.ContentDetails != nil {
			results[i].DurationSeconds = parseISODuration(v.ContentDetails.Duration)
		}
		if v.Statistics != nil {
			results[i].ViewCount = v.Statistics.ViewCount
		}
	}
	return results, nil
}

func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func isYouTubeQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "userRateLimitExceeded":
			return true
		}
	}
	return false
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration handles the PT#H#M#S shape the Data API returns.
func parseISODuration(s string) int {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		total += n * unit
	}
	return total
}

func (e *YouTubeSearchEngine) searchScrape(ctx context.Context, topic string) ([]models.VideoResult, error) {
	v := url.Values{}
	v.Set("search_query", topic+videoQuerySuffix)
	target := youtubeResultsURL + "?" + v.Encode()

	var page string
	var lastErr error
	for _, fp := range scrape.Fingerprints {
		p, err := e.client.FetchHTML(ctx, target, fp)
		if err == nil {
			page, lastErr = p, nil
			break
		}
		lastErr = err
		if ctx.Err() != nil || !scrape.IsRetryableError(err) {
			break
		}
		if errors.Is(err, scrape.ErrBlocked) && scrape.Sleep(ctx, scrape.JitterSleep(blockedBackoff)) != nil {
			break
		}
	}
	if errors.Is(lastErr, scrape.ErrBlocked) {
		return nil, fmt.Errorf("%w: %w", ErrSearchBlocked, lastErr)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	cands := extractInitialDataVideos(page)
	if len(cands) == 0 {
		cands = extractVideoRendererRegex(page)
	}

	var results []models.VideoResult
	seen := make(map[string]bool)
	for _, c := range cands {
		if seen[c.VideoID] || !e.scorer.AcceptVideo(topic, c.Title, c.Description) {
			continue
		}
		seen[c.VideoID] = true
		results = append(results, c)
		if len(results) == maxVideoResults {
			break
		}
	}

	for i := range results {
		if results[i].DurationSeconds > 0 && results[i].ViewCount > 0 {
			continue
		}
		e.fillDetails(ctx, &results[i])
	}
	return results, nil
}

func (e *YouTubeSearchEngine) fillDetails(ctx context.Context, r *models.VideoResult) {
	if e.details == nil {
		return
	}
	video, err := e.details.GetVideoContext(ctx, r.VideoID)
	if err != nil {
		e.log.Debug("video detail lookup failed", "video_id", r.VideoID, "error", err)
		return
	}
	if r.DurationSeconds == 0 {
		r.DurationSeconds = int(video.Duration.Seconds())
	}
	if r.ViewCount == 0 && video.Views > 0 {
		r.ViewCount = uint64(video.Views)
	}
	if r.ChannelTitle == "" {
		r.ChannelTitle = video.Author
	}
}

var initialDataRe = regexp.MustCompile(`(?s)ytInitialData\s*=\s*(\{.*?\});\s*(?:</script>|$|var |window\[)`)

// extractInitialDataVideos reads the ytInitialData JSON embedded in the
// results page and collects every videoRenderer in it.
func extractInitialDataVideos(page string) []models.VideoResult {
	doc := parseDoc(page)
	if doc == nil {
		return nil
	}
	var payload string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "ytInitialData") {
			return true
		}
		if m := initialDataRe.FindStringSubmatch(text); len(m) == 2 {
			payload = m[1]
			return false
		}
		return true
	})
	if payload == "" {
		return nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil
	}
	var out []models.VideoResult
	walkVideoRenderers(data, func(r map[string]interface{}) {
		if v, ok := videoFromRenderer(r); ok {
			out = append(out, v)
		}
	})
	return out
}

func walkVideoRenderers(node interface{}, fn func(map[string]interface{})) {
	switch n := node.(type) {
	case map[string]interface{}:
		if r, ok := n["videoRenderer"].(map[string]interface{}); ok {
			fn(r)
			return
		}
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkVideoRenderers(n[k], fn)
		}
	case []interface{}:
		for _, item := range n {
			walkVideoRenderers(item, fn)
		}
	}
}

func videoFromRenderer(r map[string]interface{}) (models.VideoResult, bool) {
	id, _ := r["videoId"].(string)
	title := textOf(r["title"])
	if id == "" || title == "" {
		return models.VideoResult{}, false
	}
	desc := textOf(r["descriptionSnippet"])
	if desc == "" {
		if snippets, ok := r["detailedMetadataSnippets"].([]interface{}); ok && len(snippets) > 0 {
			if s, ok := snippets[0].(map[string]interface{}); ok {
				desc = textOf(s["snippetText"])
			}
		}
	}

	v := models.VideoResult{
		VideoID:         id,
		Title:           title,
		Description:     desc,
		ChannelTitle:    textOf(r["ownerText"]),
		DurationSeconds: parseClockDuration(textOf(r["lengthText"])),
		ViewCount:       parseViewCount(textOf(r["viewCountText"])),
		Source:          "scrape",
	}
	if thumb, ok := r["thumbnail"].(map[string]interface{}); ok {
		if list, ok := thumb["thumbnails"].([]interface{}); ok && len(list) > 0 {
			if last, ok := list[len(list)-1].(map[string]interface{}); ok {
				v.ThumbnailURL, _ = last["url"].(string)
			}
		}
	}
	if v.ThumbnailURL == "" {
		v.ThumbnailURL = fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id)
	}
	return v, true
}

// textOf flattens YouTube's {simpleText} and {runs:[{text}]} shapes.
func textOf(v interface{}) string {
	m, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	if s, ok := m["simpleText"].(string); ok {
		return strings.TrimSpace(s)
	}
	runs, _ := m["runs"].([]interface{})
	var b strings.Builder
	for _, run := range runs {
		if r, ok := run.(map[string]interface{}); ok {
			s, _ := r["text"].(string)
			b.WriteString(s)
		}
	}
	return strings.TrimSpace(b.String())
}

// parseClockDuration turns "1:02:03" or "12:34" into seconds.
func parseClockDuration(s string) int {
	if s == "" {
		return 0
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

var digitsRe = regexp.MustCompile(`[0-9]`)

func parseViewCount(s string) uint64 {
	digits := strings.Join(digitsRe.FindAllString(s, -1), "")
	if digits == "" {
		return 0
	}
	n, _ := strconv.ParseUint(digits, 10, 64)
	return n
}

var videoRendererRe = regexp.MustCompile(`"videoRenderer":\{"videoId":"([\w-]{11})".*?"title":\{"runs":\[\{"text":"((?:[^"\\]|\\.)*)"`)

// extractVideoRendererRegex is the fallback when ytInitialData does not
// parse as JSON.
func extractVideoRendererRegex(page string) []models.VideoResult {
	var out []models.VideoResult
	for _, m := range videoRendererRe.FindAllStringSubmatch(page, -1) {
		title := m[2]
		if unq, err := strconv.Unquote(`"` + title + `"`); err == nil {
			title = unq
		}
		out = append(out, models.VideoResult{
			VideoID:      m[1],
			Title:        title,
			ThumbnailURL: fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", m[1]),
			Source:       "scrape",
		})
	}
	return out
}
