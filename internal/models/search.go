package models

// SearchCandidate is a scraped image result. It is scored and discarded,
// never persisted.
type SearchCandidate struct {
	URL     string   `json:"url"`
	Title   string   `json:"title"`
	Snippet string   `json:"snippet"`
	Domain  string   `json:"domain"`
	Tags    []string `json:"tags,omitempty"`
	Score   int      `json:"score"`
}

type VideoResult struct {
	VideoID         string `json:"video_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	ChannelTitle    string `json:"channel_title"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
	ViewCount       uint64 `json:"view_count"`
	Source          string `json:"source"` // "api" | "scrape"
}

func (v VideoResult) WatchURL() string {
	return "https://www.youtube.com/watch?v=" + v.VideoID
}
