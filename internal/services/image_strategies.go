package services

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
	"github.com/surajweb2603/ai-course-sub000/internal/scrape"
)

// ExtractionStrategy pulls image candidates out of one known HTML shape.
type ExtractionStrategy interface {
	Name() string
	Extract(page string) []models.SearchCandidate
}

func newCandidate(rawURL, title, snippet string) models.SearchCandidate {
	rawURL = unescapeJSURL(rawURL)
	return models.SearchCandidate{
		URL:     rawURL,
		Title:   strings.TrimSpace(html.UnescapeString(title)),
		Snippet: strings.TrimSpace(html.UnescapeString(snippet)),
		Domain:  scrape.Domain(rawURL),
	}
}

func unescapeJSURL(s string) string {
	s = strings.ReplaceAll(s, `\u003d`, "=")
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return html.UnescapeString(strings.TrimSpace(s))
}

func parseDoc(page string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}
	return doc
}

// googleInitDataStrategy reads the ["url",height,width] triples embedded in
// Google's AF_initDataCallback payloads.
type googleInitDataStrategy struct{}

var (
	initDataImageRe = regexp.MustCompile(`\["(https?://[^"]+?)",(\d+),(\d+)\]`)
	initDataTitleRe = regexp.MustCompile(`"2003":\[null,"[^"]*","(https?://[^"]+)","([^"]+)"`)
)

func (googleInitDataStrategy) Name() string { return "google-initdata" }

func (googleInitDataStrategy) Extract(page string) []models.SearchCandidate {
	var out []models.SearchCandidate
	matches := initDataImageRe.FindAllStringSubmatchIndex(page, -1)
	for i, loc := range matches {
		imgURL := page[loc[2]:loc[3]]
		if strings.Contains(imgURL, "gstatic.com") || strings.Contains(imgURL, "google.com") {
			continue
		}

		// the result's title follows the image triple within the same entry;
		// the next triple starts another entry
		var title, source string
		end := min(len(page), loc[1]+3000)
		if i+1 < len(matches) && matches[i+1][0] < end {
			end = matches[i+1][0]
		}
		window := page[loc[1]:end]
		if m := initDataTitleRe.FindStringSubmatch(window); len(m) == 3 {
			source, title = m[1], m[2]
		}
		c := newCandidate(imgURL, title, "")
		if source != "" {
			c.Tags = []string{scrape.Domain(unescapeJSURL(source))}
		}
		out = append(out, c)
	}
	return out
}

// googleMetaStrategy reads the JSON blobs of the older div.rg_meta layout.
type googleMetaStrategy struct{}

func (googleMetaStrategy) Name() string { return "google-rg-meta" }

func (googleMetaStrategy) Extract(page string) []models.SearchCandidate {
	doc := parseDoc(page)
	if doc == nil {
		return nil
	}
	var out []models.SearchCandidate
	doc.Find("div.rg_meta").Each(func(_ int, s *goquery.Selection) {
		var meta struct {
			OU string `json:"ou"`
			PT string `json:"pt"`
			S  string `json:"s"`
			RU string `json:"ru"`
		}
		if err := json.Unmarshal([]byte(s.Text()), &meta); err != nil || meta.OU == "" {
			return
		}
		out = append(out, newCandidate(meta.OU, meta.PT, meta.S))
	})
	return out
}

// bingIuscStrategy reads the "m" attribute JSON on Bing's a.iusc anchors.
// The thumbnail proxy URL is kept as a separate, later candidate.
type bingIuscStrategy struct{}

func (bingIuscStrategy) Name() string { return "bing-iusc" }

func (bingIuscStrategy) Extract(page string) []models.SearchCandidate {
	doc := parseDoc(page)
	if doc == nil {
		return nil
	}
	var direct, proxies []models.SearchCandidate
	doc.Find("a.iusc").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("m")
		if !ok {
			return
		}
		var meta struct {
			MURL string `json:"murl"`
			TURL string `json:"turl"`
			T    string `json:"t"`
			Desc string `json:"desc"`
		}
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return
		}
		if meta.MURL != "" {
			direct = append(direct, newCandidate(meta.MURL, meta.T, meta.Desc))
		}
		if meta.TURL != "" {
			proxies = append(proxies, newCandidate(meta.TURL, meta.T, meta.Desc))
		}
	})
	return append(direct, proxies...)
}

// bingMurlStrategy scans for murl/turl fields when the markup is not parseable
// as anchors, in both entity-encoded and plain JSON form.
type bingMurlStrategy struct{}

var (
	bingMurlRe = regexp.MustCompile(`(?:&quot;|")murl(?:&quot;|"):(?:&quot;|")(https?://.*?)(?:&quot;|")`)
	bingTurlRe = regexp.MustCompile(`(?:&quot;|")turl(?:&quot;|"):(?:&quot;|")(https?://.*?)(?:&quot;|")`)
	bingTRe    = regexp.MustCompile(`(?:&quot;|")t(?:&quot;|"):(?:&quot;|")(.*?)(?:&quot;|")`)
)

func (bingMurlStrategy) Name() string { return "bing-murl-regex" }

func (bingMurlStrategy) Extract(page string) []models.SearchCandidate {
	var direct, proxies []models.SearchCandidate
	for _, loc := range bingMurlRe.FindAllStringSubmatchIndex(page, -1) {
		title := ""
		window := page[loc[1]:min(len(page), loc[1]+1500)]
		if m := bingTRe.FindStringSubmatch(window); len(m) == 2 {
			title = m[1]
		}
		direct = append(direct, newCandidate(page[loc[2]:loc[3]], title, ""))
	}
	for _, m := range bingTurlRe.FindAllStringSubmatch(page, -1) {
		proxies = append(proxies, newCandidate(m[1], "", ""))
	}
	return append(direct, proxies...)
}

// genericImgStrategy falls back to plain <img> tags.
type genericImgStrategy struct{}

func (genericImgStrategy) Name() string { return "generic-img" }

func (genericImgStrategy) Extract(page string) []models.SearchCandidate {
	doc := parseDoc(page)
	if doc == nil {
		return nil
	}
	var out []models.SearchCandidate
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"data-iurl", "data-src", "src"} {
			v, ok := s.Attr(attr)
			if !ok || !strings.HasPrefix(v, "http") {
				continue
			}
			alt, _ := s.Attr("alt")
			out = append(out, newCandidate(v, alt, ""))
			return
		}
	})
	return out
}

func dedupeCandidates(in []models.SearchCandidate) []models.SearchCandidate {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, c := range in {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}
