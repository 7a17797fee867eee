package services

import (
	"net/url"
	"regexp"
	"strings"
)

// Reference and academic hosts are accepted whenever the URL is a raster image.
var trustedImageDomains = []string{
	"wikipedia.org", "wikimedia.org", "wikibooks.org", "britannica.com", "khanacademy.org",
	"openstax.org", "nasa.gov", "nih.gov", "arxiv.org", "mozilla.org", "w3.org", "geeksforgeeks.org",
}

var trustedImageSuffixes = []string{".edu", ".gov", ".ac.uk", ".edu.au", ".ac.jp"}

var deniedImageHosts = []string{
	"facebook.com", "fbcdn.net", "instagram.com", "cdninstagram.com", "twitter.com", "twimg.com", "x.com",
	"tiktok.com", "tiktokcdn.com", "pinterest.com", "pinimg.com", "linkedin.com", "licdn.com",
	"gravatar.com", "redditmedia.com", "giphy.com",
}

var deniedImagePath = regexp.MustCompile(`(?i)(avatar|profile_images|profile-pic|/logo|logo[._-]|favicon|/icons?/|/emoji/|sprite)`)

var bingProxyHost = regexp.MustCompile(`^(th\.bing\.com|tse\d*\.mm\.bing\.net|tse\d*\.explicit\.bing\.net)$`)

// isProxyImageURL reports thumbnail-proxy shapes that expire quickly.
func isProxyImageURL(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if bingProxyHost.MatchString(host) {
		return true
	}
	if strings.HasSuffix(host, "bing.com") && strings.HasPrefix(u.Path, "/th") {
		return true
	}
	return strings.HasPrefix(host, "encrypted-tbn") && strings.HasSuffix(host, "gstatic.com")
}

func isVectorImage(u *url.URL) bool {
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".svg") || strings.HasSuffix(path, ".svgz") {
		return true
	}
	q := strings.ToLower(u.RawQuery)
	return strings.Contains(q, "format=svg") || strings.Contains(q, "fm=svg")
}

func isTrustedImageHost(host string) bool {
	for _, d := range trustedImageDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, s := range trustedImageSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// AcceptableImageURL decides whether an image URL may be shown to learners.
// Proxy thumbnails pass only when allowProxy is set.
func AcceptableImageURL(raw string, allowProxy bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if isVectorImage(u) {
		return false
	}
	if isProxyImageURL(u) {
		return allowProxy
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if isTrustedImageHost(host) {
		return true
	}
	for _, d := range deniedImageHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false
		}
	}
	return !deniedImagePath.MatchString(u.Path)
}
