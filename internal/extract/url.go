package extract

import (
	"net/url"
	"regexp"
	"strings"
)

// WikiBaseURL is the origin relative wiki links are resolved against
const WikiBaseURL = "https://en.wikipedia.org"

var (
	articleURLRe    = regexp.MustCompile(`^https://en\.wikipedia\.org/wiki/`)
	namespacedURLRe = regexp.MustCompile(`^https://en\.wikipedia\.org/wiki/\w*:`)

	wikiBase, _ = url.Parse(WikiBaseURL + "/wiki/")
)

// IsArticleURL reports whether rawURL is an absolute English Wikipedia
// article URL outside any namespace such as Category: or Template:.
func IsArticleURL(rawURL string) bool {
	return articleURLRe.MatchString(rawURL) && !namespacedURLRe.MatchString(rawURL)
}

// AbsoluteURL rewrites root-relative and protocol-relative hrefs against
// the wiki origin. Fragment-only and absolute hrefs are returned unchanged.
func AbsoluteURL(href string) string {
	if href == "" || strings.HasPrefix(href, "#") {
		return href
	}
	parsed, err := url.Parse(href)
	if err != nil || parsed.IsAbs() {
		return href
	}
	return wikiBase.ResolveReference(parsed).String()
}

// StripFragment removes the #fragment part of a URL
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
