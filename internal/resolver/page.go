package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/matthewjhunter/podhub/internal/errs"
)

// pageStrategy fetches an arbitrary page. A feed document is accepted as-is;
// HTML is scanned for any embedded feed marker.
type pageStrategy struct{}

var feedContentTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/rdf+xml":  true,
	"application/xml":      true,
	"text/xml":             true,
}

// Keys that hold a feed URL in embedded JSON.
var feedKeys = map[string]bool{
	"feedurl":  true,
	"feed_url": true,
	"rssurl":   true,
	"rss_url":  true,
	"webfeed":  true,
}

var (
	metaFeedNames  = []string{"podcast:feed", "rss", "feed", "og:rss", "twitter:podcast:feed"}
	dataFeedAttrs  = []string{"data-feed-url", "data-rss-url", "data-feed", "data-rss"}
	scriptKeyRegex = regexp.MustCompile(`(?i)"(?:feedUrl|feed_url|rssUrl|rss_url|webFeed)"\s*:\s*("(?:[^"\\]|\\.)*")`)
)

func (pageStrategy) Name() string { return "page" }

func (pageStrategy) Match(*url.URL) bool { return true }

func (pageStrategy) Resolve(ctx context.Context, get Getter, u *url.URL) (*FeedRef, error) {
	resp, err := get.Get(ctx, u.String(), http.Header{
		"Accept": {"text/html,application/rss+xml,application/atom+xml;q=0.9,*/*;q=0.8"},
	})
	if err != nil {
		return nil, err
	}

	if isFeedDocument(resp.ContentType, resp.Body) {
		return &FeedRef{FeedURL: resp.URL, Platform: "direct"}, nil
	}

	base, err := url.Parse(resp.URL)
	if err != nil {
		base = u
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, errs.Wrap(errs.ResolutionNotFound, err, "unreadable page %s", u)
	}

	for _, candidate := range feedCandidates(doc) {
		if abs := absoluteHTTP(base, candidate); abs != "" {
			return &FeedRef{
				FeedURL:  abs,
				Title:    metaContent(doc, "og:title"),
				CoverURL: metaContent(doc, "og:image"),
			}, nil
		}
	}
	return nil, errs.New(errs.ResolutionNotFound, "no feed reference found on %s", u)
}

// feedCandidates collects every feed marker in the document. Each marker
// kind is searched across the whole tree, so element order does not matter.
func feedCandidates(doc *goquery.Document) []string {
	var out []string

	doc.Find(`link[rel~="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		t := strings.ToLower(s.AttrOr("type", ""))
		if strings.Contains(t, "rss") || strings.Contains(t, "atom") {
			out = append(out, s.AttrOr("href", ""))
		}
	})

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		for _, n := range metaFeedNames {
			if key == n {
				out = append(out, s.AttrOr("content", ""))
				return
			}
		}
	})

	for _, attr := range dataFeedAttrs {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			out = append(out, s.AttrOr(attr, ""))
		})
	}

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		out = append(out, scriptFeedURLs(s.Text())...)
	})

	return out
}

// scriptFeedURLs pulls feed URLs from a script body. JSON bodies (JSON-LD,
// hydration state) are walked structurally; anything else is pattern-scanned.
func scriptFeedURLs(body string) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err == nil {
		var found []string
		walkJSON(v, &found)
		return found
	}

	var found []string
	for _, m := range scriptKeyRegex.FindAllStringSubmatch(body, -1) {
		var s string
		if err := json.Unmarshal([]byte(m[1]), &s); err == nil {
			found = append(found, s)
		}
	}
	return found
}

// walkJSON collects feed-key string values depth first. Object keys are
// visited in sorted order so a blob naming several feeds always yields them
// in the same order.
func walkJSON(v any, found *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := t[k]
			if s, ok := child.(string); ok && feedKeys[strings.ToLower(k)] {
				*found = append(*found, s)
				continue
			}
			walkJSON(child, found)
		}
	case []any:
		for _, child := range t {
			walkJSON(child, found)
		}
	}
}

// isFeedDocument sniffs a response as syndication markup, by content type
// first and then by the document's root element.
func isFeedDocument(contentType string, body []byte) bool {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && feedContentTypes[mt] {
		return true
	}
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimSpace(head)
	lower := bytes.ToLower(head)
	if !bytes.HasPrefix(lower, []byte("<?xml")) && !bytes.HasPrefix(lower, []byte("<rss")) && !bytes.HasPrefix(lower, []byte("<feed")) {
		return false
	}
	return bytes.Contains(lower, []byte("<rss")) || bytes.Contains(lower, []byte("<feed")) || bytes.Contains(lower, []byte("<rdf:rdf"))
}

func absoluteHTTP(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}
