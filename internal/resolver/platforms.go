package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/matthewjhunter/podhub/internal/errs"
)

// directStrategy recognises feed URLs by shape alone, without fetching.
type directStrategy struct{}

var feedExtensions = []string{".xml", ".rss", ".atom"}
var feedHostPrefixes = []string{"feed.", "feeds.", "rss."}

func (directStrategy) Name() string { return "direct" }

func (directStrategy) Match(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	for _, p := range feedHostPrefixes {
		if strings.HasPrefix(host, p) {
			return true
		}
	}
	p := strings.ToLower(u.Path)
	for _, ext := range feedExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "feed", "feeds", "rss":
			return true
		}
	}
	return false
}

func (directStrategy) Resolve(_ context.Context, _ Getter, u *url.URL) (*FeedRef, error) {
	return &FeedRef{FeedURL: u.String()}, nil
}

// xiaoyuzhouStrategy scrapes the podcast id out of a xiaoyuzhou show or
// episode page and builds the platform's public feed URL from it.
type xiaoyuzhouStrategy struct {
	hosts  []string
	prefix string
}

var (
	pidPattern         = regexp.MustCompile(`"pid"\s*:\s*"([A-Za-z0-9]+)"`)
	podcastPathPattern = regexp.MustCompile(`/podcast/([A-Za-z0-9]+)`)
)

func (s *xiaoyuzhouStrategy) Name() string { return "xiaoyuzhou" }

func (s *xiaoyuzhouStrategy) Match(u *url.URL) bool {
	return s.prefix != "" && hostMatches(u.Hostname(), s.hosts)
}

func (s *xiaoyuzhouStrategy) Resolve(ctx context.Context, get Getter, u *url.URL) (*FeedRef, error) {
	// A show link already carries the id.
	if m := podcastPathPattern.FindStringSubmatch(u.Path); m != nil {
		return &FeedRef{FeedURL: s.prefix + m[1]}, nil
	}

	resp, err := get.Get(ctx, u.String(), http.Header{"Accept": {"text/html"}})
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, errs.Wrap(errs.ResolutionNotFound, err, "unreadable page %s", u)
	}

	ref := &FeedRef{
		Title:    metaContent(doc, "og:title"),
		CoverURL: metaContent(doc, "og:image"),
	}

	// The id may sit in any embedded JSON blob; take the first one seen.
	var pid string
	if m := pidPattern.FindSubmatch(resp.Body); m != nil {
		pid = string(m[1])
	}
	if pid == "" {
		for _, candidate := range []string{
			metaContent(doc, "og:url"),
			doc.Find(`link[rel="canonical"]`).AttrOr("href", ""),
		} {
			if m := podcastPathPattern.FindStringSubmatch(candidate); m != nil {
				pid = m[1]
				break
			}
		}
	}
	if pid == "" {
		return nil, errs.New(errs.ResolutionNotFound, "no podcast id found on %s", u)
	}
	ref.FeedURL = s.prefix + pid
	return ref, nil
}

// neteaseStrategy maps a NetEase radio id onto a third-party feed bridge.
type neteaseStrategy struct {
	hosts  []string
	prefix string
}

var (
	neteaseQueryID = regexp.MustCompile(`^\d+$`)
	neteasePathID  = regexp.MustCompile(`/djradio/(\d+)`)
)

func (s *neteaseStrategy) Name() string { return "netease" }

func (s *neteaseStrategy) Match(u *url.URL) bool {
	return s.prefix != "" && hostMatches(u.Hostname(), s.hosts)
}

func (s *neteaseStrategy) Resolve(_ context.Context, _ Getter, u *url.URL) (*FeedRef, error) {
	id := u.Query().Get("id")
	// NetEase puts its routes in the fragment: /#/djradio?id=123
	if id == "" && u.Fragment != "" {
		if i := strings.Index(u.Fragment, "?"); i >= 0 {
			if q, err := url.ParseQuery(u.Fragment[i+1:]); err == nil {
				id = q.Get("id")
			}
		}
	}
	if id == "" {
		if m := neteasePathID.FindStringSubmatch(u.Path + u.Fragment); m != nil {
			id = m[1]
		}
	}
	if !neteaseQueryID.MatchString(id) {
		return nil, errs.New(errs.ResolutionNotFound, "no radio id in %s", u)
	}
	return &FeedRef{FeedURL: s.prefix + id}, nil
}

// appleStrategy asks the iTunes lookup API for the show's feedUrl.
type appleStrategy struct {
	hosts     []string
	lookupURL string
}

var appleIDPattern = regexp.MustCompile(`/id(\d+)`)

type appleLookup struct {
	Results []struct {
		FeedURL        string `json:"feedUrl"`
		CollectionName string `json:"collectionName"`
		ArtworkURL600  string `json:"artworkUrl600"`
	} `json:"results"`
}

func (s *appleStrategy) Name() string { return "apple" }

func (s *appleStrategy) Match(u *url.URL) bool {
	return s.lookupURL != "" && hostMatches(u.Hostname(), s.hosts)
}

func (s *appleStrategy) Resolve(ctx context.Context, get Getter, u *url.URL) (*FeedRef, error) {
	m := appleIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, errs.New(errs.ResolutionNotFound, "no podcast id in %s", u)
	}

	lookup, err := url.Parse(s.lookupURL)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "bad apple lookup url")
	}
	q := lookup.Query()
	q.Set("id", m[1])
	q.Set("entity", "podcast")
	lookup.RawQuery = q.Encode()

	resp, err := get.Get(ctx, lookup.String(), http.Header{"Accept": {"application/json"}})
	if err != nil {
		return nil, err
	}
	var body appleLookup
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, errs.Wrap(errs.ResolutionNotFound, err, "unreadable lookup response for %s", u)
	}
	for _, r := range body.Results {
		if r.FeedURL != "" {
			return &FeedRef{FeedURL: r.FeedURL, Title: r.CollectionName, CoverURL: r.ArtworkURL600}, nil
		}
	}
	return nil, errs.New(errs.ResolutionNotFound, "lookup returned no feed for %s", path.Base(u.Path))
}

func metaContent(doc *goquery.Document, name string) string {
	sel := doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"]`).First()
	return strings.TrimSpace(sel.AttrOr("content", ""))
}
