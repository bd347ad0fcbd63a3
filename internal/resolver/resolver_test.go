package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/matthewjhunter/podhub/internal/config"
	"github.com/matthewjhunter/podhub/internal/errs"
	"github.com/matthewjhunter/podhub/internal/fetch"
	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// stubGetter serves canned responses keyed by URL and records requests.
type stubGetter struct {
	pages    map[string]*fetch.Response
	requests []string
}

func (g *stubGetter) Get(_ context.Context, rawURL string, _ http.Header) (*fetch.Response, error) {
	g.requests = append(g.requests, rawURL)
	if r, ok := g.pages[rawURL]; ok {
		return r, nil
	}
	return nil, errs.HTTPStatus(rawURL, http.StatusNotFound)
}

func htmlPage(rawURL, body string) *fetch.Response {
	return &fetch.Response{URL: rawURL, Status: 200, ContentType: "text/html; charset=utf-8", Body: []byte(body)}
}

func newTestResolver(g Getter) *Resolver {
	return New(g, config.Default().Platform, quietLog())
}

func TestResolve_InvalidInput(t *testing.T) {
	r := newTestResolver(&stubGetter{})
	for _, in := range []string{"", "   ", "not a url", "ftp://example.com/feed", "https://", "mailto:x@y.z"} {
		_, err := r.Resolve(context.Background(), in)
		if !errs.Is(err, errs.InvalidInput) {
			t.Errorf("Resolve(%q) = %v, want InvalidInput", in, err)
		}
	}
}

func TestResolve_DirectFeedURLs(t *testing.T) {
	g := &stubGetter{}
	r := newTestResolver(g)
	for _, in := range []string{
		"https://feed.example/abc.xml",
		"https://example.com/podcast.rss",
		"https://example.com/shows/rss",
		"https://feeds.simplecast.com/abcdef",
		"https://feed.xiaoyuzhoufm.com/podcast/5e280fab418a84a0461fa41b",
	} {
		ref, err := r.Resolve(context.Background(), in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if ref.FeedURL != in {
			t.Errorf("FeedURL = %q, want %q", ref.FeedURL, in)
		}
		if ref.Platform != "direct" {
			t.Errorf("Platform = %q, want direct", ref.Platform)
		}
	}
	if len(g.requests) != 0 {
		t.Errorf("direct feed URLs should not be fetched, got %v", g.requests)
	}
}

func TestResolve_PageMarkers(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "link alternate",
			html: `<html><head><link rel="alternate" type="application/rss+xml" href="https://feed.example/abc.xml"></head></html>`,
			want: "https://feed.example/abc.xml",
		},
		{
			name: "meta tag after body content",
			html: `<html><body><p>hi</p><meta property="podcast:feed" content="https://feed.example/meta.xml"></body></html>`,
			want: "https://feed.example/meta.xml",
		},
		{
			name: "data attribute",
			html: `<html><body><div class="player" data-feed-url="https://feed.example/data.xml"></div></body></html>`,
			want: "https://feed.example/data.xml",
		},
		{
			name: "json-ld nested",
			html: `<html><head><script type="application/ld+json">{"@type":"PodcastSeries","extra":{"webFeed":"https://feed.example/ld.xml"}}</script></head></html>`,
			want: "https://feed.example/ld.xml",
		},
		{
			name: "hydration script with escaped slashes",
			html: `<html><body><script>window.__STATE__ = {"show":{"id":1,"rssUrl":"https:\/\/feed.example\/state.xml"}};</script></body></html>`,
			want: "https://feed.example/state.xml",
		},
		{
			name: "relative link",
			html: `<html><head><link rel="alternate" type="application/atom+xml" href="/feeds/show.atom"></head></html>`,
			want: "https://share.example/feeds/show.atom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share := "https://share.example/show/abc"
			g := &stubGetter{pages: map[string]*fetch.Response{share: htmlPage(share, tt.html)}}
			ref, err := newTestResolver(g).Resolve(context.Background(), share)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if ref.FeedURL != tt.want {
				t.Errorf("FeedURL = %q, want %q", ref.FeedURL, tt.want)
			}
			if ref.ShareURL != share {
				t.Errorf("ShareURL = %q, want %q", ref.ShareURL, share)
			}
			if ref.Platform != "page" {
				t.Errorf("Platform = %q, want page", ref.Platform)
			}
		})
	}
}

func TestResolve_PageWithoutFeed(t *testing.T) {
	share := "https://share.example/show/none"
	g := &stubGetter{pages: map[string]*fetch.Response{
		share: htmlPage(share, `<html><head><title>Nothing</title><link rel="stylesheet" href="/a.css"></head></html>`),
	}}
	_, err := newTestResolver(g).Resolve(context.Background(), share)
	if !errs.Is(err, errs.ResolutionNotFound) {
		t.Fatalf("expected ResolutionNotFound, got %v", err)
	}
}

func TestResolve_PageServesFeed(t *testing.T) {
	share := "https://podcasts.example/show/42"
	g := &stubGetter{pages: map[string]*fetch.Response{
		share: {URL: share, Status: 200, ContentType: "text/plain", Body: []byte("<?xml version=\"1.0\"?>\n<rss version=\"2.0\"><channel/></rss>")},
	}}
	ref, err := newTestResolver(g).Resolve(context.Background(), share)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.FeedURL != share || ref.Platform != "direct" {
		t.Errorf("got %+v, want direct feed at share url", ref)
	}
}

func TestResolve_FetchFailurePropagates(t *testing.T) {
	g := &stubGetter{}
	_, err := newTestResolver(g).Resolve(context.Background(), "https://share.example/missing")
	if !errs.Is(err, errs.FetchError) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if errs.StatusOf(err) != http.StatusNotFound {
		t.Errorf("status = %d, want 404", errs.StatusOf(err))
	}
}

func TestResolve_Xiaoyuzhou(t *testing.T) {
	share := "https://www.xiaoyuzhoufm.com/episode/6650abc"
	page := `<html><head>
<meta property="og:title" content="Some Episode">
<meta property="og:image" content="https://image.xyzcdn.net/cover.jpg">
</head><body><script id="__NEXT_DATA__" type="application/json">{"props":{"episode":{"eid":"6650abc","podcast":{"title":"Show","pid":"5e280fab418a84a0461fa41b"}}}}</script></body></html>`
	g := &stubGetter{pages: map[string]*fetch.Response{share: htmlPage(share, page)}}

	ref, err := newTestResolver(g).Resolve(context.Background(), share)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.FeedURL != "https://feed.xiaoyuzhoufm.com/podcast/5e280fab418a84a0461fa41b" {
		t.Errorf("FeedURL = %q", ref.FeedURL)
	}
	if ref.Platform != "xiaoyuzhou" {
		t.Errorf("Platform = %q", ref.Platform)
	}
	if ref.CoverURL != "https://image.xyzcdn.net/cover.jpg" {
		t.Errorf("CoverURL = %q", ref.CoverURL)
	}
}

func TestResolve_XiaoyuzhouShowPathSkipsFetch(t *testing.T) {
	g := &stubGetter{}
	ref, err := newTestResolver(g).Resolve(context.Background(), "https://www.xiaoyuzhoufm.com/podcast/abc123")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.FeedURL != "https://feed.xiaoyuzhoufm.com/podcast/abc123" {
		t.Errorf("FeedURL = %q", ref.FeedURL)
	}
	if len(g.requests) != 0 {
		t.Errorf("unexpected fetches: %v", g.requests)
	}
}

func TestResolve_Netease(t *testing.T) {
	r := newTestResolver(&stubGetter{})
	for _, in := range []string{
		"https://music.163.com/djradio?id=794062371",
		"https://music.163.com/#/djradio?id=794062371",
		"https://y.music.163.com/m/djradio/794062371",
	} {
		ref, err := r.Resolve(context.Background(), in)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", in, err)
		}
		if ref.FeedURL != "https://podcastrx.netlify.app/feed/netease/794062371" {
			t.Errorf("Resolve(%q) FeedURL = %q", in, ref.FeedURL)
		}
	}

	_, err := r.Resolve(context.Background(), "https://music.163.com/playlist")
	if !errs.Is(err, errs.ResolutionNotFound) {
		t.Errorf("expected ResolutionNotFound, got %v", err)
	}
}

func TestResolve_Apple(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "1200361736" || r.URL.Query().Get("entity") != "podcast" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"resultCount":1,"results":[{"collectionName":"The Daily","feedUrl":"https://feeds.example/daily","artworkUrl600":"https://img.example/daily.jpg"}]}`)
	}))
	defer ts.Close()

	cfg := config.Default().Platform
	cfg.Apple.LookupURL = ts.URL + "/lookup"
	r := New(fetch.New(fetch.Options{}), cfg, quietLog())

	ref, err := r.Resolve(context.Background(), "https://podcasts.apple.com/us/podcast/the-daily/id1200361736")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.FeedURL != "https://feeds.example/daily" || ref.Title != "The Daily" {
		t.Errorf("got %+v", ref)
	}
}

func TestResolve_AppleNoFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resultCount":0,"results":[]}`)
	}))
	defer ts.Close()

	cfg := config.Default().Platform
	cfg.Apple.LookupURL = ts.URL
	r := New(fetch.New(fetch.Options{}), cfg, quietLog())

	_, err := r.Resolve(context.Background(), "https://podcasts.apple.com/us/podcast/x/id1")
	if !errs.Is(err, errs.ResolutionNotFound) {
		t.Fatalf("expected ResolutionNotFound, got %v", err)
	}
}

type fixedStrategy struct{ host, feed string }

func (s fixedStrategy) Name() string          { return "fixed" }
func (s fixedStrategy) Match(u *url.URL) bool { return u.Hostname() == s.host }
func (s fixedStrategy) Resolve(context.Context, Getter, *url.URL) (*FeedRef, error) {
	return &FeedRef{FeedURL: s.feed}, nil
}

func TestRegister_TakesPrecedence(t *testing.T) {
	r := newTestResolver(&stubGetter{})
	r.Register(fixedStrategy{host: "custom.example", feed: "https://feed.example/custom.xml"})

	ref, err := r.Resolve(context.Background(), "https://custom.example/anything")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ref.FeedURL != "https://feed.example/custom.xml" || ref.Platform != "fixed" {
		t.Errorf("got %+v", ref)
	}
}

func TestIsFeedDocument(t *testing.T) {
	tests := []struct {
		ct, body string
		want     bool
	}{
		{"application/rss+xml; charset=utf-8", "", true},
		{"text/html", "<!doctype html><html></html>", false},
		{"", "\xef\xbb\xbf  <?xml version=\"1.0\"?><feed xmlns=\"http://www.w3.org/2005/Atom\"></feed>", true},
		{"text/plain", "<?xml version=\"1.0\"?><opml></opml>", false},
	}
	for _, tt := range tests {
		if got := isFeedDocument(tt.ct, []byte(tt.body)); got != tt.want {
			t.Errorf("isFeedDocument(%q, %q) = %v, want %v", tt.ct, strings.TrimSpace(tt.body), got, tt.want)
		}
	}
}

func TestScriptFeedURLs_StableOrder(t *testing.T) {
	body := `{"show":{"rss_url":"https://feed.example/b.xml","feedUrl":"https://feed.example/a.xml","webFeed":"https://feed.example/c.xml"}}`
	want := []string{"https://feed.example/a.xml", "https://feed.example/b.xml", "https://feed.example/c.xml"}

	// Map iteration is randomized per range, so repeat enough to catch drift.
	for i := 0; i < 50; i++ {
		got := scriptFeedURLs(body)
		if strings.Join(got, " ") != strings.Join(want, " ") {
			t.Fatalf("run %d: got %v, want %v", i, got, want)
		}
	}

	share := "https://share.example/show/abc"
	html := `<html><head><script type="application/ld+json">` + body + `</script></head></html>`
	for i := 0; i < 20; i++ {
		g := &stubGetter{pages: map[string]*fetch.Response{share: htmlPage(share, html)}}
		ref, err := newTestResolver(g).Resolve(context.Background(), share)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if ref.FeedURL != want[0] {
			t.Fatalf("run %d: FeedURL = %q, want %q", i, ref.FeedURL, want[0])
		}
	}
}
