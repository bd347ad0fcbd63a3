// Package testnet serves a small fake podcast web for tests: a share page
// at share.example that embeds a feed hosted at feed.example. Requests for
// any host are routed to one local httptest server.
package testnet

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

const (
	ShareURL  = "https://share.example/show/abc"
	FeedURL   = "https://feed.example/abc.xml"
	BrokenURL = "https://feed.example/broken.xml"
	FeedETag  = `"abc-v1"`

	// EmptyShareURL is a share page with no feed reference in it.
	EmptyShareURL = "https://share.example/show/empty"
)

// Feed has two playable items and one without audio.
const Feed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
<channel>
  <title>ABC Show</title>
  <description>Talk about letters.</description>
  <itunes:author>Alphabet</itunes:author>
  <itunes:image href="https://img.example/abc.jpg"/>
  <item>
    <title>A is for Audio</title>
    <guid>abc-1</guid>
    <pubDate>Fri, 01 Mar 2024 09:00:00 +0000</pubDate>
    <enclosure url="https://cdn.example/abc-1.mp3" type="audio/mpeg"/>
    <itunes:duration>30:00</itunes:duration>
  </item>
  <item>
    <title>B is for Bitrate</title>
    <guid>abc-2</guid>
    <pubDate>Mon, 01 Jan 2024 09:00:00 +0000</pubDate>
    <enclosure url="https://cdn.example/abc-2.mp3" type="audio/mpeg"/>
    <itunes:duration>1800</itunes:duration>
  </item>
  <item>
    <title>C is for Cancelled</title>
    <guid>abc-3</guid>
  </item>
</channel>
</rss>`

const sharePage = `<!DOCTYPE html>
<html><head>
  <title>ABC Show on Share</title>
  <meta property="og:title" content="ABC Show">
</head><body>
  <div class="player" data-feed-url="https://feed.example/abc.xml"></div>
</body></html>`

// Server is a running fake web.
type Server struct {
	*httptest.Server
	// Transport routes every request to the server, whatever its host.
	Transport http.RoundTripper

	feedHits atomic.Int64

	mu      sync.Mutex
	hold    chan struct{}
	entered chan struct{}
}

// FeedHits counts requests for FeedURL, including 304s.
func (s *Server) FeedHits() int64 { return s.feedHits.Load() }

// HoldFeed makes requests for FeedURL block until release is called.
// entered receives once for each request that starts waiting.
func (s *Server) HoldFeed() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold := make(chan struct{})
	s.hold = hold
	s.entered = make(chan struct{}, 8)
	var once sync.Once
	return s.entered, func() {
		once.Do(func() {
			s.mu.Lock()
			s.hold = nil
			s.mu.Unlock()
			close(hold)
		})
	}
}

func (s *Server) waitHold(r *http.Request) {
	s.mu.Lock()
	hold, entered := s.hold, s.entered
	s.mu.Unlock()
	if hold == nil {
		return
	}
	select {
	case entered <- struct{}{}:
	default:
	}
	select {
	case <-hold:
	case <-r.Context().Done():
	}
}

// New starts the fake web and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /show/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(sharePage))
	})
	mux.HandleFunc("GET /show/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Nothing</title></head><body><p>no feed</p></body></html>`))
	})
	mux.HandleFunc("GET /abc.xml", func(w http.ResponseWriter, r *http.Request) {
		s.feedHits.Add(1)
		s.waitHold(r)
		if r.Header.Get("If-None-Match") == FeedETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", FeedETag)
		w.Write([]byte(Feed))
	})
	mux.HandleFunc("GET /broken.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("this is not a feed"))
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)

	target, _ := url.Parse(s.Server.URL)
	s.Transport = &Rewriter{Target: target}
	return s
}

// Rewriter sends every request to Target, keeping the path and query.
// Responses report the original request so callers see the URL they asked for.
type Rewriter struct {
	Target *url.URL
	Base   http.RoundTripper
}

func (rw *Rewriter) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rw.Base
	if base == nil {
		base = http.DefaultTransport
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = rw.Target.Scheme
	out.URL.Host = rw.Target.Host
	out.Host = rw.Target.Host

	resp, err := base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	resp.Request = req
	return resp, nil
}
