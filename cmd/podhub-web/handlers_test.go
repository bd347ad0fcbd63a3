package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/matthewjhunter/podhub"
	"github.com/matthewjhunter/podhub/internal/testnet"
	"github.com/sirupsen/logrus"
)

type testFixtures struct {
	router http.Handler
	engine *podhub.Engine
	web    *testnet.Server
}

func newTestFixtures(t *testing.T) *testFixtures {
	t.Helper()
	web := testnet.New(t)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine, err := podhub.NewEngine(podhub.EngineConfig{
		DBPath:    filepath.Join(t.TempDir(), "test.db"),
		Logger:    logger,
		Transport: web.Transport,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	log := logger.WithField("component", "web")
	return &testFixtures{
		router: requestID(recovery(log, newRouter(engine, log))),
		engine: engine,
		web:    web,
	}
}

// request is a convenience helper for making test HTTP requests.
func request(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

type decoded struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) decoded {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type: got %q", ct)
	}
	var d decoded
	if err := json.Unmarshal(rr.Body.Bytes(), &d); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return d
}

func (tf *testFixtures) addShow(t *testing.T) podhub.Show {
	t.Helper()
	rr := request(t, tf.router, "POST", "/api/podcasts", `{"url":"`+testnet.ShareURL+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("add status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var show podhub.Show
	if err := json.Unmarshal(decode(t, rr).Data, &show); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	return show
}

// --- Tests ---

func TestHealth(t *testing.T) {
	tf := newTestFixtures(t)
	rr := request(t, tf.router, "GET", "/health", "")
	if rr.Code != http.StatusOK || !decode(t, rr).Success {
		t.Errorf("health: %d %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	tf := newTestFixtures(t)
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rr := httptest.NewRecorder()
	tf.router.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestPodcastList_EmptyIsArray(t *testing.T) {
	tf := newTestFixtures(t)
	rr := request(t, tf.router, "GET", "/api/podcasts", "")
	d := decode(t, rr)
	if !d.Success || string(d.Data) != "[]" {
		t.Errorf("got %s", rr.Body.String())
	}
}

func TestPodcastAdd_AndBrowse(t *testing.T) {
	tf := newTestFixtures(t)
	show := tf.addShow(t)
	if show.EpisodeCount != 2 || show.Title != "ABC Show" {
		t.Fatalf("unexpected show: %+v", show)
	}

	rr := request(t, tf.router, "GET", "/api/podcasts/"+itoa(show.ID), "")
	if rr.Code != http.StatusOK {
		t.Errorf("get status: %d", rr.Code)
	}

	rr = request(t, tf.router, "GET", "/api/podcasts/"+itoa(show.ID)+"/episodes", "")
	var eps []podhub.Episode
	if err := json.Unmarshal(decode(t, rr).Data, &eps); err != nil {
		t.Fatalf("decode episodes: %v", err)
	}
	if len(eps) != 2 || eps[0].Title != "A is for Audio" {
		t.Fatalf("episodes = %+v", eps)
	}

	rr = request(t, tf.router, "POST", "/api/play/"+itoa(eps[0].ID), "")
	var play podhub.PlayResult
	if err := json.Unmarshal(decode(t, rr).Data, &play); err != nil {
		t.Fatalf("decode play: %v", err)
	}
	if play.AudioURL != "https://cdn.example/abc-1.mp3" {
		t.Errorf("audio url = %q", play.AudioURL)
	}

	rr = request(t, tf.router, "GET", "/api/history?limit=5", "")
	var history []podhub.HistoryEntry
	if err := json.Unmarshal(decode(t, rr).Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history = %+v", history)
	}

	rr = request(t, tf.router, "GET", "/api/stats", "")
	var stats podhub.Stats
	if err := json.Unmarshal(decode(t, rr).Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalPlays != 1 || stats.TotalSeconds != 1800 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPodcastAdd_FormValue(t *testing.T) {
	tf := newTestFixtures(t)
	form := url.Values{"url": {testnet.FeedURL}}
	req := httptest.NewRequest("POST", "/api/podcasts", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	tf.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestPodcastAdd_ErrorStatus(t *testing.T) {
	tf := newTestFixtures(t)
	tests := []struct {
		name   string
		body   string
		status int
		kind   podhub.ErrorKind
	}{
		{"missing url", `{}`, http.StatusBadRequest, podhub.ErrInvalidInput},
		{"bad json", `{"url":`, http.StatusBadRequest, podhub.ErrInvalidInput},
		{"not a url", `{"url":"not a url"}`, http.StatusBadRequest, podhub.ErrInvalidInput},
		{"no feed on page", `{"url":"` + testnet.EmptyShareURL + `"}`, http.StatusUnprocessableEntity, podhub.ErrResolutionNotFound},
		{"not a feed", `{"url":"` + testnet.BrokenURL + `"}`, http.StatusUnprocessableEntity, podhub.ErrParse},
		{"feed missing", `{"url":"https://feed.example/missing.xml"}`, http.StatusBadGateway, podhub.ErrFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := request(t, tf.router, "POST", "/api/podcasts", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			d := decode(t, rr)
			if d.Success || d.Error == nil || d.Error.Kind != string(tt.kind) {
				t.Errorf("envelope = %s", rr.Body.String())
			}
		})
	}
}

func TestNotFoundAndBadIDs(t *testing.T) {
	tf := newTestFixtures(t)
	tests := []struct {
		method, path string
		status       int
	}{
		{"GET", "/api/podcasts/999", http.StatusNotFound},
		{"DELETE", "/api/podcasts/999", http.StatusNotFound},
		{"GET", "/api/podcasts/999/episodes", http.StatusNotFound},
		{"POST", "/api/play/999", http.StatusNotFound},
		{"POST", "/api/favorites/999", http.StatusNotFound},
		{"POST", "/api/podcasts/999/refresh", http.StatusNotFound},
		{"GET", "/api/podcasts/abc", http.StatusBadRequest},
		{"POST", "/api/play/0", http.StatusBadRequest},
		{"GET", "/api/history?limit=lots", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := request(t, tf.router, tt.method, tt.path, "")
		if rr.Code != tt.status {
			t.Errorf("%s %s: got %d, want %d", tt.method, tt.path, rr.Code, tt.status)
		}
	}
}

func TestFavoriteToggle(t *testing.T) {
	tf := newTestFixtures(t)
	show := tf.addShow(t)

	rr := request(t, tf.router, "POST", "/api/favorites/"+itoa(show.ID), "")
	var fav struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.Unmarshal(decode(t, rr).Data, &fav); err != nil || !fav.Favorite {
		t.Fatalf("toggle: %s", rr.Body.String())
	}

	rr = request(t, tf.router, "GET", "/api/favorites", "")
	var shows []podhub.Show
	if err := json.Unmarshal(decode(t, rr).Data, &shows); err != nil {
		t.Fatalf("decode favorites: %v", err)
	}
	if len(shows) != 1 || shows[0].ID != show.ID {
		t.Errorf("favorites = %+v", shows)
	}
}

func TestProgress(t *testing.T) {
	tf := newTestFixtures(t)
	show := tf.addShow(t)
	eps, err := tf.engine.ListEpisodes(show.ID)
	if err != nil || len(eps) == 0 {
		t.Fatalf("ListEpisodes: %v", err)
	}
	path := "/api/progress/" + itoa(eps[0].ID)

	rr := request(t, tf.router, "POST", path, `{"progress":42.7}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("progress status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var ep podhub.Episode
	if err := json.Unmarshal(decode(t, rr).Data, &ep); err != nil {
		t.Fatalf("decode episode: %v", err)
	}
	if ep.ID != eps[0].ID || ep.Progress != 42 || ep.PlayedAt == nil {
		t.Errorf("unexpected episode: %+v", ep)
	}

	tests := []struct {
		name, path, body string
		status           int
	}{
		{"unknown episode", "/api/progress/999", `{"progress":1}`, http.StatusNotFound},
		{"bad id", "/api/progress/x", `{"progress":1}`, http.StatusBadRequest},
		{"negative", path, `{"progress":-1}`, http.StatusBadRequest},
		{"not json", path, `progress=1`, http.StatusBadRequest},
		{"wrong type", path, `{"progress":"ten"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := request(t, tf.router, "POST", tt.path, tt.body)
			if rr.Code != tt.status {
				t.Errorf("got %d, want %d: %s", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func TestPodcastRefreshAndRemove(t *testing.T) {
	tf := newTestFixtures(t)
	show := tf.addShow(t)

	rr := request(t, tf.router, "POST", "/api/podcasts/"+itoa(show.ID)+"/refresh", "")
	var res podhub.RefreshResult
	if err := json.Unmarshal(decode(t, rr).Data, &res); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if !res.NotModified {
		t.Errorf("expected not modified: %+v", res)
	}

	rr = request(t, tf.router, "DELETE", "/api/podcasts/"+itoa(show.ID), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("remove status: %d", rr.Code)
	}
	rr = request(t, tf.router, "GET", "/api/podcasts/"+itoa(show.ID), "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("after remove: got %d", rr.Code)
	}
}

func TestRecovery(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := recovery(log.WithField("component", "web"), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := request(t, h, "GET", "/", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rr.Code)
	}
	if d := decode(t, rr); d.Error == nil || d.Error.Kind != "internal" {
		t.Errorf("envelope = %s", rr.Body.String())
	}
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
