package podhub

import (
	"net/http"
	"time"

	"github.com/matthewjhunter/podhub/internal/config"
	"github.com/sirupsen/logrus"
)

// EngineConfig configures the podhub engine.
type EngineConfig struct {
	DBPath string         // overrides Config.Database.Path when set
	Config *config.Config // nil means config.Default()
	Logger *logrus.Logger // nil means a logger built from Config.Log

	// Transport replaces the outbound HTTP transport. Tests use it to route
	// share.example / feed.example style hosts to a local server.
	Transport http.RoundTripper
}

// Show is a subscribed podcast.
type Show struct {
	ID           int64      `json:"id"`
	FeedURL      string     `json:"feed_url"`
	ShareURL     string     `json:"share_url,omitempty"`
	Platform     string     `json:"platform,omitempty"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	CoverURL     string     `json:"cover_url"`
	Description  string     `json:"description"`
	EpisodeCount int        `json:"episode_count"`
	SubscribedAt time.Time  `json:"subscribed_at"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
	Favorite     bool       `json:"favorite"`
	FavoritedAt  *time.Time `json:"favorited_at,omitempty"`
}

// Episode belongs to exactly one show.
type Episode struct {
	ID          int64      `json:"id"`
	ShowID      int64      `json:"show_id"`
	GUID        string     `json:"guid,omitempty"`
	Title       string     `json:"title"`
	AudioURL    string     `json:"audio_url"`
	AudioType   string     `json:"audio_type,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Duration    *int       `json:"duration,omitempty"` // seconds
	Description string     `json:"description,omitempty"`
	Progress    int        `json:"progress"` // seconds listened
	Played      bool       `json:"is_played"`
	PlayedAt    *time.Time `json:"played_at,omitempty"`
}

// HistoryEntry is one play event. EpisodeID and ShowID are nil once the
// show has been removed; the snapshot fields remain.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	EpisodeID    *int64    `json:"episode_id"`
	ShowID       *int64    `json:"show_id"`
	EpisodeTitle string    `json:"episode_title"`
	ShowTitle    string    `json:"show_title"`
	CoverURL     string    `json:"cover_url"`
	AudioURL     string    `json:"audio_url"`
	Duration     *int      `json:"duration,omitempty"`
	PlayedAt     time.Time `json:"played_at"`
}

// PlayResult is what a player needs to start an episode.
type PlayResult struct {
	EpisodeID int64     `json:"episode_id"`
	AudioURL  string    `json:"audio_url"`
	Title     string    `json:"title"`
	ShowTitle string    `json:"show_title"`
	CoverURL  string    `json:"cover_url"`
	Duration  *int      `json:"duration,omitempty"`
	PlayedAt  time.Time `json:"played_at"`
}

// RefreshResult reports one show's re-sync.
type RefreshResult struct {
	ShowID      int64  `json:"show_id"`
	Title       string `json:"title"`
	Added       int    `json:"added"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
	NotModified bool   `json:"not_modified"`
	Error       string `json:"error,omitempty"`
}

// RefreshAllResult summarizes a refresh of every show. Per-show failures
// are recorded in Results and do not stop the run.
type RefreshAllResult struct {
	Total       int             `json:"total"`
	Refreshed   int             `json:"refreshed"`
	NotModified int             `json:"not_modified"`
	Failed      int             `json:"failed"`
	Added       int             `json:"added"`
	Results     []RefreshResult `json:"results"`
}

// ShowPlays is a show's play count in Stats.
type ShowPlays struct {
	ShowID    *int64 `json:"show_id"`
	ShowTitle string `json:"show_title"`
	Plays     int    `json:"plays"`
}

// Stats aggregates listening activity.
type Stats struct {
	TotalPlays    int         `json:"total_plays"`
	TotalSeconds  int64       `json:"total_seconds"`
	ShowCount     int         `json:"show_count"`
	EpisodeCount  int         `json:"episode_count"`
	FavoriteCount int         `json:"favorite_count"`
	TopShows      []ShowPlays `json:"top_shows"`
}

// ImportResult reports an OPML import.
type ImportResult struct {
	Total    int             `json:"total"`
	Added    int             `json:"added"`
	Existing int             `json:"existing"`
	Failed   []ImportFailure `json:"failed,omitempty"`
}

type ImportFailure struct {
	FeedURL string `json:"feed_url"`
	Error   string `json:"error"`
}

// IngestState is where an add request is in the pipeline.
type IngestState string

const (
	StateUnresolved IngestState = "unresolved"
	StateResolving  IngestState = "resolving"
	StateResolved   IngestState = "resolved"
	StateParsed     IngestState = "parsed"
	StateStored     IngestState = "stored"
	StateFailed     IngestState = "failed"
)
