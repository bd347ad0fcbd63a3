package storage

import "context"

// Store defines the storage interface for podhub's catalog and playback state.
type Store interface {
	Close() error

	// Shows
	UpsertShow(ctx context.Context, feedURL string, draft ShowDraft) (*Show, error)
	IngestFeed(ctx context.Context, in Ingest) (*IngestResult, error)
	GetShow(id int64) (*Show, error)
	GetShowByFeedURL(feedURL string) (*Show, error)
	ListShows() ([]Show, error)
	DeleteShow(id int64) error
	SetShowError(id int64, msg string) error
	ClearShowError(id int64) error

	// Episodes
	SyncEpisodes(ctx context.Context, showID int64, drafts []EpisodeDraft) (SyncResult, error)
	ListEpisodes(showID int64) ([]Episode, error)
	GetEpisode(id int64) (*Episode, error)

	// Favorites
	ToggleFavorite(showID int64) (bool, error)
	ListFavorites() ([]Show, error)

	// History
	RecordPlay(episodeID int64) (*HistoryEntry, error)
	UpdateProgress(episodeID int64, seconds int) (*Episode, error)
	ListHistory(limit int) ([]HistoryEntry, error)
	HistoryLimit(limit int) int
	Stats() (*Stats, error)
}

var _ Store = (*SQLiteStore)(nil)
