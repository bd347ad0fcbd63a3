package storage

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// DefaultHistoryLimit is the number of history entries returned when
	// the caller does not ask for a specific amount.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps any requested history page.
	MaxHistoryLimit = 200
)

type SQLiteStore struct {
	db    *sql.DB
	locks keyedMutex

	historyDefault int
	historyMax     int
}

// Show is a subscribed podcast, identified by its feed URL.
type Show struct {
	ID           int64
	FeedURL      string
	ShareURL     string
	Platform     string
	Title        string
	Author       string
	CoverURL     string
	Description  string
	EpisodeCount int
	ETag         string
	LastModified string
	LastSyncedAt *time.Time
	LastError    *string
	SubscribedAt time.Time
	UpdatedAt    time.Time
	Favorite     bool
	FavoritedAt  *time.Time
}

// ShowDraft is parsed show metadata that has not been stored yet.
type ShowDraft struct {
	Title       string
	Author      string
	CoverURL    string
	Description string
	ShareURL    string
	Platform    string
}

// EpisodeDraft is one parsed feed item. IdentityKey is unique per show.
type EpisodeDraft struct {
	IdentityKey string
	GUID        string
	Title       string
	AudioURL    string
	AudioType   string
	PublishedAt *time.Time
	Duration    *int // seconds; nil when the feed value was unparsable
	Description string
}

type Episode struct {
	ID          int64
	ShowID      int64
	IdentityKey string
	GUID        string
	Title       string
	AudioURL    string
	AudioType   string
	PublishedAt *time.Time
	Duration    *int
	Description string
	CreatedAt   time.Time
	Progress    int // seconds listened
	Played      bool
	PlayedAt    *time.Time
}

// HistoryEntry is one play event. The titles, cover and audio URL are
// copied at write time so the entry stays readable after its show is
// removed; EpisodeID and ShowID become nil at that point.
type HistoryEntry struct {
	ID           int64
	EpisodeID    *int64
	ShowID       *int64
	EpisodeTitle string
	ShowTitle    string
	CoverURL     string
	AudioURL     string
	Duration     *int
	PlayedAt     time.Time
}

// SyncResult counts what an episode sync changed.
type SyncResult struct {
	Added   int
	Updated int
}

// Ingest is everything needed to store a freshly parsed feed in one go.
type Ingest struct {
	FeedURL      string
	Show         ShowDraft
	Episodes     []EpisodeDraft
	ETag         string
	LastModified string
}

type IngestResult struct {
	Show    *Show
	Created bool
	Sync    SyncResult
}

type ShowPlays struct {
	ShowID    *int64
	ShowTitle string
	Plays     int
}

type Stats struct {
	TotalPlays    int
	TotalSeconds  int64
	TopShows      []ShowPlays
	ShowCount     int
	EpisodeCount  int
	FavoriteCount int
}

// NewSQLiteStore opens the database at dbPath and initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath + "?_time_format=sqlite" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite has a single writer, and funnelling every
	// transaction through it keeps upserts for the same feed serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	for _, m := range Migrations {
		db.Exec(m)
	}

	return &SQLiteStore{
		db:             db,
		historyDefault: DefaultHistoryLimit,
		historyMax:     MaxHistoryLimit,
	}, nil
}

// SetHistoryLimits overrides the default and maximum ListHistory page size.
// Non-positive values keep the current setting.
func (s *SQLiteStore) SetHistoryLimits(defaultLimit, maxLimit int) {
	if maxLimit > 0 {
		s.historyMax = maxLimit
	}
	if defaultLimit > 0 {
		s.historyDefault = defaultLimit
	}
	if s.historyDefault > s.historyMax {
		s.historyDefault = s.historyMax
	}
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func int64Ptr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
