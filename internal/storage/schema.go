package storage

const Schema = `
CREATE TABLE IF NOT EXISTS shows (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed_url TEXT NOT NULL UNIQUE,
    share_url TEXT NOT NULL DEFAULT '',
    platform TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    cover_url TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    episode_count INTEGER NOT NULL DEFAULT 0,
    etag TEXT NOT NULL DEFAULT '',
    last_modified TEXT NOT NULL DEFAULT '',
    last_synced_at DATETIME,
    last_error TEXT,
    subscribed_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shows_subscribed ON shows(subscribed_at DESC);

CREATE TABLE IF NOT EXISTS episodes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    show_id INTEGER NOT NULL,
    identity_key TEXT NOT NULL,
    guid TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL,
    audio_url TEXT NOT NULL,
    audio_type TEXT NOT NULL DEFAULT '',
    published_at DATETIME,
    duration INTEGER,
    description TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    is_played INTEGER NOT NULL DEFAULT 0,
    played_at DATETIME,
    FOREIGN KEY (show_id) REFERENCES shows(id) ON DELETE CASCADE,
    UNIQUE(show_id, identity_key)
);

CREATE INDEX IF NOT EXISTS idx_episodes_show_published ON episodes(show_id, published_at DESC);

CREATE TABLE IF NOT EXISTS favorites (
    show_id INTEGER PRIMARY KEY,
    created_at DATETIME NOT NULL,
    FOREIGN KEY (show_id) REFERENCES shows(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS play_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    episode_id INTEGER,
    show_id INTEGER,
    episode_title TEXT NOT NULL,
    show_title TEXT NOT NULL,
    cover_url TEXT NOT NULL DEFAULT '',
    audio_url TEXT NOT NULL DEFAULT '',
    duration INTEGER,
    played_at DATETIME NOT NULL,
    FOREIGN KEY (episode_id) REFERENCES episodes(id) ON DELETE SET NULL,
    FOREIGN KEY (show_id) REFERENCES shows(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_play_history_played ON play_history(played_at DESC);
CREATE INDEX IF NOT EXISTS idx_play_history_episode ON play_history(episode_id);
`

// Migrations bring databases created before a column existed up to date.
// Errors are ignored: the column is already there on fresh databases.
var Migrations = []string{
	"ALTER TABLE episodes ADD COLUMN progress INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE episodes ADD COLUMN is_played INTEGER NOT NULL DEFAULT 0",
	"ALTER TABLE episodes ADD COLUMN played_at DATETIME",
}
