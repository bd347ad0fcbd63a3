package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matthewjhunter/podhub/internal/errs"
)

// ToggleFavorite flips the favorite flag on a show and returns the new state.
func (s *SQLiteStore) ToggleFavorite(showID int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin toggle favorite: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT 1 FROM shows WHERE id = ?", showID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, errs.New(errs.NotFound, "show %d", showID)
		}
		return false, fmt.Errorf("lookup show %d: %w", showID, err)
	}

	res, err := tx.Exec("DELETE FROM favorites WHERE show_id = ?", showID)
	if err != nil {
		return false, fmt.Errorf("clear favorite: %w", err)
	}
	favorite := false
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec("INSERT INTO favorites (show_id, created_at) VALUES (?, ?)",
			showID, time.Now().UTC()); err != nil {
			return false, fmt.Errorf("set favorite: %w", err)
		}
		favorite = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit toggle favorite: %w", err)
	}
	return favorite, nil
}

// ListFavorites returns favorited shows, most recently favorited first.
func (s *SQLiteStore) ListFavorites() ([]Show, error) {
	return s.queryShows("SELECT " + showColumns + " " + showFrom +
		" WHERE f.show_id IS NOT NULL ORDER BY f.created_at DESC, s.id DESC")
}

// RecordPlay appends a history entry for the episode. Every call appends,
// so replays show up as separate entries.
func (s *SQLiteStore) RecordPlay(episodeID int64) (*HistoryEntry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin record play: %w", err)
	}
	defer tx.Rollback()

	entry := HistoryEntry{PlayedAt: time.Now().UTC()}
	var showID int64
	var duration sql.NullInt64
	err = tx.QueryRow(`
		SELECT e.show_id, e.title, e.audio_url, e.duration, s.title, s.cover_url
		FROM episodes e JOIN shows s ON s.id = e.show_id
		WHERE e.id = ?`, episodeID,
	).Scan(&showID, &entry.EpisodeTitle, &entry.AudioURL, &duration, &entry.ShowTitle, &entry.CoverURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "episode %d", episodeID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup episode %d: %w", episodeID, err)
	}
	entry.EpisodeID = &episodeID
	entry.ShowID = &showID
	entry.Duration = intPtr(duration)

	res, err := tx.Exec(`
		INSERT INTO play_history (episode_id, show_id, episode_title, show_title, cover_url, audio_url, duration, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		episodeID, showID, entry.EpisodeTitle, entry.ShowTitle, entry.CoverURL, entry.AudioURL,
		nullInt(entry.Duration), entry.PlayedAt)
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	entry.ID, _ = res.LastInsertId()

	if _, err := tx.Exec("UPDATE episodes SET is_played = 1, played_at = ? WHERE id = ?",
		entry.PlayedAt, episodeID); err != nil {
		return nil, fmt.Errorf("mark episode %d played: %w", episodeID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record play: %w", err)
	}
	return &entry, nil
}

// UpdateProgress stores how far into an episode the listener got and
// stamps it as the last time the episode was touched.
func (s *SQLiteStore) UpdateProgress(episodeID int64, seconds int) (*Episode, error) {
	if seconds < 0 {
		return nil, errs.New(errs.InvalidInput, "progress must not be negative, got %d", seconds)
	}
	res, err := s.db.Exec("UPDATE episodes SET progress = ?, played_at = ? WHERE id = ?",
		seconds, time.Now().UTC(), episodeID)
	if err != nil {
		return nil, fmt.Errorf("update progress for episode %d: %w", episodeID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.New(errs.NotFound, "episode %d", episodeID)
	}
	return s.GetEpisode(episodeID)
}

// HistoryLimit clamps a requested page size: <= 0 means the default, and
// anything above the maximum is cut to the maximum.
func (s *SQLiteStore) HistoryLimit(limit int) int {
	if limit <= 0 {
		return s.historyDefault
	}
	if limit > s.historyMax {
		return s.historyMax
	}
	return limit
}

// ListHistory returns play history, most recent first.
func (s *SQLiteStore) ListHistory(limit int) ([]HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, episode_id, show_id, episode_title, show_title, cover_url, audio_url, duration, played_at
		FROM play_history
		ORDER BY played_at DESC, id DESC
		LIMIT ?`, s.HistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var episodeID, showID, duration sql.NullInt64
		if err := rows.Scan(&h.ID, &episodeID, &showID, &h.EpisodeTitle, &h.ShowTitle,
			&h.CoverURL, &h.AudioURL, &duration, &h.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.EpisodeID = int64Ptr(episodeID)
		h.ShowID = int64Ptr(showID)
		h.Duration = intPtr(duration)
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

// Stats aggregates listening totals and the five most played shows.
func (s *SQLiteStore) Stats() (*Stats, error) {
	var st Stats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM play_history),
			(SELECT COALESCE(SUM(duration), 0) FROM play_history),
			(SELECT COUNT(*) FROM shows),
			(SELECT COUNT(*) FROM episodes),
			(SELECT COUNT(*) FROM favorites)`,
	).Scan(&st.TotalPlays, &st.TotalSeconds, &st.ShowCount, &st.EpisodeCount, &st.FavoriteCount)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT show_id, show_title, COUNT(*) AS plays
		FROM play_history
		GROUP BY show_id, show_title
		ORDER BY plays DESC, MAX(played_at) DESC
		LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("query top shows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sp ShowPlays
		var showID sql.NullInt64
		if err := rows.Scan(&showID, &sp.ShowTitle, &sp.Plays); err != nil {
			return nil, fmt.Errorf("scan top show: %w", err)
		}
		sp.ShowID = int64Ptr(showID)
		st.TopShows = append(st.TopShows, sp)
	}
	return &st, rows.Err()
}
