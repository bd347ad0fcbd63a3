package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matthewjhunter/podhub/internal/errs"
)

const showColumns = `s.id, s.feed_url, s.share_url, s.platform, s.title, s.author, s.cover_url,
	s.description, s.episode_count, s.etag, s.last_modified, s.last_synced_at, s.last_error,
	s.subscribed_at, s.updated_at, f.created_at`

const showFrom = `FROM shows s LEFT JOIN favorites f ON f.show_id = s.id`

const episodeColumns = `id, show_id, identity_key, guid, title, audio_url, audio_type,
	published_at, duration, description, created_at, progress, is_played, played_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanShow(row rowScanner) (*Show, error) {
	var sh Show
	var synced, favorited sql.NullTime
	var lastErr sql.NullString
	err := row.Scan(&sh.ID, &sh.FeedURL, &sh.ShareURL, &sh.Platform, &sh.Title, &sh.Author,
		&sh.CoverURL, &sh.Description, &sh.EpisodeCount, &sh.ETag, &sh.LastModified,
		&synced, &lastErr, &sh.SubscribedAt, &sh.UpdatedAt, &favorited)
	if err != nil {
		return nil, err
	}
	sh.LastSyncedAt = timePtr(synced)
	sh.LastError = stringPtr(lastErr)
	sh.FavoritedAt = timePtr(favorited)
	sh.Favorite = favorited.Valid
	return &sh, nil
}

func scanEpisode(row rowScanner) (*Episode, error) {
	var ep Episode
	var published sql.NullTime
	var duration sql.NullInt64
	var played sql.NullTime
	err := row.Scan(&ep.ID, &ep.ShowID, &ep.IdentityKey, &ep.GUID, &ep.Title, &ep.AudioURL,
		&ep.AudioType, &published, &duration, &ep.Description, &ep.CreatedAt,
		&ep.Progress, &ep.Played, &played)
	if err != nil {
		return nil, err
	}
	ep.PublishedAt = timePtr(published)
	ep.PlayedAt = timePtr(played)
	ep.Duration = intPtr(duration)
	return &ep, nil
}

func getShow(ctx context.Context, q querier, where string, arg any) (*Show, error) {
	row := q.QueryRowContext(ctx, "SELECT "+showColumns+" "+showFrom+" WHERE "+where, arg)
	return scanShow(row)
}

// UpsertShow inserts the show for feedURL or, if it already exists, refreshes
// its display fields. The subscription timestamp is never changed. Two racing
// upserts for the same feed URL both succeed and return the same row.
func (s *SQLiteStore) UpsertShow(ctx context.Context, feedURL string, draft ShowDraft) (*Show, error) {
	unlock := s.locks.lock(feedURL)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert show: %w", err)
	}
	defer tx.Rollback()

	id, _, err := upsertShowTx(ctx, tx, feedURL, draft, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert show: %w", err)
	}
	return s.GetShow(id)
}

func upsertShowTx(ctx context.Context, tx *sql.Tx, feedURL string, d ShowDraft, now time.Time) (int64, bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO shows (feed_url, share_url, platform, title, author, cover_url, description, subscribed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_url) DO NOTHING`,
		feedURL, d.ShareURL, d.Platform, d.Title, d.Author, d.CoverURL, d.Description, now, now)
	if err != nil {
		return 0, false, fmt.Errorf("insert show: %w", err)
	}
	n, _ := res.RowsAffected()
	created := n == 1

	if !created {
		// Lost the race or re-adding: keep the row, refresh what the feed says now.
		_, err := tx.ExecContext(ctx, `
			UPDATE shows SET
				title = CASE WHEN ? != '' THEN ? ELSE title END,
				author = CASE WHEN ? != '' THEN ? ELSE author END,
				cover_url = CASE WHEN ? != '' THEN ? ELSE cover_url END,
				description = CASE WHEN ? != '' THEN ? ELSE description END,
				share_url = CASE WHEN share_url = '' THEN ? ELSE share_url END,
				platform = CASE WHEN platform = '' THEN ? ELSE platform END,
				updated_at = ?
			WHERE feed_url = ?`,
			d.Title, d.Title, d.Author, d.Author, d.CoverURL, d.CoverURL,
			d.Description, d.Description, d.ShareURL, d.Platform, now, feedURL)
		if err != nil {
			return 0, false, fmt.Errorf("update show: %w", err)
		}
	}

	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM shows WHERE feed_url = ?", feedURL).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select show id: %w", err)
	}
	return id, created, nil
}

// SyncEpisodes upserts drafts into the show's episode list by identity key.
// New keys are inserted; known keys only get their audio URL and duration
// refreshed. Episodes missing from drafts are left alone.
func (s *SQLiteStore) SyncEpisodes(ctx context.Context, showID int64, drafts []EpisodeDraft) (SyncResult, error) {
	show, err := s.GetShow(showID)
	if err != nil {
		return SyncResult{}, err
	}

	unlock := s.locks.lock(show.FeedURL)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, fmt.Errorf("begin sync: %w", err)
	}
	defer tx.Rollback()

	result, err := syncEpisodesTx(ctx, tx, showID, drafts, time.Now().UTC())
	if err != nil {
		return SyncResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, fmt.Errorf("commit sync: %w", err)
	}
	return result, nil
}

func syncEpisodesTx(ctx context.Context, tx *sql.Tx, showID int64, drafts []EpisodeDraft, now time.Time) (SyncResult, error) {
	var result SyncResult
	for _, d := range drafts {
		var id int64
		var audioURL string
		var duration sql.NullInt64
		err := tx.QueryRowContext(ctx,
			"SELECT id, audio_url, duration FROM episodes WHERE show_id = ? AND identity_key = ?",
			showID, d.IdentityKey,
		).Scan(&id, &audioURL, &duration)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err := tx.ExecContext(ctx, `
				INSERT INTO episodes (show_id, identity_key, guid, title, audio_url, audio_type,
					published_at, duration, description, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				showID, d.IdentityKey, d.GUID, d.Title, d.AudioURL, d.AudioType,
				nullTime(d.PublishedAt), nullInt(d.Duration), d.Description, now)
			if err != nil {
				return SyncResult{}, fmt.Errorf("insert episode %q: %w", d.IdentityKey, err)
			}
			result.Added++

		case err != nil:
			return SyncResult{}, fmt.Errorf("lookup episode %q: %w", d.IdentityKey, err)

		default:
			// A feed that drops the duration does not erase one we already know.
			newDuration := duration
			if d.Duration != nil {
				newDuration = sql.NullInt64{Int64: int64(*d.Duration), Valid: true}
			}
			if audioURL == d.AudioURL && newDuration == duration {
				continue
			}
			_, err := tx.ExecContext(ctx,
				"UPDATE episodes SET audio_url = ?, audio_type = ?, duration = ? WHERE id = ?",
				d.AudioURL, d.AudioType, newDuration, id)
			if err != nil {
				return SyncResult{}, fmt.Errorf("update episode %d: %w", id, err)
			}
			result.Updated++
		}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE shows SET
			episode_count = (SELECT COUNT(*) FROM episodes WHERE show_id = ?),
			last_synced_at = ?,
			last_error = NULL
		WHERE id = ?`, showID, now, showID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("update episode count: %w", err)
	}
	return result, nil
}

// IngestFeed upserts the show and syncs its episodes in a single
// transaction, so a failed add leaves nothing behind.
func (s *SQLiteStore) IngestFeed(ctx context.Context, in Ingest) (*IngestResult, error) {
	unlock := s.locks.lock(in.FeedURL)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	id, created, err := upsertShowTx(ctx, tx, in.FeedURL, in.Show, now)
	if err != nil {
		return nil, err
	}
	synced, err := syncEpisodesTx(ctx, tx, id, in.Episodes, now)
	if err != nil {
		return nil, err
	}
	if in.ETag != "" || in.LastModified != "" {
		if _, err := tx.ExecContext(ctx,
			"UPDATE shows SET etag = ?, last_modified = ? WHERE id = ?",
			in.ETag, in.LastModified, id); err != nil {
			return nil, fmt.Errorf("update cache headers: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ingest: %w", err)
	}

	show, err := s.GetShow(id)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Show: show, Created: created, Sync: synced}, nil
}

// GetShow returns a show by ID.
func (s *SQLiteStore) GetShow(id int64) (*Show, error) {
	show, err := getShow(context.Background(), s.db, "s.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "show %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get show %d: %w", id, err)
	}
	return show, nil
}

// GetShowByFeedURL returns the show subscribed under feedURL.
func (s *SQLiteStore) GetShowByFeedURL(feedURL string) (*Show, error) {
	show, err := getShow(context.Background(), s.db, "s.feed_url = ?", feedURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "show with feed %s", feedURL)
	}
	if err != nil {
		return nil, fmt.Errorf("get show by feed: %w", err)
	}
	return show, nil
}

// ListShows returns every show, most recently subscribed first.
func (s *SQLiteStore) ListShows() ([]Show, error) {
	return s.queryShows("SELECT " + showColumns + " " + showFrom + " ORDER BY s.subscribed_at DESC, s.id DESC")
}

func (s *SQLiteStore) queryShows(query string, args ...any) ([]Show, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shows: %w", err)
	}
	defer rows.Close()

	var shows []Show
	for rows.Next() {
		sh, err := scanShow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		shows = append(shows, *sh)
	}
	return shows, rows.Err()
}

// DeleteShow removes a show, its episodes and its favorite flag. History
// entries keep their snapshot and lose only the references.
func (s *SQLiteStore) DeleteShow(id int64) error {
	res, err := s.db.Exec("DELETE FROM shows WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete show %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.New(errs.NotFound, "show %d", id)
	}
	return nil
}

// SetShowError records the last refresh failure for a show.
func (s *SQLiteStore) SetShowError(id int64, msg string) error {
	_, err := s.db.Exec("UPDATE shows SET last_error = ? WHERE id = ?", msg, id)
	return err
}

// ClearShowError clears the last error and stamps last_synced_at. Used when
// a conditional refresh comes back not-modified.
func (s *SQLiteStore) ClearShowError(id int64) error {
	_, err := s.db.Exec("UPDATE shows SET last_error = NULL, last_synced_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	return err
}

// ListEpisodes returns a show's episodes, newest publish date first.
// Episodes without a publish date come last, in feed order.
func (s *SQLiteStore) ListEpisodes(showID int64) ([]Episode, error) {
	if _, err := s.GetShow(showID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT `+episodeColumns+` FROM episodes WHERE show_id = ?
		ORDER BY published_at IS NULL, published_at DESC, id ASC`, showID)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episodes = append(episodes, *ep)
	}
	return episodes, rows.Err()
}

// GetEpisode returns a single episode by ID.
func (s *SQLiteStore) GetEpisode(id int64) (*Episode, error) {
	ep, err := scanEpisode(s.db.QueryRow("SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, "episode %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %d: %w", id, err)
	}
	return ep, nil
}
