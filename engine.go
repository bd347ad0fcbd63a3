package podhub

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/matthewjhunter/podhub/internal/config"
	"github.com/matthewjhunter/podhub/internal/feeds"
	"github.com/matthewjhunter/podhub/internal/fetch"
	"github.com/matthewjhunter/podhub/internal/resolver"
	"github.com/matthewjhunter/podhub/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Engine is the public API for podhub. It wraps the resolver, the feed
// parser and the catalog store.
type Engine struct {
	store    storage.Store
	resolver *resolver.Resolver
	parser   *feeds.Parser
	config   *config.Config
	log      *logrus.Entry

	// adds coalesces concurrent AddPodcast calls for the same share URL.
	adds singleflight.Group
}

// NewEngine opens the catalog database and wires the ingestion pipeline.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	conf := cfg.Config
	if conf == nil {
		conf = config.Default()
	}
	if cfg.DBPath != "" {
		conf.Database.Path = cfg.DBPath
	}

	logger := cfg.Logger
	if logger == nil {
		l, err := conf.Log.NewLogger(os.Stderr)
		if err != nil {
			return nil, err
		}
		logger = l
	}
	log := logger.WithField("component", "engine")

	store, err := storage.NewSQLiteStore(conf.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store.SetHistoryLimits(conf.History.DefaultLimit, conf.History.MaxLimit)

	client := fetch.New(fetch.Options{
		Timeout:      conf.HTTP.Timeout,
		UserAgent:    conf.HTTP.UserAgent,
		MaxBodyBytes: conf.HTTP.MaxBodyBytes,
		Cache:        conf.HTTP.Cache,
		Transport:    cfg.Transport,
	})
	log.WithField("fetch", client.String()).Debug("engine ready")

	return &Engine{
		store:    store,
		resolver: resolver.New(client, conf.Platform, logger.WithField("component", "resolver")),
		parser:   feeds.NewParser(client, logger.WithField("component", "feeds")),
		config:   conf,
		log:      log,
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.config }

// RegisterResolver adds a share-link strategy ahead of the built-in ones.
func (e *Engine) RegisterResolver(s resolver.Strategy) { e.resolver.Register(s) }

// AddPodcast resolves shareURL to a feed, parses it and stores the show
// and its episodes. Adding a feed that is already subscribed returns the
// existing show with refreshed metadata. Nothing is stored on failure.
func (e *Engine) AddPodcast(ctx context.Context, shareURL string) (*Show, error) {
	key := strings.TrimSpace(shareURL)
	// The shared ingestion must outlive whichever caller started it; each
	// caller still stops waiting when its own ctx is done. The fetch
	// client's timeout bounds the work itself.
	work := context.WithoutCancel(ctx)
	ch := e.adds.DoChan(key, func() (any, error) {
		return e.addPodcast(work, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			e.log.WithField("share_url", key).Debug("joined in-flight add")
		}
		show := *res.Val.(*Show)
		return &show, nil
	}
}

func (e *Engine) addPodcast(ctx context.Context, shareURL string) (*Show, error) {
	in := newIngestion(e.log, shareURL)

	in.advance(StateResolving, nil)
	ref, err := e.resolver.Resolve(ctx, shareURL)
	if err != nil {
		return nil, in.fail(err)
	}
	in.advance(StateResolved, logrus.Fields{"feed_url": ref.FeedURL, "platform": ref.Platform})

	parsed, err := e.parser.ParseFeed(ctx, ref.FeedURL, "", "")
	if err != nil {
		return nil, in.fail(err)
	}
	draft := parsed.Show
	draft.ShareURL = ref.ShareURL
	draft.Platform = ref.Platform
	if draft.Title == "" {
		draft.Title = ref.Title
	}
	if draft.Title == "" {
		draft.Title = ref.FeedURL
	}
	if draft.CoverURL == "" {
		draft.CoverURL = ref.CoverURL
	}
	in.advance(StateParsed, logrus.Fields{
		"episodes": len(parsed.Episodes),
		"skipped":  parsed.Skipped,
		"dialect":  parsed.Dialect,
	})

	res, err := e.store.IngestFeed(ctx, storage.Ingest{
		FeedURL:      ref.FeedURL,
		Show:         draft,
		Episodes:     parsed.Episodes,
		ETag:         parsed.ETag,
		LastModified: parsed.LastModified,
	})
	if err != nil {
		return nil, in.fail(err)
	}
	in.advance(StateStored, logrus.Fields{
		"show_id": res.Show.ID,
		"created": res.Created,
		"added":   res.Sync.Added,
		"updated": res.Sync.Updated,
	})

	show := showFromInternal(*res.Show)
	return &show, nil
}

// ingestion tracks one add request through the lifecycle states.
type ingestion struct {
	shareURL string
	state    IngestState
	log      *logrus.Entry
}

func newIngestion(log *logrus.Entry, shareURL string) *ingestion {
	return &ingestion{
		shareURL: shareURL,
		state:    StateUnresolved,
		log:      log.WithField("share_url", shareURL),
	}
}

func (in *ingestion) advance(next IngestState, fields logrus.Fields) {
	in.log.WithFields(fields).WithFields(logrus.Fields{"from": in.state, "to": next}).Info("ingest state")
	in.state = next
}

// fail moves to StateFailed and returns err annotated with the step that
// was in progress.
func (in *ingestion) fail(err error) error {
	in.log.WithError(err).WithFields(logrus.Fields{
		"from": in.state,
		"to":   StateFailed,
		"kind": KindOf(err),
	}).Warn("ingest state")
	failed := &IngestError{ShareURL: in.shareURL, State: in.state, Err: err}
	in.state = StateFailed
	return failed
}

// ListPodcasts returns every subscribed show, most recent first.
func (e *Engine) ListPodcasts() ([]Show, error) {
	shows, err := e.store.ListShows()
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	return showsFromInternal(shows), nil
}

// GetPodcast returns a single show.
func (e *Engine) GetPodcast(showID int64) (*Show, error) {
	s, err := e.store.GetShow(showID)
	if err != nil {
		return nil, err
	}
	show := showFromInternal(*s)
	return &show, nil
}

// RemovePodcast unsubscribes a show, deleting its episodes and favorite
// flag. Play history keeps its snapshot.
func (e *Engine) RemovePodcast(showID int64) error {
	if err := e.store.DeleteShow(showID); err != nil {
		return err
	}
	e.log.WithField("show_id", showID).Info("removed show")
	return nil
}

// ListEpisodes returns a show's episodes, newest first, undated last.
func (e *Engine) ListEpisodes(showID int64) ([]Episode, error) {
	eps, err := e.store.ListEpisodes(showID)
	if err != nil {
		return nil, err
	}
	out := make([]Episode, len(eps))
	for i, ep := range eps {
		out[i] = episodeFromInternal(ep)
	}
	return out, nil
}

// Play records a history entry for the episode and returns what a player
// needs to start it.
func (e *Engine) Play(episodeID int64) (*PlayResult, error) {
	h, err := e.store.RecordPlay(episodeID)
	if err != nil {
		return nil, err
	}
	return &PlayResult{
		EpisodeID: episodeID,
		AudioURL:  h.AudioURL,
		Title:     h.EpisodeTitle,
		ShowTitle: h.ShowTitle,
		CoverURL:  h.CoverURL,
		Duration:  h.Duration,
		PlayedAt:  h.PlayedAt,
	}, nil
}

// UpdateProgress records how many seconds into an episode the listener is.
func (e *Engine) UpdateProgress(episodeID int64, seconds int) (*Episode, error) {
	ep, err := e.store.UpdateProgress(episodeID, seconds)
	if err != nil {
		return nil, err
	}
	out := episodeFromInternal(*ep)
	return &out, nil
}

// ToggleFavorite flips a show's favorite flag and returns the new state.
func (e *Engine) ToggleFavorite(showID int64) (bool, error) {
	return e.store.ToggleFavorite(showID)
}

// ListFavorites returns favorited shows, most recently favorited first.
func (e *Engine) ListFavorites() ([]Show, error) {
	shows, err := e.store.ListFavorites()
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return showsFromInternal(shows), nil
}

// ListHistory returns play history, most recent first. limit <= 0 means
// the configured default; larger than the configured maximum is capped.
func (e *Engine) ListHistory(limit int) ([]HistoryEntry, error) {
	entries, err := e.store.ListHistory(limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	out := make([]HistoryEntry, len(entries))
	for i, h := range entries {
		out[i] = HistoryEntry{
			ID:           h.ID,
			EpisodeID:    h.EpisodeID,
			ShowID:       h.ShowID,
			EpisodeTitle: h.EpisodeTitle,
			ShowTitle:    h.ShowTitle,
			CoverURL:     h.CoverURL,
			AudioURL:     h.AudioURL,
			Duration:     h.Duration,
			PlayedAt:     h.PlayedAt,
		}
	}
	return out, nil
}

// HistoryLimit reports the page size ListHistory will use for limit.
func (e *Engine) HistoryLimit(limit int) int { return e.store.HistoryLimit(limit) }

// RefreshPodcast re-reads a show's feed with a conditional request and
// syncs its episodes. Failures are recorded on the show and returned.
func (e *Engine) RefreshPodcast(ctx context.Context, showID int64) (*RefreshResult, error) {
	show, err := e.store.GetShow(showID)
	if err != nil {
		return nil, err
	}
	log := e.log.WithFields(logrus.Fields{"show_id": showID, "feed_url": show.FeedURL})
	result := &RefreshResult{ShowID: showID, Title: show.Title}

	fail := func(err error) (*RefreshResult, error) {
		log.WithError(err).Warn("refresh failed")
		if serr := e.store.SetShowError(showID, err.Error()); serr != nil {
			log.WithError(serr).Error("failed to record refresh error")
		}
		return nil, err
	}

	parsed, err := e.parser.ParseFeed(ctx, show.FeedURL, show.ETag, show.LastModified)
	if err != nil {
		return fail(err)
	}

	if parsed.NotModified {
		if err := e.store.ClearShowError(showID); err != nil {
			return nil, fmt.Errorf("mark show %d synced: %w", showID, err)
		}
		result.NotModified = true
		log.Debug("feed not modified")
		return result, nil
	}

	res, err := e.store.IngestFeed(ctx, storage.Ingest{
		FeedURL:      show.FeedURL,
		Show:         parsed.Show,
		Episodes:     parsed.Episodes,
		ETag:         parsed.ETag,
		LastModified: parsed.LastModified,
	})
	if err != nil {
		return fail(err)
	}
	result.Title = res.Show.Title
	result.Added = res.Sync.Added
	result.Updated = res.Sync.Updated
	result.Skipped = parsed.Skipped
	log.WithFields(logrus.Fields{
		"added":   result.Added,
		"updated": result.Updated,
		"skipped": result.Skipped,
	}).Info("refreshed show")
	return result, nil
}

// RefreshAll refreshes every show in turn. A failing show is counted and
// recorded; only context cancellation stops the run early.
func (e *Engine) RefreshAll(ctx context.Context) (*RefreshAllResult, error) {
	shows, err := e.store.ListShows()
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}

	out := &RefreshAllResult{Total: len(shows)}
	for _, s := range shows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := e.RefreshPodcast(ctx, s.ID)
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, RefreshResult{ShowID: s.ID, Title: s.Title, Error: err.Error()})
			continue
		}
		if res.NotModified {
			out.NotModified++
		} else {
			out.Refreshed++
			out.Added += res.Added
		}
		out.Results = append(out.Results, *res)
	}
	e.log.WithFields(logrus.Fields{
		"total":        out.Total,
		"refreshed":    out.Refreshed,
		"not_modified": out.NotModified,
		"failed":       out.Failed,
		"added":        out.Added,
	}).Info("refresh complete")
	return out, nil
}

// ImportOPML subscribes to every feed listed in an OPML file. Feeds already
// in the catalog are counted and left for the next refresh. Feeds that fail
// to add are reported, not fatal.
func (e *Engine) ImportOPML(ctx context.Context, path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}
	defer f.Close()

	list, err := feeds.ReadOPML(f)
	if err != nil {
		return nil, err
	}

	out := &ImportResult{Total: len(list)}
	for _, item := range list {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if _, err := e.store.GetShowByFeedURL(item.FeedURL); err == nil {
			out.Existing++
			continue
		} else if KindOf(err) != ErrNotFound {
			return out, err
		}
		if _, err := e.AddPodcast(ctx, item.FeedURL); err != nil {
			out.Failed = append(out.Failed, ImportFailure{FeedURL: item.FeedURL, Error: err.Error()})
			continue
		}
		out.Added++
	}
	return out, nil
}

// Stats returns listening totals and the most played shows.
func (e *Engine) Stats() (*Stats, error) {
	st, err := e.store.Stats()
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	out := &Stats{
		TotalPlays:    st.TotalPlays,
		TotalSeconds:  st.TotalSeconds,
		ShowCount:     st.ShowCount,
		EpisodeCount:  st.EpisodeCount,
		FavoriteCount: st.FavoriteCount,
		TopShows:      make([]ShowPlays, len(st.TopShows)),
	}
	for i, sp := range st.TopShows {
		out.TopShows[i] = ShowPlays{ShowID: sp.ShowID, ShowTitle: sp.ShowTitle, Plays: sp.Plays}
	}
	return out, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.store.Close()
}

func showFromInternal(s storage.Show) Show {
	return Show{
		ID:           s.ID,
		FeedURL:      s.FeedURL,
		ShareURL:     s.ShareURL,
		Platform:     s.Platform,
		Title:        s.Title,
		Author:       s.Author,
		CoverURL:     s.CoverURL,
		Description:  s.Description,
		EpisodeCount: s.EpisodeCount,
		SubscribedAt: s.SubscribedAt,
		LastSyncedAt: s.LastSyncedAt,
		LastError:    s.LastError,
		Favorite:     s.Favorite,
		FavoritedAt:  s.FavoritedAt,
	}
}

func showsFromInternal(ss []storage.Show) []Show {
	out := make([]Show, len(ss))
	for i, s := range ss {
		out[i] = showFromInternal(s)
	}
	return out
}

func episodeFromInternal(ep storage.Episode) Episode {
	return Episode{
		ID:          ep.ID,
		ShowID:      ep.ShowID,
		GUID:        ep.GUID,
		Title:       ep.Title,
		AudioURL:    ep.AudioURL,
		AudioType:   ep.AudioType,
		PublishedAt: ep.PublishedAt,
		Duration:    ep.Duration,
		Description: ep.Description,
		Progress:    ep.Progress,
		Played:      ep.Played,
		PlayedAt:    ep.PlayedAt,
	}
}
