package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matthewjhunter/podhub"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// server is the podhub MCP server.
type server struct {
	engine *podhub.Engine
	log    *logrus.Entry
	poller *poller // non-nil when --poll is enabled
	mcp    *mcp.Server
}

func newServer(engine *podhub.Engine, log *logrus.Entry) *server {
	s := &server{engine: engine, log: log}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "podhub", Version: "0.1.0"}, nil)
	s.registerTools()
	return s
}

// run serves MCP over stdin/stdout until the client disconnects or ctx ends.
func (s *server) run(ctx context.Context) error {
	s.log.Info("podhub-mcp starting")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "podcast_add",
		Description: "Subscribe to a podcast from a share link (Apple Podcasts, Xiaoyuzhou, Netease, or any page that links its feed) or a direct feed URL. Returns the stored show with its episode count. Adding an already-subscribed feed returns the existing show.",
	}, s.podcastAdd)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "podcasts_list",
		Description: "List subscribed podcasts, most recently subscribed first.",
	}, s.podcastsList)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "podcast_remove",
		Description: "Unsubscribe from a podcast and delete its episodes. Play history is kept.",
	}, s.podcastRemove)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "podcast_refresh",
		Description: "Re-read a podcast's feed and store new episodes. Without show_id, refreshes every podcast.",
	}, s.podcastRefresh)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "episodes_list",
		Description: "List a podcast's episodes, newest first, with audio URLs and durations in seconds.",
	}, s.episodesList)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "episode_play",
		Description: "Record a play of an episode and return its audio URL for playback.",
	}, s.episodePlay)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "episode_progress",
		Description: "Save the playback position of an episode, in whole seconds from the start.",
	}, s.episodeProgress)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "favorite_toggle",
		Description: "Flip a podcast's favorite flag. Returns the new state.",
	}, s.favoriteToggle)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "favorites_list",
		Description: "List favorite podcasts.",
	}, s.favoritesList)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "history_list",
		Description: "List recently played episodes, newest first. Entries survive removal of their podcast.",
	}, s.historyList)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats",
		Description: "Listening statistics: total plays, total listened time and the most played podcasts.",
	}, s.stats)
}

// --- tool handlers ---

func (s *server) podcastAdd(ctx context.Context, _ *mcp.CallToolRequest, in podcastAddInput) (*mcp.CallToolResult, any, error) {
	if in.URL == "" {
		return mcpError("url parameter is required"), nil, nil
	}
	show, err := s.engine.AddPodcast(ctx, in.URL)
	if err != nil {
		return toolError(err), nil, nil
	}
	s.log.WithFields(logrus.Fields{"tool": "podcast_add", "show_id": show.ID}).Info("added")
	return mcpJSON(show), nil, nil
}

func (s *server) podcastsList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	shows, err := s.engine.ListPodcasts()
	if err != nil {
		return toolError(err), nil, nil
	}
	if shows == nil {
		shows = []podhub.Show{}
	}
	return mcpJSON(shows), nil, nil
}

func (s *server) podcastRemove(ctx context.Context, _ *mcp.CallToolRequest, in showIDInput) (*mcp.CallToolResult, any, error) {
	if in.ShowID == 0 {
		return mcpError("show_id parameter is required"), nil, nil
	}
	if err := s.engine.RemovePodcast(in.ShowID); err != nil {
		return toolError(err), nil, nil
	}
	s.log.WithFields(logrus.Fields{"tool": "podcast_remove", "show_id": in.ShowID}).Info("removed")
	return mcpText("Removed podcast %d.", in.ShowID), nil, nil
}

func (s *server) podcastRefresh(ctx context.Context, _ *mcp.CallToolRequest, in podcastRefreshInput) (*mcp.CallToolResult, any, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if in.ShowID != nil {
		res, err := s.engine.RefreshPodcast(ctx, *in.ShowID)
		if err != nil {
			return toolError(err), nil, nil
		}
		return mcpJSON(res), nil, nil
	}

	var (
		res *podhub.RefreshAllResult
		err error
	)
	if s.poller != nil {
		res, err = s.poller.poll(ctx)
	} else {
		res, err = s.engine.RefreshAll(ctx)
	}
	if err != nil {
		return toolError(err), nil, nil
	}
	return mcpJSON(res), nil, nil
}

func (s *server) episodesList(ctx context.Context, _ *mcp.CallToolRequest, in episodesListInput) (*mcp.CallToolResult, any, error) {
	if in.ShowID == 0 {
		return mcpError("show_id parameter is required"), nil, nil
	}
	eps, err := s.engine.ListEpisodes(in.ShowID)
	if err != nil {
		return toolError(err), nil, nil
	}
	if in.Limit != nil && *in.Limit > 0 && len(eps) > *in.Limit {
		eps = eps[:*in.Limit]
	}
	if eps == nil {
		eps = []podhub.Episode{}
	}
	return mcpJSON(eps), nil, nil
}

func (s *server) episodePlay(ctx context.Context, _ *mcp.CallToolRequest, in episodeIDInput) (*mcp.CallToolResult, any, error) {
	if in.EpisodeID == 0 {
		return mcpError("episode_id parameter is required"), nil, nil
	}
	res, err := s.engine.Play(in.EpisodeID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return mcpJSON(res), nil, nil
}

func (s *server) episodeProgress(ctx context.Context, _ *mcp.CallToolRequest, in episodeProgressInput) (*mcp.CallToolResult, any, error) {
	if in.EpisodeID == 0 {
		return mcpError("episode_id parameter is required"), nil, nil
	}
	ep, err := s.engine.UpdateProgress(in.EpisodeID, in.Progress)
	if err != nil {
		return toolError(err), nil, nil
	}
	return mcpJSON(ep), nil, nil
}

func (s *server) favoriteToggle(ctx context.Context, _ *mcp.CallToolRequest, in showIDInput) (*mcp.CallToolResult, any, error) {
	if in.ShowID == 0 {
		return mcpError("show_id parameter is required"), nil, nil
	}
	on, err := s.engine.ToggleFavorite(in.ShowID)
	if err != nil {
		return toolError(err), nil, nil
	}
	return mcpJSON(map[string]any{"show_id": in.ShowID, "favorite": on}), nil, nil
}

func (s *server) favoritesList(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	shows, err := s.engine.ListFavorites()
	if err != nil {
		return toolError(err), nil, nil
	}
	if shows == nil {
		shows = []podhub.Show{}
	}
	return mcpJSON(shows), nil, nil
}

func (s *server) historyList(ctx context.Context, _ *mcp.CallToolRequest, in historyListInput) (*mcp.CallToolResult, any, error) {
	limit := 0
	if in.Limit != nil {
		limit = *in.Limit
	}
	entries, err := s.engine.ListHistory(limit)
	if err != nil {
		return toolError(err), nil, nil
	}
	if entries == nil {
		entries = []podhub.HistoryEntry{}
	}
	return mcpJSON(entries), nil, nil
}

func (s *server) stats(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	st, err := s.engine.Stats()
	if err != nil {
		return toolError(err), nil, nil
	}
	return mcpJSON(st), nil, nil
}

// --- MCP response helpers ---

func mcpText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func mcpJSON(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return mcpError("marshal response: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func mcpError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: "+format, args...)}},
		IsError: true,
	}
}

// toolError reports an engine failure with its kind so clients can decide
// whether to retry.
func toolError(err error) *mcp.CallToolResult {
	if podhub.IsRetryable(err) {
		return mcpError("%v (temporary, retry later)", err)
	}
	return mcpError("%v", err)
}
