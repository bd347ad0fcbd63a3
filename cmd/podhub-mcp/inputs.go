package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types and omitempty fields are optional; the rest are required.

type podcastAddInput struct {
	URL string `json:"url" jsonschema:"Share link from a podcast app or web page, or a direct RSS/Atom feed URL"`
}

type showIDInput struct {
	ShowID int64 `json:"show_id" jsonschema:"The podcast (show) ID"`
}

type podcastRefreshInput struct {
	ShowID *int64 `json:"show_id,omitempty" jsonschema:"Podcast to refresh. If omitted every subscribed podcast is refreshed."`
}

type episodesListInput struct {
	ShowID int64 `json:"show_id"         jsonschema:"The podcast (show) ID"`
	Limit  *int  `json:"limit,omitempty" jsonschema:"Maximum number of episodes to return, newest first (default all)"`
}

type episodeIDInput struct {
	EpisodeID int64 `json:"episode_id" jsonschema:"The episode ID"`
}

type episodeProgressInput struct {
	EpisodeID int64 `json:"episode_id" jsonschema:"The episode ID"`
	Progress  int   `json:"progress"   jsonschema:"Playback position in seconds"`
}

type historyListInput struct {
	Limit *int `json:"limit,omitempty" jsonschema:"Number of entries to return (default 50, capped at the configured maximum)"`
}

type emptyInput struct{}
