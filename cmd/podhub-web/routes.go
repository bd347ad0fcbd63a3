package main

import (
	"net/http"

	"github.com/matthewjhunter/podhub"
	"github.com/sirupsen/logrus"
)

// newRouter sets up all routes using Go 1.22+ enhanced routing.
func newRouter(engine *podhub.Engine, log *logrus.Entry) http.Handler {
	mux := http.NewServeMux()
	h := &handlers{engine: engine, log: log}

	mux.HandleFunc("GET /health", h.handleHealth)

	mux.HandleFunc("GET /api/podcasts", h.handlePodcastList)
	mux.HandleFunc("POST /api/podcasts", h.handlePodcastAdd)
	mux.HandleFunc("GET /api/podcasts/{id}", h.handlePodcastGet)
	mux.HandleFunc("DELETE /api/podcasts/{id}", h.handlePodcastRemove)
	mux.HandleFunc("POST /api/podcasts/{id}/refresh", h.handlePodcastRefresh)
	mux.HandleFunc("GET /api/podcasts/{id}/episodes", h.handleEpisodeList)

	mux.HandleFunc("POST /api/play/{id}", h.handlePlay)
	mux.HandleFunc("POST /api/progress/{id}", h.handleProgress)
	mux.HandleFunc("GET /api/favorites", h.handleFavoriteList)
	mux.HandleFunc("POST /api/favorites/{id}", h.handleFavoriteToggle)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/stats", h.handleStats)

	return mux
}
