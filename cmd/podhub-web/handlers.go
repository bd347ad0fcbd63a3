package main

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/matthewjhunter/podhub"
	"github.com/sirupsen/logrus"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *podhub.Engine
	log    *logrus.Entry
}

// envelope is the shape of every API response.
type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type addRequest struct {
	URL string `json:"url"`
}

type progressRequest struct {
	Progress float64 `json:"progress"` // seconds; a missing field means 0
}

const maxRequestBody = 64 << 10

// --- Helper methods ---

func writeJSON(w http.ResponseWriter, status int, v envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// fail maps an engine error onto a status code and writes the error envelope.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := podhub.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"path":       r.URL.Path,
		}).WithError(err).Error("request failed")
		msg = "internal server error"
	}
	writeJSON(w, status, envelope{Error: &apiError{Kind: string(kind), Message: msg}})
}

func (h *handlers) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, envelope{
		Error: &apiError{Kind: string(podhub.ErrInvalidInput), Message: msg},
	})
}

func statusFor(kind podhub.ErrorKind) int {
	switch kind {
	case podhub.ErrInvalidInput:
		return http.StatusBadRequest
	case podhub.ErrNotFound:
		return http.StatusNotFound
	case podhub.ErrResolutionNotFound, podhub.ErrParse:
		return http.StatusUnprocessableEntity
	case podhub.ErrFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// idOrFail parses the {id} path value, writing a 400 when it is invalid.
func (h *handlers) idOrFail(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id := pathID(r)
	if id <= 0 {
		h.badRequest(w, "invalid "+what+" ID")
		return 0, false
	}
	return id, true
}

// addURL reads the share URL from a JSON body or a form field.
func addURL(w http.ResponseWriter, r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req addRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return strings.TrimSpace(req.URL), nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return strings.TrimSpace(r.FormValue("url")), nil
}

// --- Handlers ---

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.ok(w, map[string]string{"status": "ok"})
}

func (h *handlers) handlePodcastList(w http.ResponseWriter, r *http.Request) {
	shows, err := h.engine.ListPodcasts()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if shows == nil {
		shows = []podhub.Show{}
	}
	h.ok(w, shows)
}

func (h *handlers) handlePodcastAdd(w http.ResponseWriter, r *http.Request) {
	url, err := addURL(w, r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if url == "" {
		h.badRequest(w, "url is required")
		return
	}

	show, err := h.engine.AddPodcast(r.Context(), url)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, show)
}

func (h *handlers) handlePodcastGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "podcast")
	if !ok {
		return
	}
	show, err := h.engine.GetPodcast(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, show)
}

func (h *handlers) handlePodcastRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "podcast")
	if !ok {
		return
	}
	if err := h.engine.RemovePodcast(id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]int64{"removed": id})
}

func (h *handlers) handlePodcastRefresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "podcast")
	if !ok {
		return
	}
	res, err := h.engine.RefreshPodcast(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, res)
}

func (h *handlers) handleEpisodeList(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "podcast")
	if !ok {
		return
	}
	eps, err := h.engine.ListEpisodes(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if eps == nil {
		eps = []podhub.Episode{}
	}
	h.ok(w, eps)
}

func (h *handlers) handlePlay(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "episode")
	if !ok {
		return
	}
	res, err := h.engine.Play(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, res)
}

func (h *handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "episode")
	if !ok {
		return
	}
	var req progressRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.badRequest(w, "invalid JSON body")
		return
	}
	if req.Progress < 0 || req.Progress > math.MaxInt32 {
		h.badRequest(w, "progress out of range")
		return
	}
	ep, err := h.engine.UpdateProgress(id, int(req.Progress))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, ep)
}

func (h *handlers) handleFavoriteList(w http.ResponseWriter, r *http.Request) {
	shows, err := h.engine.ListFavorites()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if shows == nil {
		shows = []podhub.Show{}
	}
	h.ok(w, shows)
}

func (h *handlers) handleFavoriteToggle(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idOrFail(w, r, "podcast")
	if !ok {
		return
	}
	on, err := h.engine.ToggleFavorite(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, map[string]any{"show_id": id, "favorite": on})
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.badRequest(w, "limit must be an integer")
			return
		}
		limit = n
	}
	entries, err := h.engine.ListHistory(limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []podhub.HistoryEntry{}
	}
	h.ok(w, entries)
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, stats)
}
