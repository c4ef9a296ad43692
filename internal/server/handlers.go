package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/voyagen/iptvdeck/internal/apperr"
	"github.com/voyagen/iptvdeck/internal/models"
	"github.com/voyagen/iptvdeck/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			checks[c.Name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

// --- playlist handlers ---

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var src service.Source
	if err := decodeJSON(w, r, &src); err != nil {
		fail(w, r, err)
		return
	}
	preview, err := s.svc.ParseSource(r.Context(), src)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	created, err := s.svc.CreatePlaylist(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var activeID int64
	if v := q.Get("activePlaylistId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail(w, r, apperr.Validation("invalid activePlaylistId: %s", v))
			return
		}
		activeID = id
	}
	pls, err := s.svc.ListPlaylists(r.Context(), q.Get("deviceKey"), activeID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": pls})
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	pl, err := s.svc.GetPlaylist(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.svc.DeletePlaylist(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) handleRefreshPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	queued, res, err := s.svc.EnqueueRefresh(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if queued {
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "queued": true})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := service.ChannelQuery{
		Type:   q.Get("type"),
		Group:  q.Get("group"),
		Search: q.Get("search"),
	}
	ints := []struct {
		name string
		dst  func(int64)
	}{
		{"playlistId", func(v int64) { query.PlaylistID = v }},
		{"limit", func(v int64) { query.Limit = int(v) }},
		{"offset", func(v int64) { query.Offset = int(v) }},
	}
	for _, p := range ints {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			fail(w, r, apperr.Validation("invalid %s: %s", p.name, v))
			return
		}
		p.dst(n)
	}

	page, err := s.svc.ListChannels(r.Context(), query)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// channelDTO is the playback-facing view of a channel.
type channelDTO struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	StreamURL string             `json:"streamUrl"`
	Logo      *string            `json:"logo"`
	Group     *string            `json:"group"`
	Type      models.ContentType `json:"type"`
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	ch, err := s.svc.GetChannel(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]channelDTO{"channel": {
		ID:        ch.ID,
		Name:      ch.Name,
		StreamURL: ch.StreamURL,
		Logo:      ch.Logo,
		Group:     ch.Group,
		Type:      ch.Type,
	}})
}

// --- stream handlers ---

type resolveRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.proxy.Resolve(r.Context(), req.URL)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
