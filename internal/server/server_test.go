package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvdeck/internal/config"
	"github.com/voyagen/iptvdeck/internal/fetcher"
	"github.com/voyagen/iptvdeck/internal/models"
	"github.com/voyagen/iptvdeck/internal/player"
	"github.com/voyagen/iptvdeck/internal/service"
	"github.com/voyagen/iptvdeck/internal/store"
	"github.com/voyagen/iptvdeck/internal/streamproxy"
)

const samplePlaylist = `#EXTM3U
#EXTINF:-1 tvg-id="news1" tvg-logo="http://img.test/n.png" group-title="News",News One
http://cdn.test/live/news1.m3u8
#EXTINF:-1 group-title="Movies",Big Film
http://cdn.test/movie/film.mp4
#EXTINF:-1 group-title="TV Shows",Some Show S01E01
http://cdn.test/series/show.mkv
`

func newTestServer(t *testing.T, mutate func(*config.Config), checks ...Check) *Server {
	t.Helper()
	cfg := config.Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	svc := service.New(store.NewMemory(), fetcher.NewResolver(nil, "test", time.Second), nil, service.Options{PageSize: cfg.ChannelPageSize})
	proxy := streamproxy.New(streamproxy.Config{Endpoint: cfg.ProxyEndpoint, Timeout: time.Second, UserAgent: "test"})
	return New(svc, proxy, cfg, checks...)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func createSample(t *testing.T, h http.Handler) service.Created {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/playlists",
		jsonBody(t, map[string]string{"name": "Home", "deviceKey": "dev-1", "content": samplePlaylist}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[service.Created](t, rec)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, Check{Name: "store", Ping: func(context.Context) error { return nil }})
	rec := do(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])

	srv = newTestServer(t, nil, Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }})
	rec = do(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["redis"])
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/health", "")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodOptions, "/api/playlists", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodPost, "/api/playlists/parse", jsonBody(t, map[string]string{"content": samplePlaylist}))
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decode[service.Preview](t, rec)
	assert.True(t, preview.Success)
	assert.Equal(t, 3, preview.TotalChannels)
	require.Len(t, preview.Channels, 3)
	assert.Equal(t, models.ContentSeries, preview.Channels[2].Type)
}

func TestParseEndpointFailure(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/playlists/parse", jsonBody(t, map[string]string{"content": "hello"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	apiErr := decode[APIError](t, rec)
	assert.Equal(t, "Failed to parse playlist", apiErr.Detail)
	assert.Equal(t, []string{fetcher.ErrMissingHeader}, apiErr.Details)

	rec = do(t, srv, http.MethodPost, "/api/playlists/parse", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/playlists/parse", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/playlists/parse", jsonBody(t, map[string]string{"url": "http://example.com/index.html"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylistLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	created := createSample(t, srv)
	assert.Equal(t, "Home", created.Name)
	assert.Equal(t, 3, created.ChannelCount)

	rec := do(t, srv, http.MethodGet, "/api/playlists?deviceKey=dev-1&activePlaylistId="+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Playlists []models.Playlist `json:"playlists"`
	}](t, rec)
	require.Len(t, list.Playlists, 1)
	assert.True(t, list.Playlists[0].IsActive)
	assert.Equal(t, 3, list.Playlists[0].ChannelCount)

	rec = do(t, srv, http.MethodGet, "/api/playlists?deviceKey=someone-else", "")
	assert.Contains(t, rec.Body.String(), `"playlists":[]`)

	rec = do(t, srv, http.MethodGet, "/api/playlists/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "EXTM3U")

	rec = do(t, srv, http.MethodPost, "/api/playlists/"+itoa(created.ID)+"/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[service.Refreshed](t, rec).ChannelCount)

	rec = do(t, srv, http.MethodDelete, "/api/playlists/"+itoa(created.ID), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/playlists/"+itoa(created.ID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decode[APIError](t, rec).Error)
}

func TestPlaylistBadRequests(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodPost, "/api/playlists", `{"name":"x","content":"#EXTM3U"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/playlists", `{"name":"x","deviceKey":"d","content":"#EXTM3U\n"}`, http.StatusBadRequest},
		{http.MethodGet, "/api/playlists/abc", "", http.StatusBadRequest},
		{http.MethodGet, "/api/playlists/0", "", http.StatusBadRequest},
		{http.MethodGet, "/api/playlists?activePlaylistId=x", "", http.StatusBadRequest},
		{http.MethodDelete, "/api/playlists/42", "", http.StatusNotFound},
		{http.MethodPost, "/api/playlists/42/refresh", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestChannelEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	created := createSample(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/channels?playlistId="+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[service.ChannelPage](t, rec)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 50, page.Limit)

	rec = do(t, srv, http.MethodGet, "/api/channels?playlistId="+itoa(created.ID)+"&type=movie", "")
	page = decode[service.ChannelPage](t, rec)
	require.Len(t, page.Channels, 1)
	assert.Equal(t, "Big Film", page.Channels[0].Name)

	rec = do(t, srv, http.MethodGet, "/api/channels?playlistId="+itoa(created.ID)+"&limit=1&offset=1", "")
	page = decode[service.ChannelPage](t, rec)
	require.Len(t, page.Channels, 1)
	assert.Equal(t, 1, page.Offset)

	rec = do(t, srv, http.MethodGet, "/api/channels?playlistId="+itoa(created.ID)+"&search=news", "")
	page = decode[service.ChannelPage](t, rec)
	require.Len(t, page.Channels, 1)

	rec = do(t, srv, http.MethodGet, "/api/channels/"+itoa(page.Channels[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Channel map[string]any `json:"channel"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "News One", body.Channel["name"])
	assert.Equal(t, "http://cdn.test/live/news1.m3u8", body.Channel["streamUrl"])
	assert.Equal(t, "http://img.test/n.png", body.Channel["logo"])
	assert.Equal(t, "News", body.Channel["group"])
	assert.Equal(t, "live", body.Channel["type"])
	assert.NotContains(t, body.Channel, "playlistId")

	for _, target := range []string{
		"/api/channels",
		"/api/channels?playlistId=abc",
		"/api/channels?playlistId=1&type=radio",
		"/api/channels?playlistId=1&limit=ten",
	} {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, target, "").Code, target)
	}
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/channels/999", "").Code)
}

func TestFetchChannelAgainstServer(t *testing.T) {
	srv := newTestServer(t, nil)
	created := createSample(t, srv)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	rec := do(t, srv, http.MethodGet, "/api/channels?playlistId="+itoa(created.ID)+"&type=series", "")
	id := decode[service.ChannelPage](t, rec).Channels[0].ID

	ch, err := player.FetchChannel(t.Context(), ts.Client(), ts.URL, id)
	require.NoError(t, err)
	assert.Equal(t, "Some Show S01E01", ch.Name)
	assert.Equal(t, models.ContentSeries, ch.Type)
	assert.False(t, ch.Live())

	_, err = player.FetchChannel(t.Context(), ts.Client(), ts.URL, 999)
	assert.ErrorContains(t, err, "404")
}

func TestStreamProxyRoutes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = io.WriteString(w, "#EXTM3U\nseg.ts\n")
	}))
	defer upstream.Close()
	srv := newTestServer(t, nil)

	for _, path := range []string{"/api/stream/proxy", ProxyAlias} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, path+"?url="+url.QueryEscape(upstream.URL+"/live/index.m3u8"), "")
			require.Equal(t, http.StatusOK, rec.Code)
			// Rewritten URIs always point at the configured endpoint.
			want := "#EXTM3U\n" + streamproxy.ProxyURL("/api/stream/proxy", upstream.URL+"/live/seg.ts") + "\n"
			assert.Equal(t, want, rec.Body.String())
		})
	}

	rec := do(t, srv, http.MethodGet, "/api/stream/proxy", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodOptions, "/api/stream/proxy?url=x", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestStreamProxyRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.ProxyRateLimit = 2 })
	for range 2 {
		assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/stream/proxy", "").Code)
	}
	rec := do(t, srv, http.MethodGet, "/api/stream/proxy", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/health", "").Code)
}

func TestResolveEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/go", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/final.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-mpegURL")
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/stream/resolve", jsonBody(t, map[string]string{"url": upstream.URL + "/go"}))
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[streamproxy.Resolution](t, rec)
	assert.Equal(t, upstream.URL+"/final.m3u8", res.ResolvedURL)
	assert.Equal(t, http.StatusOK, res.Status)

	rec = do(t, srv, http.MethodPost, "/api/stream/resolve", `{"url":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndDocs(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = do(t, srv, http.MethodGet, "/api/docs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "swagger-ui")

	rec = do(t, srv, http.MethodGet, "/api/docs/openapi.yaml", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "openapi:")

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/nope", "").Code)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
