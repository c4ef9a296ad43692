package hlsengine

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/voyagen/iptvdeck/internal/player"
)

const master = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
mid/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080
http://other.test/high/index.m3u8
`

const media = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:1
#EXTINF:6.0,
seg1.ts
#EXTINF:6.0,
seg2.ts
`

type recorder struct {
	mu     sync.Mutex
	events []player.EngineEvent
}

func (r *recorder) emit(ev player.EngineEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) wait(t *testing.T, n int) []player.EngineEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.events) >= n
	}, time.Second, 5*time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.EngineEvent(nil), r.events...)
}

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/master.m3u8":
			_, _ = io.WriteString(w, master)
		case "/media.m3u8":
			_, _ = io.WriteString(w, media)
		case "/garbage.m3u8":
			_, _ = io.WriteString(w, "<html>nope</html>")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMasterPlaylistLevels(t *testing.T) {
	srv := newUpstream(t)
	rec := &recorder{}
	el := NewHeadlessMedia()
	e := (&Factory{Client: srv.Client()}).New(rec.emit)
	defer e.Destroy()

	e.AttachMedia(el)
	e.LoadSource(srv.URL + "/master.m3u8")

	events := rec.wait(t, 1)
	require.Equal(t, player.EngineManifestParsed, events[0].Kind)
	assert.Equal(t, []player.Level{
		{Height: 360, Bitrate: 800000},
		{Height: 720, Bitrate: 2800000},
		{Height: 1080, Bitrate: 5000000},
	}, events[0].Levels)
	assert.Equal(t, srv.URL+"/master.m3u8", el.Source())

	e.SetLevel(1)
	assert.Equal(t, srv.URL+"/mid/index.m3u8", el.Source())
	e.SetLevel(2)
	assert.Equal(t, "http://other.test/high/index.m3u8", el.Source())
	e.SetLevel(player.AutoLevel)
	assert.Equal(t, srv.URL+"/master.m3u8", el.Source())

	events = rec.wait(t, 4)
	assert.Equal(t, player.EngineLevelSwitched, events[1].Kind)
	assert.Equal(t, 1, events[1].Level)
}

func TestMediaPlaylistHasNoLevels(t *testing.T) {
	srv := newUpstream(t)
	rec := &recorder{}
	e := (&Factory{Client: srv.Client()}).New(rec.emit)
	defer e.Destroy()

	e.LoadSource(srv.URL + "/media.m3u8")
	events := rec.wait(t, 1)
	assert.Equal(t, player.EngineManifestParsed, events[0].Kind)
	assert.Empty(t, events[0].Levels)
}

func TestManifestLoadErrorIsFatalNetwork(t *testing.T) {
	srv := newUpstream(t)
	rec := &recorder{}
	e := (&Factory{Client: srv.Client()}).New(rec.emit)
	defer e.Destroy()

	e.LoadSource(srv.URL + "/missing.m3u8")
	ev := rec.wait(t, 1)[0]
	assert.Equal(t, player.EngineError, ev.Kind)
	assert.Equal(t, player.NetworkError, ev.Type)
	assert.Equal(t, player.DetailManifestLoadError, ev.Details)
	assert.True(t, ev.Fatal)
}

func TestUnparseableManifest(t *testing.T) {
	srv := newUpstream(t)
	rec := &recorder{}
	e := (&Factory{Client: srv.Client()}).New(rec.emit)
	defer e.Destroy()

	e.LoadSource(srv.URL + "/garbage.m3u8")
	ev := rec.wait(t, 1)[0]
	assert.Equal(t, player.OtherError, ev.Type)
	assert.Equal(t, DetailManifestParsingError, ev.Details)
}

func TestDestroySilencesLoad(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recorder{}
	e := (&Factory{Client: srv.Client()}).New(rec.emit)
	e.LoadSource(srv.URL + "/slow.m3u8")
	e.Destroy()
	e.StartLoad()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.events)
	srv.Client().CloseIdleConnections()
}

func TestSessionWithManifestEngine(t *testing.T) {
	srv := newUpstream(t)
	el := NewHeadlessMedia()
	s := player.New(el, &Factory{Client: srv.Client()}, nil, player.Options{})
	defer s.Close()

	ch := player.Channel{ID: 1, Name: "Test", StreamURL: srv.URL + "/master.m3u8", Type: "live"}
	require.NoError(t, s.Select(ch))
	require.Eventually(t, func() bool {
		return s.Snapshot().State == player.StatePlaying
	}, time.Second, 5*time.Millisecond)

	snap := s.Snapshot()
	assert.Equal(t, []string{"auto", "360p", "720p", "1080p"}, snap.Qualities)
	require.NoError(t, s.SetQuality("720p"))
	assert.Equal(t, srv.URL+"/mid/index.m3u8", el.Source())
}
