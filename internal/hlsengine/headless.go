package hlsengine

import (
	"sync"

	"github.com/voyagen/iptvdeck/internal/player"
)

// HeadlessMedia is a media element without output, used by the command line
// player. It acknowledges every operation with the event a real element
// would raise.
type HeadlessMedia struct {
	mu       sync.Mutex
	listener func(player.MediaEvent)
	source   string
	muted    bool
	volume   float64
	position float64
}

// NewHeadlessMedia returns an element at full volume.
func NewHeadlessMedia() *HeadlessMedia { return &HeadlessMedia{volume: 1} }

func (m *HeadlessMedia) CanPlayType(string) bool { return false }

func (m *HeadlessMedia) Listen(fn func(player.MediaEvent)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

func (m *HeadlessMedia) SetSource(url string) {
	m.mu.Lock()
	m.source = url
	m.position = 0
	m.mu.Unlock()
	m.raise(player.MediaEvent{Kind: player.MediaLoadedMetadata})
}

// Source returns the URL currently assigned.
func (m *HeadlessMedia) Source() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.source
}

func (m *HeadlessMedia) Play() error {
	m.raise(player.MediaEvent{Kind: player.MediaPlaying})
	return nil
}

func (m *HeadlessMedia) Pause() { m.raise(player.MediaEvent{Kind: player.MediaPause}) }

func (m *HeadlessMedia) Seek(seconds float64) {
	m.mu.Lock()
	m.position = seconds
	m.mu.Unlock()
	m.raise(player.MediaEvent{Kind: player.MediaTimeUpdate, Time: seconds})
}

func (m *HeadlessMedia) SetPlaybackRate(float64) {}

func (m *HeadlessMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	ev := player.MediaEvent{Kind: player.MediaVolumeChange, Muted: m.muted, Volume: m.volume}
	m.mu.Unlock()
	m.raise(ev)
}

func (m *HeadlessMedia) SetVolume(v float64) {
	m.mu.Lock()
	m.volume = v
	ev := player.MediaEvent{Kind: player.MediaVolumeChange, Muted: m.muted, Volume: m.volume}
	m.mu.Unlock()
	m.raise(ev)
}

func (m *HeadlessMedia) Reset() {
	m.mu.Lock()
	m.source = ""
	m.position = 0
	m.mu.Unlock()
}

func (m *HeadlessMedia) raise(ev player.MediaEvent) {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
