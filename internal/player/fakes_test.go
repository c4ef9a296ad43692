package player

import (
	"context"
	"sync"
)

type fakeMedia struct {
	mu       sync.Mutex
	native   bool
	listener func(MediaEvent)
	sources  []string
	playErrs []error
	plays    int
	paused   int
	muted    bool
	volume   float64
	rate     float64
	seekedTo float64
	resets   int
}

func (m *fakeMedia) CanPlayType(mime string) bool { return m.native && mime == HLSMimeType }

func (m *fakeMedia) Listen(fn func(MediaEvent)) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

func (m *fakeMedia) SetSource(url string) {
	m.mu.Lock()
	m.sources = append(m.sources, url)
	m.mu.Unlock()
}

func (m *fakeMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	if len(m.playErrs) == 0 {
		return nil
	}
	err := m.playErrs[0]
	m.playErrs = m.playErrs[1:]
	return err
}

func (m *fakeMedia) Pause() {
	m.mu.Lock()
	m.paused++
	m.mu.Unlock()
}

func (m *fakeMedia) Seek(seconds float64) {
	m.mu.Lock()
	m.seekedTo = seconds
	m.mu.Unlock()
}

func (m *fakeMedia) SetPlaybackRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
}

func (m *fakeMedia) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.mu.Unlock()
}

func (m *fakeMedia) SetVolume(v float64) {
	m.mu.Lock()
	m.volume = v
	m.mu.Unlock()
}

func (m *fakeMedia) Reset() {
	m.mu.Lock()
	m.resets++
	m.mu.Unlock()
}

func (m *fakeMedia) currentListener() func(MediaEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener
}

func (m *fakeMedia) emit(ev MediaEvent) {
	if fn := m.currentListener(); fn != nil {
		fn(ev)
	}
}

func (m *fakeMedia) lastSource() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sources) == 0 {
		return ""
	}
	return m.sources[len(m.sources)-1]
}

type fakeEngines struct {
	unsupported bool
	mu          sync.Mutex
	engines     []*fakeEngine
}

func (f *fakeEngines) Supported() bool { return !f.unsupported }

func (f *fakeEngines) New(emit func(EngineEvent)) Engine {
	e := &fakeEngine{emit: emit, level: AutoLevel}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e
}

func (f *fakeEngines) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

func (f *fakeEngines) get(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

type fakeEngine struct {
	emit func(EngineEvent)

	mu         sync.Mutex
	source     string
	media      MediaElement
	startLoads int
	recoveries int
	level      int
	destroyed  bool
}

func (e *fakeEngine) LoadSource(url string) {
	e.mu.Lock()
	e.source = url
	e.mu.Unlock()
}

func (e *fakeEngine) AttachMedia(m MediaElement) {
	e.mu.Lock()
	e.media = m
	e.mu.Unlock()
}

func (e *fakeEngine) StartLoad() {
	e.mu.Lock()
	e.startLoads++
	e.mu.Unlock()
}

func (e *fakeEngine) RecoverMediaError() {
	e.mu.Lock()
	e.recoveries++
	e.mu.Unlock()
}

func (e *fakeEngine) SetLevel(i int) {
	e.mu.Lock()
	e.level = i
	e.mu.Unlock()
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	e.destroyed = true
	e.mu.Unlock()
}

// fire delivers ev even after Destroy, like a late callback would.
func (e *fakeEngine) fire(ev EngineEvent) { e.emit(ev) }

func (e *fakeEngine) state() (source string, startLoads, recoveries, level int, destroyed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source, e.startLoads, e.recoveries, e.level, e.destroyed
}

// proberFunc adapts a function to Prober.
type proberFunc func(ctx context.Context, url string) error

func (f proberFunc) Probe(ctx context.Context, url string) error { return f(ctx, url) }

func okProber() Prober {
	return proberFunc(func(context.Context, string) error { return nil })
}
