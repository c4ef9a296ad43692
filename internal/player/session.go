// Package player implements the client-side playback controller. A Session
// picks a playback strategy for each selected channel (native HLS, an HLS
// engine, or direct file playback), routes the stream through the proxy when
// it answers, and recovers from engine failures through a fixed fallback chain.
//
// All state lives on a single loop goroutine fed by a mailbox. Engine, media
// and probe callbacks are tagged with the generation they were created for and
// are dropped once that generation has been torn down.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/streamproxy"
)

// Options configure a Session.
type Options struct {
	// ProxyBase is prepended to ProxyEndpoint, e.g. "http://localhost:8080".
	// Empty yields same-origin relative proxy URLs.
	ProxyBase string
	// ProxyEndpoint is the stream proxy path. Empty disables the proxy.
	ProxyEndpoint string
	Device        Device
	// RetryBackoff is the pause before resuming after a network error. Default 1s.
	RetryBackoff time.Duration
	// MaxNetworkRetries caps StartLoad retries per engine. 0 means no cap.
	MaxNetworkRetries int
	// MaxMediaRecoveries caps in-place media recoveries per engine. 0 means no cap.
	MaxMediaRecoveries int
	// ProbeTimeout bounds the proxy probe. Default 5s.
	ProbeTimeout time.Duration
	// OnChange is called on the session goroutine after a visible change.
	// It must not call back into the Session.
	OnChange func(Snapshot)
}

// ErrNotReady is returned by playback commands before a stream is loaded.
var ErrNotReady = errors.New("player: stream is not loaded")

type message any

type (
	msgProbe struct {
		gen uint64
		url string
		err error
	}

	msgEngine struct {
		gen uint64
		ev  EngineEvent
	}

	msgMedia struct {
		gen uint64
		ev  MediaEvent
	}

	msgCommand struct {
		fn    func() error
		reply chan error
	}

	msgRetry struct{ gen uint64 }
	msgClose struct{ reply chan error }
)

// Session is one player view. Create with New and release with Close.
type Session struct {
	media   MediaElement
	engines EngineFactory
	prober  Prober
	opts    Options
	logger  zerolog.Logger

	box    *mailbox
	done   chan struct{}
	probes sync.WaitGroup

	mu        sync.Mutex
	published Snapshot

	// Owned by the loop goroutine.
	snap        Snapshot
	engine      Engine
	cancelProbe context.CancelFunc
	retryTimer  *time.Timer
	notified    string
}

// New starts a session bound to media. engines may be nil when no HLS engine
// is available; prober may be nil to probe with plain HEAD requests.
func New(media MediaElement, engines EngineFactory, prober Prober, opts Options) *Session {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if prober == nil {
		prober = HTTPProber{}
	}
	s := &Session{
		media:   media,
		engines: engines,
		prober:  prober,
		opts:    opts,
		logger:  xlog.WithComponent("player"),
		box:     newMailbox(),
		done:    make(chan struct{}),
		snap:    Snapshot{State: StateIdle, Speed: 1, Volume: 1, Quality: "auto"},
	}
	s.published = s.snap.clone()
	go s.run()
	return s
}

// Select tears down whatever is playing and starts resolving ch.
func (s *Session) Select(ch Channel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	return s.call(func() error {
		s.selectChannel(ch)
		return nil
	})
}

// Snapshot returns the state after every message posted before the call
// has been handled.
func (s *Session) Snapshot() Snapshot {
	_ = s.call(nil)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published.clone()
}

// TogglePlay pauses a playing stream or starts a paused one.
func (s *Session) TogglePlay() error {
	return s.call(func() error {
		if err := s.requireLoaded(); err != nil {
			return err
		}
		if s.snap.Playing {
			s.media.Pause()
			s.snap.Playing = false
			return nil
		}
		if err := s.media.Play(); err != nil {
			s.snap.ShowPlayOverlay = !s.opts.Device.Mobile
			return fmt.Errorf("player: play: %w", err)
		}
		s.markPlaying()
		return nil
	})
}

// Seek moves playback to seconds, clamped to the known duration.
func (s *Session) Seek(seconds float64) error {
	return s.call(func() error { return s.seek(seconds) })
}

// Skip moves playback by delta seconds.
func (s *Session) Skip(delta float64) error {
	return s.call(func() error { return s.seek(s.snap.CurrentTime + delta) })
}

// SetSpeed changes the playback rate of on-demand content.
func (s *Session) SetSpeed(rate float64) error {
	return s.call(func() error {
		if err := s.requireOnDemand(); err != nil {
			return err
		}
		if !slices.Contains(Speeds, rate) {
			return ErrBadSpeed
		}
		s.media.SetPlaybackRate(rate)
		s.snap.Speed = rate
		return nil
	})
}

// SetQuality selects a label from the quality list. "auto" hands level
// selection back to the engine.
func (s *Session) SetQuality(label string) error {
	return s.call(func() error {
		idx := slices.Index(s.snap.Qualities, label)
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownLevel, label)
		}
		if s.engine == nil {
			return ErrNoEngine
		}
		// Position 0 is "auto", so idx-1 is AutoLevel for it and the level index otherwise.
		s.engine.SetLevel(idx - 1)
		s.snap.Quality = label
		return nil
	})
}

// ToggleMute flips the muted flag.
func (s *Session) ToggleMute() error {
	return s.call(func() error {
		s.snap.Muted = !s.snap.Muted
		s.media.SetMuted(s.snap.Muted)
		return nil
	})
}

// SetVolume sets the volume in [0, 1]. Zero also mutes.
func (s *Session) SetVolume(v float64) error {
	return s.call(func() error {
		v = math.Max(0, math.Min(1, v))
		s.media.SetVolume(v)
		s.snap.Volume = v
		if v == 0 && !s.snap.Muted {
			s.snap.Muted = true
			s.media.SetMuted(true)
		} else if v > 0 && s.snap.Muted {
			s.snap.Muted = false
			s.media.SetMuted(false)
		}
		return nil
	})
}

// Close destroys any engine, detaches the media element and stops the loop.
// Late callbacks are ignored. Close is idempotent.
func (s *Session) Close() error {
	reply := make(chan error, 1)
	if s.box.put(msgClose{reply: reply}) {
		<-reply
	}
	<-s.done
	s.probes.Wait()
	return nil
}

func (s *Session) call(fn func() error) error {
	reply := make(chan error, 1)
	if !s.box.put(msgCommand{fn: fn, reply: reply}) {
		return ErrClosed
	}
	return <-reply
}

func (s *Session) run() {
	defer close(s.done)
	for range s.box.signal {
		batch := s.box.take()
		for i, m := range batch {
			if s.handle(m) {
				for _, rest := range batch[i+1:] {
					reject(rest)
				}
				return
			}
			s.publish()
		}
	}
}

// handle processes one message and reports whether the session closed.
func (s *Session) handle(m message) bool {
	switch m := m.(type) {
	case msgCommand:
		var err error
		if m.fn != nil {
			err = m.fn()
		}
		m.reply <- err
	case msgProbe:
		s.onProbe(m)
	case msgEngine:
		s.onEngine(m)
	case msgMedia:
		s.onMedia(m)
	case msgRetry:
		s.onRetry(m)
	case msgClose:
		s.teardown()
		s.setState(StateStopped)
		s.snap.Playing = false
		s.snap.ShowPlayOverlay = false
		s.publish()
		for _, rest := range s.box.close() {
			reject(rest)
		}
		m.reply <- nil
		return true
	}
	return false
}

func reject(m message) {
	switch m := m.(type) {
	case msgCommand:
		m.reply <- ErrClosed
	case msgClose:
		m.reply <- nil
	}
}

func (s *Session) publish() {
	snap := s.snap.clone()
	s.mu.Lock()
	s.published = snap
	s.mu.Unlock()

	if s.opts.OnChange == nil {
		return
	}
	key := fmt.Sprintf("%d|%s|%s|%s|%v|%v|%v|%s|%s", snap.Generation, snap.State, snap.Strategy, snap.URL,
		snap.Playing, snap.ShowPlayOverlay, snap.Qualities, snap.Quality, snap.Error)
	if key != s.notified {
		s.notified = key
		s.opts.OnChange(snap)
	}
}

func (s *Session) setState(to State) bool {
	from := s.snap.State
	if from == to {
		return true
	}
	if !canTransition(from, to) {
		s.logger.Warn().Str("from", string(from)).Str("to", string(to)).Msg("ignored invalid transition")
		return false
	}
	s.logger.Debug().Str("from", string(from)).Str("to", string(to)).Uint64("gen", s.snap.Generation).Msg("transition")
	s.snap.State = to
	return true
}

// teardown invalidates the current generation and releases everything bound
// to it. The engine is destroyed before anything new can be built.
func (s *Session) teardown() {
	s.snap.Generation++
	if s.cancelProbe != nil {
		s.cancelProbe()
		s.cancelProbe = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.engine != nil {
		s.engine.Destroy()
		s.engine = nil
	}
	s.media.Listen(nil)
	s.media.Reset()
}

func (s *Session) listen() {
	gen := s.snap.Generation
	s.media.Listen(func(ev MediaEvent) {
		s.box.put(msgMedia{gen: gen, ev: ev})
	})
}

func (s *Session) stale(gen uint64, what string) bool {
	if gen == s.snap.Generation {
		return false
	}
	s.logger.Debug().Uint64("gen", gen).Uint64("current", s.snap.Generation).Str("event", what).Msg("dropped stale callback")
	return true
}

func (s *Session) selectChannel(ch Channel) {
	s.teardown()
	s.snap = Snapshot{
		Generation: s.snap.Generation,
		Channel:    &ch,
		State:      s.snap.State,
		Quality:    "auto",
		Speed:      1,
		Muted:      s.snap.Muted,
		Volume:     s.snap.Volume,
	}
	s.setState(StateResolving)
	s.listen()
	s.logger.Info().Int64("channel", ch.ID).Str("name", ch.Name).Msg("resolving stream")

	if s.opts.Device.IOS || s.media.CanPlayType(HLSMimeType) {
		s.startNative()
		return
	}
	if s.opts.ProxyEndpoint == "" {
		s.choose(ch.StreamURL, false)
		return
	}

	proxied := s.opts.ProxyBase + streamproxy.ProxyURL(s.opts.ProxyEndpoint, ch.StreamURL)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ProbeTimeout)
	s.cancelProbe = cancel
	gen := s.snap.Generation
	s.probes.Add(1)
	go func() {
		defer s.probes.Done()
		defer cancel()
		err := s.prober.Probe(ctx, proxied)
		s.box.put(msgProbe{gen: gen, url: proxied, err: err})
	}()
}

func (s *Session) onProbe(m msgProbe) {
	if s.stale(m.gen, "probe") {
		return
	}
	s.cancelProbe = nil
	if m.err != nil {
		s.logger.Info().Err(m.err).Msg("proxy probe failed, using direct URL")
		s.choose(s.snap.Channel.StreamURL, false)
		return
	}
	s.choose(m.url, true)
}

func (s *Session) choose(url string, useProxy bool) {
	s.snap.UseProxy = useProxy
	if s.engines != nil && s.engines.Supported() {
		s.startEngine(url)
		return
	}
	s.startDirect()
}

func (s *Session) startNative() {
	if !s.setState(StateNativeHLS) {
		return
	}
	s.snap.Strategy = StrategyNativeHLS
	s.snap.URL = s.snap.Channel.StreamURL
	s.snap.Proxied = false
	s.media.SetSource(s.snap.URL)
}

func (s *Session) startEngine(url string) {
	if !s.setState(StateEngineHLS) {
		return
	}
	s.snap.Strategy = StrategyEngineHLS
	s.snap.URL = url
	s.snap.Proxied = url != s.snap.Channel.StreamURL
	s.snap.Qualities = nil
	s.snap.Quality = "auto"
	s.snap.Playing = false

	gen := s.snap.Generation
	e := s.engines.New(func(ev EngineEvent) {
		s.box.put(msgEngine{gen: gen, ev: ev})
	})
	s.engine = e
	e.AttachMedia(s.media)
	e.LoadSource(url)
}

func (s *Session) startDirect() {
	if !s.setState(StateDirectFile) {
		return
	}
	s.snap.Strategy = StrategyDirectFile
	s.snap.URL = s.snap.Channel.StreamURL
	s.snap.Proxied = false
	s.snap.Qualities = nil
	s.snap.Quality = "auto"
	s.snap.Playing = false
	s.media.SetSource(s.snap.URL)
}

// restart tears the current attempt down and runs start in a fresh generation.
// restart replaces the current engine. Retry caps count per engine, so the
// counters start over; DirectRetried holds for the whole channel.
func (s *Session) restart(start func()) {
	s.teardown()
	s.snap.NetworkRetries = 0
	s.snap.MediaRecoveries = 0
	s.listen()
	start()
}

func (s *Session) fallbackDirect(reason string) {
	s.logger.Warn().Str("reason", reason).Str("url", s.snap.Channel.StreamURL).Msg("falling back to direct playback")
	s.restart(s.startDirect)
}

func (s *Session) onEngine(m msgEngine) {
	if s.stale(m.gen, string(m.ev.Kind)) || s.engine == nil {
		return
	}
	ev := m.ev
	switch ev.Kind {
	case EngineManifestParsed:
		s.snap.Qualities = append([]string{"auto"}, qualityLabels(ev.Levels)...)
		s.autoplay()
	case EngineLevelSwitched:
		s.logger.Debug().Int("level", ev.Level).Msg("level switched")
	case EngineError:
		if !ev.Fatal {
			s.logger.Debug().Str("type", string(ev.Type)).Str("details", ev.Details).Msg("non-fatal engine error")
			return
		}
		s.onFatal(ev)
	}
}

func (s *Session) onFatal(ev EngineEvent) {
	s.logger.Warn().Str("type", string(ev.Type)).Str("details", ev.Details).Bool("proxied", s.snap.Proxied).Msg("fatal engine error")
	switch ev.Type {
	case NetworkError:
		if s.snap.Proxied && ev.Details == DetailManifestLoadError && !s.snap.DirectRetried {
			s.snap.DirectRetried = true
			direct := s.snap.Channel.StreamURL
			s.restart(func() { s.startEngine(direct) })
			return
		}
		if s.opts.MaxNetworkRetries > 0 && s.snap.NetworkRetries >= s.opts.MaxNetworkRetries {
			s.fallbackDirect("network retries exhausted")
			return
		}
		s.snap.NetworkRetries++
		gen := s.snap.Generation
		if s.retryTimer != nil {
			s.retryTimer.Stop()
		}
		s.retryTimer = time.AfterFunc(s.opts.RetryBackoff, func() {
			s.box.put(msgRetry{gen: gen})
		})
	case MediaDecodeError:
		if s.opts.MaxMediaRecoveries > 0 && s.snap.MediaRecoveries >= s.opts.MaxMediaRecoveries {
			s.fallbackDirect("media recoveries exhausted")
			return
		}
		s.snap.MediaRecoveries++
		s.engine.RecoverMediaError()
	default:
		s.fallbackDirect(ev.Details)
	}
}

func (s *Session) onRetry(m msgRetry) {
	if s.stale(m.gen, "retry") {
		return
	}
	s.retryTimer = nil
	if s.engine != nil {
		s.engine.StartLoad()
	}
}

func (s *Session) onMedia(m msgMedia) {
	if s.stale(m.gen, string(m.ev.Kind)) {
		return
	}
	ev := m.ev
	switch ev.Kind {
	case MediaLoadedMetadata:
		if s.snap.Strategy == StrategyNativeHLS || s.snap.Strategy == StrategyDirectFile {
			s.autoplay()
		}
	case MediaPlaying:
		s.markPlaying()
		s.snap.Error = ""
	case MediaPause:
		s.snap.Playing = false
	case MediaWaiting:
		if s.snap.State == StatePlaying {
			s.setState(StateBuffering)
		}
	case MediaCanPlay:
		if s.snap.State == StateBuffering && s.snap.Playing {
			s.setState(StatePlaying)
		}
	case MediaTimeUpdate:
		s.snap.CurrentTime = ev.Time
	case MediaDurationChange:
		s.snap.Duration = ev.Duration
	case MediaVolumeChange:
		s.snap.Muted = ev.Muted
		s.snap.Volume = ev.Volume
	case MediaEnded:
		if s.setState(StateEnded) {
			s.snap.Playing = false
		}
	case MediaError:
		s.onMediaError(ev)
	}
}

func (s *Session) onMediaError(ev MediaEvent) {
	switch s.snap.Strategy {
	case StrategyEngineHLS:
		// The engine reports its own failures.
		s.logger.Debug().Int("code", ev.Code).Msg("media error under engine")
		return
	case StrategyNativeHLS:
		s.fail("Failed to load stream")
		s.snap.ShowPlayOverlay = true
	case StrategyDirectFile:
		s.fail(directErrorMessage(ev))
	}
}

func directErrorMessage(ev MediaEvent) string {
	switch ev.Code {
	case MediaErrSrcNotSupported:
		return "Stream format not supported. This stream may require a different player."
	case MediaErrNetwork:
		return "Network error. Please check your connection and try again."
	}
	if ev.Message != "" {
		return ev.Message
	}
	return "Unable to play stream"
}

func (s *Session) fail(msg string) {
	if s.setState(StateFailed) {
		s.snap.Error = msg
		s.snap.Playing = false
		s.logger.Warn().Str("error", msg).Str("strategy", string(s.snap.Strategy)).Msg("playback failed")
	}
}

// autoplay starts playback without a user gesture. Direct playback retries
// muted; a refusal shows the tap-to-play overlay except on mobile devices.
func (s *Session) autoplay() {
	err := s.media.Play()
	if err != nil && errors.Is(err, ErrAutoplayBlocked) && s.snap.Strategy == StrategyDirectFile && !s.snap.Muted {
		s.snap.Muted = true
		s.media.SetMuted(true)
		err = s.media.Play()
	}
	if err != nil {
		s.logger.Info().Err(err).Msg("autoplay prevented")
		s.snap.ShowPlayOverlay = !s.opts.Device.Mobile
		return
	}
	s.markPlaying()
}

func (s *Session) markPlaying() {
	switch s.snap.State {
	case StateNativeHLS, StateEngineHLS, StateDirectFile, StateBuffering, StateEnded, StatePlaying:
		s.setState(StatePlaying)
		s.snap.Playing = true
		s.snap.ShowPlayOverlay = false
	}
}

func (s *Session) requireLoaded() error {
	switch s.snap.State {
	case StateIdle, StateStopped:
		return ErrNoChannel
	case StateResolving, StateFailed:
		return ErrNotReady
	}
	return nil
}

func (s *Session) requireOnDemand() error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	if s.snap.Channel.Live() {
		return ErrNotSeekable
	}
	return nil
}

func (s *Session) seek(seconds float64) error {
	if err := s.requireOnDemand(); err != nil {
		return err
	}
	seconds = math.Max(0, seconds)
	if s.snap.Duration > 0 {
		seconds = math.Min(seconds, s.snap.Duration)
	}
	s.media.Seek(seconds)
	s.snap.CurrentTime = seconds
	return nil
}

// qualityLabels names levels by height, adding the bitrate where heights
// repeat or are unknown. Labels are unique so SetQuality can find the index.
func qualityLabels(levels []Level) []string {
	base := func(l Level) string {
		if l.Height > 0 {
			return fmt.Sprintf("%dp", l.Height)
		}
		return ""
	}
	heights := make(map[string]int, len(levels))
	for _, l := range levels {
		heights[base(l)]++
	}
	out := make([]string, len(levels))
	seen := make(map[string]bool, len(levels))
	for i, l := range levels {
		label := base(l)
		if label == "" || heights[label] > 1 {
			kbps := fmt.Sprintf("%dkbps", l.Bitrate/1000)
			if label == "" {
				label = kbps
			} else {
				label += " " + kbps
			}
			if l.Bitrate <= 0 {
				label = fmt.Sprintf("level %d", i+1)
			}
		}
		if seen[label] {
			label = fmt.Sprintf("%s #%d", label, i+1)
		}
		seen[label] = true
		out[i] = label
	}
	return out
}
