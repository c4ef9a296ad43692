// Package hlsengine is a player.EngineFactory that loads HLS manifests over
// HTTP and decodes them with grafov/m3u8. It has no renderer: the selected
// rendition is handed to the attached media element as its source.
package hlsengine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grafov/m3u8"
	"github.com/rs/zerolog"

	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/player"
)

// Engine error details.
const (
	DetailManifestParsingError = "manifestParsingError"
	DetailLevelLoadError       = "levelLoadError"
)

// Factory builds manifest engines. The zero value uses http.DefaultClient.
type Factory struct {
	Client    *http.Client
	UserAgent string
	// Timeout bounds each manifest request. Zero means 10s.
	Timeout time.Duration
}

// Supported always reports true.
func (f *Factory) Supported() bool { return true }

// New returns an idle engine. Nothing is fetched until LoadSource.
func (f *Factory) New(emit func(player.EngineEvent)) player.Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		factory: f,
		emit:    emit,
		ctx:     ctx,
		cancel:  cancel,
		level:   player.AutoLevel,
		logger:  xlog.WithComponent("hlsengine"),
	}
}

// Engine fetches one manifest and exposes its variants as levels.
type Engine struct {
	factory *Factory
	emit    func(player.EngineEvent)
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  zerolog.Logger

	mu       sync.Mutex
	source   *url.URL
	media    player.MediaElement
	variants []*url.URL
	level    int
}

// LoadSource starts loading the manifest at raw.
func (e *Engine) LoadSource(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		e.report(player.EngineEvent{Kind: player.EngineError, Type: player.NetworkError, Details: player.DetailManifestLoadError, Fatal: true})
		return
	}
	e.mu.Lock()
	e.source = u
	e.mu.Unlock()
	e.StartLoad()
}

// AttachMedia binds the element that receives the selected rendition.
func (e *Engine) AttachMedia(m player.MediaElement) {
	e.mu.Lock()
	e.media = m
	e.mu.Unlock()
}

// StartLoad (re)fetches the manifest in the background.
func (e *Engine) StartLoad() {
	if e.ctx.Err() != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.load()
	}()
}

// RecoverMediaError re-attaches the current rendition to the media element.
func (e *Engine) RecoverMediaError() {
	e.mu.Lock()
	media, target := e.media, e.currentLocked()
	e.mu.Unlock()
	if media != nil && target != "" {
		media.SetSource(target)
	}
}

// SetLevel pins a variant, or restores adaptive selection for player.AutoLevel.
func (e *Engine) SetLevel(index int) {
	e.mu.Lock()
	if index != player.AutoLevel && (index < 0 || index >= len(e.variants)) {
		e.mu.Unlock()
		e.logger.Warn().Int("level", index).Msg("ignored unknown level")
		return
	}
	e.level = index
	media, target := e.media, e.currentLocked()
	e.mu.Unlock()

	if media != nil && target != "" {
		media.SetSource(target)
	}
	e.report(player.EngineEvent{Kind: player.EngineLevelSwitched, Level: index})
}

// Destroy stops any in-flight load. Events are not delivered afterwards.
func (e *Engine) Destroy() {
	e.cancel()
	e.wg.Wait()
}

// currentLocked returns the URL the media element should play.
func (e *Engine) currentLocked() string {
	if e.level >= 0 && e.level < len(e.variants) {
		return e.variants[e.level].String()
	}
	if e.source == nil {
		return ""
	}
	return e.source.String()
}

func (e *Engine) report(ev player.EngineEvent) {
	if e.ctx.Err() != nil {
		return
	}
	e.emit(ev)
}

func (e *Engine) load() {
	e.mu.Lock()
	source := e.source
	e.mu.Unlock()
	if source == nil {
		return
	}

	levels, variants, err := e.fetch(source)
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		ev := player.EngineEvent{Kind: player.EngineError, Type: player.NetworkError, Details: player.DetailManifestLoadError, Fatal: true}
		var perr *parseError
		if errors.As(err, &perr) {
			ev.Type, ev.Details = player.OtherError, DetailManifestParsingError
		}
		e.logger.Debug().Err(err).Str("url", source.String()).Str("details", ev.Details).Msg("manifest load failed")
		e.report(ev)
		return
	}

	e.mu.Lock()
	e.variants = variants
	if e.level >= len(variants) {
		e.level = player.AutoLevel
	}
	media, target := e.media, e.currentLocked()
	e.mu.Unlock()

	if e.ctx.Err() != nil {
		return
	}
	if media != nil {
		media.SetSource(target)
	}
	e.report(player.EngineEvent{Kind: player.EngineManifestParsed, Levels: levels})
}

type parseError struct{ err error }

func (p *parseError) Error() string { return "parse manifest: " + p.err.Error() }
func (p *parseError) Unwrap() error { return p.err }

func (e *Engine) fetch(source *url.URL) ([]player.Level, []*url.URL, error) {
	timeout := e.factory.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(e.ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if e.factory.UserAgent != "" {
		req.Header.Set("User-Agent", e.factory.UserAgent)
	}
	client := e.factory.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("manifest %s: status %d", source, resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), true)
	if err != nil {
		return nil, nil, &parseError{err: err}
	}
	if listType != m3u8.MASTER {
		return nil, nil, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	base := resp.Request.URL
	var (
		levels   []player.Level
		variants []*url.URL
	)
	for _, v := range master.Variants {
		if v == nil || v.Iframe {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(v.URI))
		if err != nil {
			continue
		}
		levels = append(levels, player.Level{Height: resolutionHeight(v.Resolution), Bitrate: int(v.Bandwidth)})
		variants = append(variants, base.ResolveReference(ref))
	}
	return levels, variants, nil
}

// resolutionHeight returns the height of a "WIDTHxHEIGHT" attribute, or 0.
func resolutionHeight(res string) int {
	_, h, ok := strings.Cut(strings.ToLower(res), "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return n
}
