// Package streamproxy relays remote HLS manifests and media segments so a
// browser can play them same-origin. Manifests are rewritten so that every
// nested reference routes back through the proxy.
package streamproxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/voyagen/iptvdeck/internal/apperr"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/metrics"
)

const (
	manifestCacheControl = "no-cache, no-store, must-revalidate"
	segmentCacheControl  = "public, max-age=3600"
	maxManifestBytes     = 8 << 20
)

// Config configures a Handler.
type Config struct {
	// Endpoint is the path clients use to reach the proxy, e.g. "/api/stream/proxy".
	Endpoint string
	// Timeout bounds the wait for upstream response headers.
	Timeout time.Duration
	// UserAgent is sent upstream.
	UserAgent string
	// Client overrides the upstream HTTP client.
	Client *http.Client
}

// Handler is the stream proxy endpoint.
type Handler struct {
	endpoint  string
	timeout   time.Duration
	userAgent string
	client    *http.Client
	logger    zerolog.Logger
}

// New creates a Handler.
func New(cfg Config) *Handler {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Handler{
		endpoint:  cfg.Endpoint,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		client:    client,
		logger:    xlog.WithComponent("proxy"),
	}
}

// Endpoint returns the path rewritten manifests point back to.
func (h *Handler) Endpoint() string { return h.endpoint }

// SetCORS writes the permissive CORS headers used on every proxy response.
func SetCORS(hdr http.Header) {
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "*")
	hdr.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Content-Type")
}

type errorBody struct {
	Error   string `json:"error"`
	Status  int    `json:"status,omitempty"`
	URL     string `json:"url,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	SetCORS(w.Header())
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger := xlog.FromContext(r.Context(), h.logger)

	raw := r.URL.Query().Get("url")
	if raw == "" {
		h.fail(w, http.StatusBadRequest, errorBody{Error: "URL parameter is required"})
		return
	}
	target, err := url.Parse(raw)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		h.fail(w, http.StatusBadRequest, errorBody{Error: "URL must be an absolute http or https URL", URL: raw})
		return
	}

	resp, err := h.fetch(r, target)
	if err != nil {
		var te *apperr.TimeoutError
		switch {
		case errors.As(err, &te):
			metrics.ProxyUpstreamFailures.WithLabelValues("timeout").Inc()
			logger.Warn().Str("url", raw).Dur("timeout", h.timeout).Msg("upstream timed out")
			h.fail(w, http.StatusGatewayTimeout, errorBody{Error: "Request timeout - stream took too long to respond", URL: raw})
		case r.Context().Err() != nil:
			logger.Debug().Str("url", raw).Msg("client went away")
		default:
			metrics.ProxyUpstreamFailures.WithLabelValues("transport").Inc()
			logger.Error().Err(err).Str("url", raw).Msg("upstream fetch failed")
			h.fail(w, http.StatusInternalServerError, errorBody{
				Error:   err.Error(),
				Details: "The server could not fetch the stream. The provider may be blocking server requests.",
			})
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ProxyUpstreamFailures.WithLabelValues("status").Inc()
		logger.Warn().Int("status", resp.StatusCode).Str("url", raw).Msg("upstream returned error status")
		h.fail(w, resp.StatusCode, errorBody{
			Error:  "Failed to fetch stream: " + http.StatusText(resp.StatusCode),
			Status: resp.StatusCode,
			URL:    raw,
		})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// resp.Request carries the final URL after redirects.
	final := resp.Request.URL
	if IsManifest(contentType, final) || IsManifest("", target) {
		h.serveManifest(w, r, resp, contentType, final, logger)
		return
	}
	h.serveSegment(w, r, resp, contentType)
}

// fetch issues the upstream request. Only the wait for response headers is
// bounded by the timeout; the timer is stopped as soon as fetch returns.
func (h *Handler) fetch(r *http.Request, target *url.URL) (*http.Response, error) {
	ctx, cancel := context.WithCancel(r.Context())
	var timedOut atomic.Bool
	timer := time.AfterFunc(h.timeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer timer.Stop()

	// HEAD is answered from an upstream GET; many panels reject HEAD.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		cancel()
		return nil, apperr.Validation("invalid upstream request: %v", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	metrics.ProxyUpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		if timedOut.Load() {
			return nil, &apperr.TimeoutError{URL: target.String(), Err: err}
		}
		return nil, apperr.FromTransport(target.String(), err)
	}
	if timedOut.Load() {
		resp.Body.Close()
		cancel()
		return nil, &apperr.TimeoutError{URL: target.String(), Err: context.DeadlineExceeded}
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (h *Handler) serveManifest(w http.ResponseWriter, r *http.Request, resp *http.Response, contentType string, base *url.URL, logger zerolog.Logger) {
	hdr := w.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Cache-Control", manifestCacheControl)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		metrics.ProxyRequests.WithLabelValues("manifest", "200").Inc()
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		logger.Error().Err(err).Str("url", base.String()).Msg("read manifest")
		h.fail(w, http.StatusBadGateway, errorBody{Error: "Failed to read manifest", URL: base.String()})
		return
	}
	out := RewriteManifest(string(body), base, h.endpoint)
	hdr.Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	n, _ := io.WriteString(w, out)
	metrics.ProxyRequests.WithLabelValues("manifest", "200").Inc()
	metrics.ProxyBytes.WithLabelValues("manifest").Add(float64(n))
	logger.Debug().Str("url", base.String()).Int("bytes", n).Msg("manifest rewritten")
}

func (h *Handler) serveSegment(w http.ResponseWriter, r *http.Request, resp *http.Response, contentType string) {
	hdr := w.Header()
	hdr.Set("Content-Type", contentType)
	hdr.Set("Cache-Control", segmentCacheControl)
	for _, k := range []string{"Content-Length", "Content-Range", "Accept-Ranges", "Last-Modified", "ETag"} {
		if v := resp.Header.Get(k); v != "" {
			hdr.Set(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	metrics.ProxyRequests.WithLabelValues("segment", strconv.Itoa(resp.StatusCode)).Inc()
	if r.Method == http.MethodHead {
		return
	}
	n, err := io.Copy(w, resp.Body)
	metrics.ProxyBytes.WithLabelValues("segment").Add(float64(n))
	if err != nil && r.Context().Err() == nil {
		h.logger.Warn().Err(err).Int64("bytes", n).Msg("segment copy interrupted")
	}
}

func (h *Handler) fail(w http.ResponseWriter, status int, body errorBody) {
	metrics.ProxyRequests.WithLabelValues("error", strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", manifestCacheControl)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug().Err(err).Msg("write error body")
	}
}

// cancelOnClose releases the request context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
