package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voyagen/iptvdeck/internal/apperr"
)

// maxPlaylistBytes caps how much of a remote playlist is read.
const maxPlaylistBytes = 64 << 20

// Resolver turns a playlist URL or pasted text into M3U text.
type Resolver struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewResolver creates a Resolver. client may be nil.
func NewResolver(client *http.Client, userAgent string, timeout time.Duration) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{client: client, userAgent: userAgent, timeout: timeout}
}

// Resolve returns the M3U text for a source. Pasted content wins over url and
// is returned unchanged; otherwise url is validated and fetched.
func (r *Resolver) Resolve(ctx context.Context, url, content string) (string, error) {
	if content != "" {
		return content, nil
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", apperr.Validation("URL or content is required")
	}
	if err := ValidatePlaylistURL(url); err != nil {
		return "", err
	}
	return r.Fetch(ctx, url)
}

// Fetch GETs url and returns the body. Non-2xx responses and transport
// failures become apperr.FetchError; deadlines become apperr.TimeoutError.
func (r *Resolver) Fetch(ctx context.Context, url string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperr.Validation("invalid URL: %v", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", apperr.FromTransport(url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &apperr.FetchError{URL: url, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return "", apperr.FromTransport(url, fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}
