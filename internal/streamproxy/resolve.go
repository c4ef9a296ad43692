package streamproxy

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/voyagen/iptvdeck/internal/apperr"
)

// Resolution is the outcome of following a stream URL's redirects.
type Resolution struct {
	OriginalURL string `json:"originalUrl"`
	ResolvedURL string `json:"resolvedUrl"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
}

// Resolve issues a HEAD request for raw, following redirects, and reports
// where it ended up. Upstream error statuses are reported, not returned as errors.
func (h *Handler) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Validation("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("URL must be an absolute http or https URL")
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return nil, apperr.Validation("invalid URL: %v", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, apperr.FromTransport(raw, err)
	}
	resp.Body.Close()

	return &Resolution{
		OriginalURL: raw,
		ResolvedURL: resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
