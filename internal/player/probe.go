package player

import (
	"context"
	"fmt"
	"net/http"
)

// Prober checks that a URL answers before the session commits to it.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber probes with a HEAD request.
type HTTPProber struct {
	Client *http.Client
}

// Probe returns an error when the request fails or answers non-2xx.
func (p HTTPProber) Probe(ctx context.Context, url string) error {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
	}
	return nil
}
