package player

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/voyagen/iptvdeck/internal/models"
)

// Channel is what a session needs to know about the stream it plays.
type Channel struct {
	ID        int64              `json:"id"`
	Name      string             `json:"name"`
	StreamURL string             `json:"streamUrl"`
	Logo      *string            `json:"logo,omitempty"`
	Group     *string            `json:"group,omitempty"`
	Type      models.ContentType `json:"type"`
}

// Validate rejects records that are missing what playback depends on.
func (c Channel) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("channel %d: name is empty", c.ID)
	}
	u, err := url.Parse(c.StreamURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("channel %d: stream URL %q is not an absolute http(s) URL", c.ID, c.StreamURL)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("channel %d: unknown type %q", c.ID, c.Type)
	}
	return nil
}

// Live reports whether the channel is a live stream.
func (c Channel) Live() bool { return c.Type == models.ContentLive }

// FetchChannel loads channel id from the API at baseURL and validates it.
func FetchChannel(ctx context.Context, client *http.Client, baseURL string, id int64) (*Channel, error) {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := fmt.Sprintf("%s/api/channels/%d", strings.TrimRight(baseURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("fetch channel %d: %d %s", id, resp.StatusCode, apiErr.Detail)
	}

	var body struct {
		Channel *Channel `json:"channel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode channel %d: %w", id, err)
	}
	if body.Channel == nil {
		return nil, fmt.Errorf("decode channel %d: missing channel object", id)
	}
	if err := body.Channel.Validate(); err != nil {
		return nil, err
	}
	return body.Channel, nil
}
