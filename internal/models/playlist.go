package models

import "time"

// Playlist is a parsed and persisted M3U source owned by a device key.
type Playlist struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	URL          *string    `json:"url,omitempty"`
	Content      *string    `json:"-"`
	DeviceKey    string     `json:"deviceKey"`
	IsActive     bool       `json:"isActive"`
	ChannelCount int        `json:"channelCount"`
	LastParsed   *time.Time `json:"lastParsed,omitempty"`
	ParseErrors  []string   `json:"parseErrors"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
}

// ParseResult is the outcome of parsing one M3U document.
// TotalChannels always equals len(Channels).
type ParseResult struct {
	Success       bool            `json:"success"`
	Channels      []ParsedChannel `json:"channels"`
	Errors        []string        `json:"errors"`
	TotalChannels int             `json:"totalChannels"`
}
