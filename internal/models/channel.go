package models

// Metadata is optional enrichment for a channel. The base parser never fills it.
type Metadata struct {
	Duration    *int     `json:"duration,omitempty"`
	Rating      *string  `json:"rating,omitempty"`
	Description *string  `json:"description,omitempty"`
	Year        *int     `json:"year,omitempty"`
	Genre       []string `json:"genre,omitempty"`
}

// ParsedChannel is a single entry produced by the M3U parser.
type ParsedChannel struct {
	Name       string      `json:"name"`
	TvgID      *string     `json:"tvgId,omitempty"`
	TvgLogo    *string     `json:"tvgLogo,omitempty"`
	GroupTitle *string     `json:"groupTitle,omitempty"`
	StreamURL  string      `json:"streamUrl"`
	Type       ContentType `json:"type"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
}

// Channel is a persisted ParsedChannel owned by a playlist.
type Channel struct {
	ID         int64       `json:"id"`
	PlaylistID int64       `json:"playlistId"`
	Name       string      `json:"name"`
	TvgID      *string     `json:"tvgId,omitempty"`
	Logo       *string     `json:"logo,omitempty"`
	Group      *string     `json:"group,omitempty"`
	StreamURL  string      `json:"streamUrl"`
	Type       ContentType `json:"type"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
}

// ChannelFromParsed copies a parsed entry into a Channel for playlistID.
func ChannelFromParsed(playlistID int64, p ParsedChannel) Channel {
	return Channel{
		PlaylistID: playlistID,
		Name:       p.Name,
		TvgID:      p.TvgID,
		Logo:       p.TvgLogo,
		Group:      p.GroupTitle,
		StreamURL:  p.StreamURL,
		Type:       p.Type,
		Metadata:   p.Metadata,
	}
}
