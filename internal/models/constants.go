package models

// ContentType classifies a channel entry.
type ContentType string

// Content types derived from an entry's group title.
const (
	ContentLive   ContentType = "live"
	ContentMovie  ContentType = "movie"
	ContentSeries ContentType = "series"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentLive, ContentMovie, ContentSeries:
		return true
	}
	return false
}
