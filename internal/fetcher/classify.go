package fetcher

import (
	"strings"

	"github.com/voyagen/iptvdeck/internal/models"
)

// Entry is what a Classifier sees of a playlist entry.
type Entry struct {
	Duration   int
	GroupTitle string
	StreamURL  string
}

// Classifier assigns a content type to a playlist entry.
type Classifier func(Entry) models.ContentType

// ClassifyGroupTitle is the default heuristic: a group title containing
// "movie" is a movie, "series" or "tv show" a series, anything else live.
func ClassifyGroupTitle(e Entry) models.ContentType {
	g := strings.ToLower(e.GroupTitle)
	switch {
	case strings.Contains(g, "movie"):
		return models.ContentMovie
	case strings.Contains(g, "series"), strings.Contains(g, "tv show"):
		return models.ContentSeries
	}
	return models.ContentLive
}

// ClassifyGroupAndURL applies ClassifyGroupTitle and, for entries it calls
// live, falls back to the shape of the stream URL. Xtream-style VOD paths and
// file extensions are recognised.
func ClassifyGroupAndURL(e Entry) models.ContentType {
	if t := ClassifyGroupTitle(e); t != models.ContentLive {
		return t
	}
	return contentTypeFromURL(e.StreamURL)
}

func contentTypeFromURL(url string) models.ContentType {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.Contains(lower, "/series/"):
		return models.ContentSeries
	case strings.Contains(lower, "/movie/"),
		strings.HasSuffix(lower, ".mp4"),
		strings.HasSuffix(lower, ".mkv"),
		strings.HasSuffix(lower, ".avi"):
		return models.ContentMovie
	}
	return models.ContentLive
}

// ClassifierByName resolves a classifier strategy name used in config and
// on the command line. Unknown names return nil, false.
func ClassifierByName(name string) (Classifier, bool) {
	switch name {
	case "", "group":
		return ClassifyGroupTitle, true
	case "group+url":
		return ClassifyGroupAndURL, true
	}
	return nil, false
}
