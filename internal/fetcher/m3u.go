package fetcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
	"github.com/voyagen/iptvdeck/internal/models"
)

// Diagnostics emitted by the parser.
const (
	ErrMissingHeader = "Invalid M3U format: Missing #EXTM3U header"
	ErrNoChannels    = "No valid channels found in playlist"
)

var (
	reExtinf  = regexp.MustCompile(`^#EXTINF:\s*(-?\d+)(.*)$`)
	reTvgID   = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgLogo = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup   = regexp.MustCompile(`group-title="([^"]*)"`)
)

const byteOrderMark = "\uFEFF"

// Options tune the parser. The zero value matches Parse.
type Options struct {
	// ReportOrphanURLs adds a diagnostic for every stream URL line that has
	// no pending #EXTINF entry. By default such lines are dropped silently.
	ReportOrphanURLs bool
	// Classifier picks the content type of each entry. Nil means ClassifyGroupTitle.
	Classifier Classifier
}

// Parse parses M3U text into channels plus diagnostics. It never panics.
func Parse(content string) models.ParseResult {
	return ParseWithOptions(content, Options{})
}

// pending is the entry under construction between an #EXTINF line and its URL.
type pending struct {
	duration int
	name     string
	tvgID    *string
	tvgLogo  *string
	group    *string
}

// ParseWithOptions is Parse with explicit options.
func ParseWithOptions(content string, opts Options) (res models.ParseResult) {
	classify := opts.Classifier
	if classify == nil {
		classify = ClassifyGroupTitle
	}
	res = models.ParseResult{Channels: []models.ParsedChannel{}, Errors: []string{}}

	defer func() {
		if r := recover(); r != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Parse error: %v", r))
		}
		res.TotalChannels = len(res.Channels)
		res.Success = res.TotalChannels > 0
	}()

	content = strings.TrimPrefix(content, byteOrderMark)
	if !strings.HasPrefix(strings.TrimSpace(content), "#EXTM3U") {
		res.Errors = append(res.Errors, ErrMissingHeader)
		return res
	}

	var cur *pending
	for i, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXTINF:"):
			cur = parseExtinf(line)
			if cur == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: malformed #EXTINF directive", i+1))
			}
		case strings.HasPrefix(line, "#"):
			// #EXTM3U, #EXTGRP, #EXTVLCOPT and unknown directives.
		case cur != nil && cur.name != "":
			group := ""
			if cur.group != nil {
				group = *cur.group
			}
			res.Channels = append(res.Channels, models.ParsedChannel{
				Name:       cur.name,
				TvgID:      cur.tvgID,
				TvgLogo:    cur.tvgLogo,
				GroupTitle: cur.group,
				StreamURL:  line,
				Type:       classify(Entry{Duration: cur.duration, GroupTitle: group, StreamURL: line}),
			})
			cur = nil
		default:
			if opts.ReportOrphanURLs {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: stream URL without named #EXTINF entry dropped", i+1))
			}
			cur = nil
		}
	}

	if len(res.Channels) == 0 {
		res.Errors = append(res.Errors, ErrNoChannels)
	}
	return res
}

// parseExtinf returns nil when the directive has no integer duration.
func parseExtinf(line string) *pending {
	m := reExtinf.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	d, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	attrs := m[2]
	return &pending{
		duration: d,
		name:     displayName(attrs),
		tvgID:    matchFirstPtr(reTvgID, attrs),
		tvgLogo:  matchFirstPtr(reTvgLogo, attrs),
		group:    matchFirstPtr(reGroup, attrs),
	}
}

// displayName returns the trimmed text after the first comma that is not
// inside a double-quoted attribute value. Commas in the name are kept.
// Unbalanced quotes leave no such comma; the last comma separates then.
func displayName(attrs string) string {
	inQuote := false
	for i := 0; i < len(attrs); i++ {
		switch attrs[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return strings.TrimSpace(attrs[i+1:])
			}
		}
	}
	if i := strings.LastIndexByte(attrs, ','); i >= 0 {
		return strings.TrimSpace(attrs[i+1:])
	}
	return ""
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func matchFirstPtr(re *regexp.Regexp, s string) *string {
	v := matchFirst(re, s)
	if v == "" {
		return nil
	}
	return &v
}
