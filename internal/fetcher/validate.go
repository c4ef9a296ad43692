package fetcher

import (
	"net/url"
	"strings"

	"github.com/voyagen/iptvdeck/internal/apperr"
)

// playlistQueryKeys are query parameters IPTV panels use to select M3U output.
var playlistQueryKeys = []string{"type", "output", "format"}

// ValidatePlaylistURL checks that raw looks like an M3U source: http or
// https, and either a .m3u/.m3u8 path or an M3U-selecting query parameter.
func ValidatePlaylistURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return apperr.Validation("invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperr.Validation("URL must use HTTP or HTTPS protocol")
	}
	if strings.Contains(strings.ToLower(u.Path), ".m3u") {
		return nil
	}
	q := u.Query()
	for _, key := range playlistQueryKeys {
		if strings.Contains(strings.ToLower(q.Get(key)), "m3u") {
			return nil
		}
	}
	return apperr.Validation("URL should point to an M3U or M3U8 file, or include M3U-related parameters (type, output or format)")
}
