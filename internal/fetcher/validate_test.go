package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voyagen/iptvdeck/internal/apperr"
)

func TestValidatePlaylistURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://host/list.m3u8", true},
		{"http://host/path/list.m3u", true},
		{"https://host/LIST.M3U", true},
		{"https://host/api?type=m3u_plus", true},
		{"https://host/get.php?username=u&password=p&output=M3U8", true},
		{"https://host/get?format=m3u", true},
		{"ftp://host/list.m3u8", false},
		{"https://host/video.mp4", false},
		{"https://host/api?type=json", false},
		{"not a url", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidatePlaylistURL(tt.url)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ve *apperr.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}
