package streamproxy

import (
	"net/url"
	"strings"
)

var manifestContentTypes = []string{
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
}

// IsManifest reports whether a response is an HLS manifest, judged by its
// content type or, failing that, a .m3u8 suffix on the target path.
func IsManifest(contentType string, target *url.URL) bool {
	ct := strings.ToLower(contentType)
	for _, m := range manifestContentTypes {
		if strings.Contains(ct, m) {
			return true
		}
	}
	return target != nil && strings.HasSuffix(strings.ToLower(target.Path), ".m3u8")
}

// ProxyURL wraps target so that fetching the result goes through endpoint.
func ProxyURL(endpoint, target string) string {
	return endpoint + "?url=" + url.QueryEscape(target)
}

// RewriteManifest rewrites every URI line of an HLS manifest into a proxy URL
// for endpoint. Relative URIs are resolved against base, the URL the manifest
// was actually served from. Blank lines and tag or comment lines are returned
// byte for byte, as are lines that do not parse as a URI reference.
func RewriteManifest(body string, base *url.URL, endpoint string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		ref, err := url.Parse(trimmed)
		if err != nil {
			continue
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		eol := ""
		if strings.HasSuffix(line, "\r") {
			eol = "\r"
		}
		lines[i] = ProxyURL(endpoint, abs.String()) + eol
	}
	return strings.Join(lines, "\n")
}
