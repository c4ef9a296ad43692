package player

import "github.com/grafana/regexp"

var (
	reIOS    = regexp.MustCompile(`iPad|iPhone|iPod`)
	reMobile = regexp.MustCompile(`(?i)iPhone|iPad|iPod|Android`)
)

// Device describes the runtime a session plays on.
type Device struct {
	IOS    bool
	Mobile bool
}

// DetectDevice derives device traits from a user agent string.
func DetectDevice(userAgent string) Device {
	return Device{
		IOS:    reIOS.MatchString(userAgent),
		Mobile: reMobile.MatchString(userAgent),
	}
}
