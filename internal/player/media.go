package player

import "errors"

// ErrAutoplayBlocked is returned by MediaElement.Play when the platform
// refuses to start playback without a user gesture.
var ErrAutoplayBlocked = errors.New("autoplay blocked by platform policy")

// HLSMimeType is the type queried to detect native HLS support.
const HLSMimeType = "application/vnd.apple.mpegurl"

// MediaElement is the platform playback surface a session drives.
type MediaElement interface {
	// CanPlayType reports whether the element can play mime natively.
	CanPlayType(mime string) bool
	// Listen replaces the event listener. nil removes it.
	Listen(fn func(MediaEvent))
	// SetSource assigns url directly to the element and starts loading it.
	SetSource(url string)
	Play() error
	Pause()
	Seek(seconds float64)
	SetPlaybackRate(rate float64)
	SetMuted(muted bool)
	SetVolume(volume float64)
	// Reset detaches any source and stops loading.
	Reset()
}

// MediaEventKind names an event raised by a MediaElement.
type MediaEventKind string

// Media element events.
const (
	MediaLoadedMetadata MediaEventKind = "loadedmetadata"
	MediaCanPlay        MediaEventKind = "canplay"
	MediaPlaying        MediaEventKind = "playing"
	MediaPause          MediaEventKind = "pause"
	MediaWaiting        MediaEventKind = "waiting"
	MediaEnded          MediaEventKind = "ended"
	MediaTimeUpdate     MediaEventKind = "timeupdate"
	MediaDurationChange MediaEventKind = "durationchange"
	MediaVolumeChange   MediaEventKind = "volumechange"
	MediaError          MediaEventKind = "error"
)

// Media error codes, as reported by HTML media elements.
const (
	MediaErrAborted         = 1
	MediaErrNetwork         = 2
	MediaErrDecode          = 3
	MediaErrSrcNotSupported = 4
)

// MediaEvent is one event from a MediaElement. Only the fields relevant to
// Kind are set.
type MediaEvent struct {
	Kind     MediaEventKind
	Time     float64
	Duration float64
	Muted    bool
	Volume   float64
	Code     int
	Message  string
}
