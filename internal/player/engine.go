package player

// ErrorType classifies a fatal engine error.
type ErrorType string

// Engine error classes.
const (
	NetworkError     ErrorType = "networkError"
	MediaDecodeError ErrorType = "mediaError"
	OtherError       ErrorType = "otherError"
)

// DetailManifestLoadError marks a network error raised while loading the manifest.
const DetailManifestLoadError = "manifestLoadError"

// Level is one adaptive bitrate rendition advertised by a manifest.
type Level struct {
	Height  int
	Bitrate int
}

// EngineEventKind names an event raised by an Engine.
type EngineEventKind string

// Engine events.
const (
	EngineManifestParsed EngineEventKind = "manifestParsed"
	EngineLevelSwitched  EngineEventKind = "levelSwitched"
	EngineError          EngineEventKind = "error"
)

// EngineEvent is one event from an Engine.
type EngineEvent struct {
	Kind    EngineEventKind
	Levels  []Level // EngineManifestParsed
	Level   int     // EngineLevelSwitched
	Type    ErrorType
	Details string
	Fatal   bool
}

// Engine is an HLS playback engine bound to one media element.
type Engine interface {
	LoadSource(url string)
	AttachMedia(media MediaElement)
	// StartLoad resumes loading after a network error.
	StartLoad()
	// RecoverMediaError re-attaches media without refetching the manifest.
	RecoverMediaError()
	// SetLevel pins a level index; AutoLevel hands selection back to the engine.
	SetLevel(index int)
	// Destroy releases every resource. No events may be delivered afterwards
	// that the session would act on.
	Destroy()
}

// AutoLevel lets the engine pick levels adaptively.
const AutoLevel = -1

// EngineFactory builds engines. emit is called for every engine event and
// may be called from any goroutine.
type EngineFactory interface {
	Supported() bool
	New(emit func(EngineEvent)) Engine
}
