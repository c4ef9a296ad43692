package player

import (
	"errors"
	"slices"
)

// State is a playback session state.
type State string

// Session states.
const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateNativeHLS  State = "nativeHLS"
	StateEngineHLS  State = "engineHLS"
	StateDirectFile State = "directFile"
	StatePlaying    State = "playing"
	StateBuffering  State = "buffering"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// Strategy is how the active stream is being played.
type Strategy string

// Playback strategies.
const (
	StrategyNone       Strategy = ""
	StrategyNativeHLS  Strategy = "nativeHLS"
	StrategyEngineHLS  Strategy = "engineHLS"
	StrategyDirectFile Strategy = "directFile"
)

// Every state may also move to Resolving (new channel) and Stopped (close).
var transitions = map[State][]State{
	StateIdle:       {},
	StateResolving:  {StateNativeHLS, StateEngineHLS, StateDirectFile, StateFailed},
	StateNativeHLS:  {StatePlaying, StateBuffering, StateEnded, StateFailed},
	StateEngineHLS:  {StateEngineHLS, StateDirectFile, StatePlaying, StateBuffering, StateEnded, StateFailed},
	StateDirectFile: {StatePlaying, StateBuffering, StateEnded, StateFailed},
	StatePlaying:    {StateBuffering, StateEnded, StateFailed, StateEngineHLS, StateDirectFile},
	StateBuffering:  {StatePlaying, StateEnded, StateFailed, StateEngineHLS, StateDirectFile},
	StateEnded:      {StatePlaying, StateEngineHLS, StateDirectFile},
	StateFailed:     {},
	StateStopped:    {},
}

func canTransition(from, to State) bool {
	if to == StateResolving || to == StateStopped {
		return from != StateStopped
	}
	return slices.Contains(transitions[from], to)
}

// Command errors.
var (
	ErrClosed       = errors.New("player: session closed")
	ErrNoChannel    = errors.New("player: no channel selected")
	ErrNotSeekable  = errors.New("player: live streams cannot seek or change speed")
	ErrUnknownLevel = errors.New("player: unknown quality")
	ErrNoEngine     = errors.New("player: quality selection needs the HLS engine")
	ErrBadSpeed     = errors.New("player: unsupported playback speed")
)

// Speeds lists the playback rates offered for on-demand content.
var Speeds = []float64{0.5, 0.75, 1, 1.25, 1.5, 2}

// SkipInterval is the step used by Skip forward and back controls.
const SkipInterval = 10.0

// Snapshot is a copy of the session's observable state.
type Snapshot struct {
	Generation      uint64
	Channel         *Channel
	State           State
	Strategy        Strategy
	URL             string
	Proxied         bool
	UseProxy        bool
	Qualities       []string
	Quality         string
	Playing         bool
	Muted           bool
	Volume          float64
	Speed           float64
	CurrentTime     float64
	Duration        float64
	ShowPlayOverlay bool
	Error           string
	NetworkRetries  int
	MediaRecoveries int
	DirectRetried   bool
}

func (s Snapshot) clone() Snapshot {
	s.Qualities = slices.Clone(s.Qualities)
	if s.Channel != nil {
		ch := *s.Channel
		s.Channel = &ch
	}
	return s
}
