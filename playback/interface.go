package playback

import (
	"errors"
	"time"

	"github.com/marcus-crane/invitation/audio"
)

var (
	ErrClosed          = errors.New("playback session is closed")
	ErrInvalidInput    = errors.New("invalid input")
	ErrOutOfRange      = errors.New("scene index out of range")
	ErrSessionNotFound = errors.New("playback session not found")
	ErrBadToken        = errors.New("session token did not validate")
)

// SceneDescriptor identifies one step in the sequence. The sequence is fixed
// when a session starts.
type SceneDescriptor struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	AutoAdvance bool   `json:"auto_advance"`
}

// State is what a viewer sees at one instant. It is always a copy; the only
// writer is the controller's own loop.
type State struct {
	Index     int             `json:"index"`
	Scene     string          `json:"scene"`
	Length    int             `json:"length"`
	IsPlaying bool            `json:"is_playing"`
	IsMuted   bool            `json:"is_muted"`
	Progress  float64         `json:"progress"`
	HasOpened bool            `json:"has_opened"`
	Completed bool            `json:"completed"`
	Controls  bool            `json:"controls"`
	Audio     audio.LoadState `json:"audio"`
	Audible   bool            `json:"audible"`
	View      any             `json:"view"`
}

type InputKind string

const (
	InputTap       InputKind = "tap"
	InputSwipe     InputKind = "swipe"
	InputButton    InputKind = "button"
	InputJump      InputKind = "jump"
	InputMute      InputKind = "mute"
	InputPlayPause InputKind = "playpause"
	InputRestart   InputKind = "restart"
	InputWish      InputKind = "wish"
)

const (
	DirectionLeft  = "left"
	DirectionRight = "right"
	ButtonPrev     = "prev"
	ButtonNext     = "next"
)

// Input is a single viewer interaction. Only the fields relevant to Kind are
// read: X and Width for taps (the viewport width is supplied by the client),
// Direction for swipes, Button for buttons, Target for jumps and Name and
// Message for wishes.
type Input struct {
	Kind      InputKind `json:"kind"`
	X         float64   `json:"x,omitempty"`
	Width     float64   `json:"width,omitempty"`
	HeldMs    int64     `json:"held_ms,omitempty"`
	Direction string    `json:"direction,omitempty"`
	Button    string    `json:"button,omitempty"`
	Target    int       `json:"target,omitempty"`
	Name      string    `json:"name,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func (in Input) Held() time.Duration {
	return time.Duration(in.HeldMs) * time.Millisecond
}

// Timings are the fixed pacing constants of a controller.
type Timings struct {
	Dwell            time.Duration
	ProgressInterval time.Duration
	Debounce         time.Duration
	LongPress        time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		Dwell:            30 * time.Second,
		ProgressInterval: 50 * time.Millisecond,
		Debounce:         500 * time.Millisecond,
		LongPress:        300 * time.Millisecond,
	}
}
