package playback

import (
	"fmt"
	"time"
)

type move int

const (
	moveNone move = iota
	moveNext
	movePrev
	moveActivate
)

// arbiter turns raw gestures into at most one navigation step. A single
// physical swipe usually arrives as a swipe and a synthetic click, so any
// navigational input landing inside the refractory window of the last
// accepted one is dropped without a trace.
type arbiter struct {
	window    time.Duration
	longPress time.Duration
	last      time.Time
	accepted  bool
}

func (a *arbiter) accept(now time.Time) bool {
	if a.accepted && now.Sub(a.last) < a.window {
		return false
	}
	a.last = now
	a.accepted = true
	return true
}

func (a *arbiter) reset() {
	a.accepted = false
	a.last = time.Time{}
}

// resolve works out what a navigational input means. gate is true when the
// current scene intercepts taps itself. An error is only returned for
// malformed input; gestures that are simply not allowed yield moveNone.
func (a *arbiter) resolve(in Input, opened, gate bool, now time.Time) (move, error) {
	var m move
	switch in.Kind {
	case InputTap:
		if in.Held() > a.longPress {
			return moveNone, nil
		}
		if gate {
			m = moveActivate
			break
		}
		if in.Width <= 0 {
			return moveNone, fmt.Errorf("%w: tap needs a viewport width", ErrInvalidInput)
		}
		if in.X < in.Width/2 {
			m = movePrev
		} else {
			m = moveNext
		}
	case InputSwipe:
		switch in.Direction {
		case DirectionLeft:
			m = moveNext
		case DirectionRight:
			m = movePrev
		default:
			return moveNone, fmt.Errorf("%w: swipe direction %q", ErrInvalidInput, in.Direction)
		}
		if !opened {
			return moveNone, nil
		}
	case InputButton:
		switch in.Button {
		case ButtonNext:
			m = moveNext
		case ButtonPrev:
			m = movePrev
		default:
			return moveNone, fmt.Errorf("%w: button %q", ErrInvalidInput, in.Button)
		}
		// prev/next are not even shown before the envelope is opened
		if !opened {
			return moveNone, nil
		}
	default:
		return moveNone, fmt.Errorf("%w: %q is not navigational", ErrInvalidInput, in.Kind)
	}

	if !a.accept(now) {
		return moveNone, nil
	}
	return m, nil
}
