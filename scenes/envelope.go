package scenes

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/shared"
)

// Envelope is the gating scene. A tap starts the open animation and the
// sequence moves on once it has played out; repeated taps while it runs are
// ignored.
type Envelope struct {
	clock  clockwork.Clock
	delay  time.Duration
	couple config.Couple
	auto   bool

	m          sync.Mutex
	nav        Navigator
	processing bool
	opened     bool
	timer      clockwork.Timer
}

type EnvelopeView struct {
	Couple     config.Couple `json:"couple"`
	Processing bool          `json:"processing"`
	Opened     bool          `json:"opened"`
}

func NewEnvelope(clock clockwork.Clock, delay time.Duration, couple config.Couple, auto bool) *Envelope {
	return &Envelope{clock: clock, delay: delay, couple: couple, auto: auto}
}

func (e *Envelope) Name() string      { return shared.SCENE_ENVELOPE }
func (e *Envelope) AutoAdvance() bool { return e.auto }

func (e *Envelope) Mount(nav Navigator) {
	e.m.Lock()
	defer e.m.Unlock()
	e.nav = nav
	e.processing = false
	e.opened = false
}

func (e *Envelope) Unmount() {
	e.m.Lock()
	defer e.m.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.nav = nil
	e.processing = false
}

func (e *Envelope) Activate() {
	e.m.Lock()
	if e.nav == nil || e.processing {
		e.m.Unlock()
		return
	}
	e.processing = true
	nav := e.nav
	e.timer = e.clock.AfterFunc(e.delay, func() {
		e.m.Lock()
		if e.nav != nav {
			// unmounted while the animation was running
			e.m.Unlock()
			return
		}
		e.processing = false
		e.opened = true
		e.timer = nil
		e.m.Unlock()
		nav.Next()
	})
	e.m.Unlock()
	nav.Changed()
}

func (e *Envelope) View() any {
	e.m.Lock()
	defer e.m.Unlock()
	return EnvelopeView{Couple: e.couple, Processing: e.processing, Opened: e.opened}
}
