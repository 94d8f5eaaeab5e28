package scenes

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/shared"
)

// Countdown shows the time left until the ceremony and refreshes itself
// once a second while mounted.
type Countdown struct {
	clock clockwork.Clock
	event config.Event
	auto  bool

	m      sync.Mutex
	left   Remaining
	ticker clockwork.Ticker
	stop   chan struct{}
	done   chan struct{}
}

type Remaining struct {
	Days    int  `json:"days"`
	Hours   int  `json:"hours"`
	Minutes int  `json:"minutes"`
	Seconds int  `json:"seconds"`
	Passed  bool `json:"passed"`
}

type CountdownView struct {
	Date      time.Time `json:"date"`
	Venue     string    `json:"venue"`
	Remaining Remaining `json:"remaining"`
}

func NewCountdown(clock clockwork.Clock, event config.Event, auto bool) *Countdown {
	return &Countdown{clock: clock, event: event, auto: auto}
}

func (c *Countdown) Name() string      { return shared.SCENE_COUNTDOWN }
func (c *Countdown) AutoAdvance() bool { return c.auto }

// RemainingUntil splits the gap between now and target into whole units.
func RemainingUntil(now, target time.Time) Remaining {
	d := target.Sub(now)
	if d <= 0 {
		return Remaining{Passed: true}
	}
	secs := int(d / time.Second)
	return Remaining{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (c *Countdown) Mount(nav Navigator) {
	c.m.Lock()
	defer c.m.Unlock()
	if c.ticker != nil {
		return
	}
	c.left = RemainingUntil(c.clock.Now(), c.event.Date)
	c.ticker = c.clock.NewTicker(time.Second)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func(ticks <-chan time.Time, stop, done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case now := <-ticks:
				c.m.Lock()
				c.left = RemainingUntil(now, c.event.Date)
				c.m.Unlock()
				nav.Changed()
			}
		}
	}(c.ticker.Chan(), c.stop, c.done)
}

// Unmount stops the ticker and waits for the refresh goroutine to exit so
// nothing touches the navigator afterwards.
func (c *Countdown) Unmount() {
	c.m.Lock()
	if c.ticker == nil {
		c.m.Unlock()
		return
	}
	c.ticker.Stop()
	c.ticker = nil
	close(c.stop)
	done := c.done
	c.m.Unlock()
	<-done
}

func (c *Countdown) Running() bool {
	c.m.Lock()
	defer c.m.Unlock()
	return c.ticker != nil
}

func (c *Countdown) View() any {
	c.m.Lock()
	defer c.m.Unlock()
	return CountdownView{Date: c.event.Date, Venue: c.event.Venue, Remaining: c.left}
}
