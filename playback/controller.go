package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/audio"
	"github.com/marcus-crane/invitation/scenes"
)

// Controller owns one viewer's walk through the scene sequence. All state
// lives on a single loop goroutine; inputs, timer fires, scene requests and
// audio readiness all reach it as events, so transitions never race.
type Controller struct {
	clock      clockwork.Clock
	timings    Timings
	scenes     []scenes.Scene
	sequence   []SceneDescriptor
	track      *audio.Track
	onComplete func()
	observer   func(State)

	events    chan event
	changed   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	life    sync.Mutex
	cancel  context.CancelFunc
	started bool
	closed  bool

	// loop owned
	index      int
	playing    bool
	muted      bool
	opened     bool
	completed  bool
	progress   float64
	audioState audio.LoadState
	arbiter    arbiter
	mountGen   uint64
	timerGen   uint64
	enteredAt  time.Time
	elapsed    time.Duration
	dwellTimer clockwork.Timer
	ticker     clockwork.Ticker

	m        sync.RWMutex
	snapshot State
	lastSeen time.Time
}

type event struct {
	fn    func() error
	reply chan error
}

type Option func(*Controller)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithTimings(t Timings) Option {
	return func(c *Controller) { c.timings = t }
}

func WithTrack(t *audio.Track) Option {
	return func(c *Controller) { c.track = t }
}

// WithCompletion registers a callback for advance() on the last scene. It
// runs on the controller loop and must not block.
func WithCompletion(fn func()) Option {
	return func(c *Controller) { c.onComplete = fn }
}

// WithObserver is told about every new state. It runs on the controller
// loop and must not block.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}

func NewController(seq []scenes.Scene, opts ...Option) (*Controller, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: empty scene sequence", ErrInvalidInput)
	}
	c := &Controller{
		clock:      clockwork.NewRealClock(),
		timings:    DefaultTimings(),
		scenes:     seq,
		events:     make(chan event, 16),
		changed:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		playing:    true,
		audioState: audio.Loading,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.arbiter = arbiter{window: c.timings.Debounce, longPress: c.timings.LongPress}
	for i, s := range seq {
		c.sequence = append(c.sequence, SceneDescriptor{Index: i, Name: s.Name(), AutoAdvance: s.AutoAdvance()})
	}
	if c.track == nil {
		c.audioState = audio.Error
	}
	c.lastSeen = c.clock.Now()
	return c, nil
}

// Start mounts the first scene and runs the loop until ctx is done or Close
// is called. Starting twice, or after Close, does nothing.
func (c *Controller) Start(ctx context.Context) {
	c.life.Lock()
	if c.started || c.closed {
		c.life.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.life.Unlock()

	c.touch()
	c.enter(0)
	c.publish()

	if c.track != nil {
		c.track.Load(func(state audio.LoadState) {
			c.post(func() error {
				c.onAudio(state)
				return nil
			})
		})
	}

	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	defer c.teardown()

	for {
		var ticks <-chan time.Time
		if c.ticker != nil {
			ticks = c.ticker.Chan()
		}
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			err := ev.fn()
			c.publish()
			if ev.reply != nil {
				ev.reply <- err
			}
		case <-c.changed:
			c.publish()
		case <-ticks:
			c.sampleProgress()
			c.publish()
		}
	}
}

// teardown releases everything the mounted scene and the timers hold.
func (c *Controller) teardown() {
	c.disarm()
	c.scenes[c.index].Unmount()
	c.mountGen++
	if c.track != nil && c.audioState == audio.Ready {
		c.track.Stop()
	}
}

// Close stops the loop and waits for the current scene to be unmounted. A
// controller closed before it was started never starts.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.life.Lock()
		c.closed = true
		cancel, started := c.cancel, c.started
		c.life.Unlock()
		if !started {
			close(c.done)
			return
		}
		cancel()
		<-c.done
	})
}

// post hands work to the loop from any goroutine. It gives up silently once
// the loop has exited.
func (c *Controller) post(fn func() error) {
	select {
	case c.events <- event{fn: fn}:
	case <-c.done:
	}
}

// call runs fn on the loop and returns the state right after it.
func (c *Controller) call(ctx context.Context, fn func() error) (State, error) {
	reply := make(chan error, 1)
	select {
	case c.events <- event{fn: fn, reply: reply}:
	case <-c.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case err := <-reply:
		return c.State(), err
	case <-c.done:
		return State{}, ErrClosed
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Controller) State() State {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.snapshot
}

func (c *Controller) Sequence() []SceneDescriptor {
	out := make([]SceneDescriptor, len(c.sequence))
	copy(out, c.sequence)
	return out
}

// LastSeen is the last time the viewer interacted with the session.
func (c *Controller) LastSeen() time.Time {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.lastSeen
}

func (c *Controller) touch() {
	now := c.clock.Now()
	c.m.Lock()
	c.lastSeen = now
	c.m.Unlock()
}

// Dispatch feeds one viewer interaction into the session.
func (c *Controller) Dispatch(ctx context.Context, in Input) (State, error) {
	c.touch()
	return c.call(ctx, func() error { return c.handle(in) })
}

func (c *Controller) Advance(ctx context.Context) (State, error) {
	return c.call(ctx, func() error { c.advance(); return nil })
}

func (c *Controller) Retreat(ctx context.Context) (State, error) {
	return c.call(ctx, func() error { c.retreat(); return nil })
}

func (c *Controller) JumpTo(ctx context.Context, i int) (State, error) {
	return c.call(ctx, func() error { return c.jumpTo(i) })
}

func (c *Controller) Restart(ctx context.Context) (State, error) {
	return c.call(ctx, func() error { c.restart(); return nil })
}

func (c *Controller) ToggleMute(ctx context.Context) (State, error) {
	return c.call(ctx, func() error { c.toggleMute(); return nil })
}

func (c *Controller) TogglePlayPause(ctx context.Context) (State, error) {
	return c.call(ctx, func() error { c.togglePlayPause(); return nil })
}

func (c *Controller) handle(in Input) error {
	switch in.Kind {
	case InputJump:
		return c.jumpTo(in.Target)
	case InputMute:
		c.toggleMute()
		return nil
	case InputPlayPause:
		c.togglePlayPause()
		return nil
	case InputRestart:
		c.restart()
		return nil
	case InputWish:
		taker, ok := c.scenes[c.index].(scenes.WishTaker)
		if !ok {
			return fmt.Errorf("%w: the guestbook is not on screen", ErrInvalidInput)
		}
		taker.SubmitWish(in.Name, in.Message)
		return nil
	}

	activator, gate := c.scenes[c.index].(scenes.Activator)
	gate = gate && c.index == 0
	m, err := c.arbiter.resolve(in, c.opened, gate, c.clock.Now())
	if err != nil {
		return err
	}
	switch m {
	case moveNext:
		c.advance()
	case movePrev:
		c.retreat()
	case moveActivate:
		activator.Activate()
	}
	return nil
}

func (c *Controller) advance() {
	if c.index < len(c.scenes)-1 {
		c.enter(c.index + 1)
		return
	}
	if c.completed {
		return
	}
	c.completed = true
	if c.onComplete != nil {
		c.onComplete()
	}
}

func (c *Controller) retreat() {
	if c.index > 0 {
		c.enter(c.index - 1)
	}
}

func (c *Controller) jumpTo(i int) error {
	if i < 0 || i >= len(c.scenes) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(c.scenes))
	}
	if i != c.index {
		c.enter(i)
	}
	return nil
}

func (c *Controller) restart() {
	c.playing = true
	c.completed = false
	c.arbiter.reset()
	c.enter(0)
	c.opened = false
	if c.audioState == audio.Ready {
		c.track.Play()
	}
}

func (c *Controller) toggleMute() {
	c.muted = !c.muted
	if c.audioState == audio.Ready {
		c.track.SetMuted(c.muted)
	}
}

func (c *Controller) togglePlayPause() {
	c.playing = !c.playing
	if c.playing {
		c.arm()
		if c.audioState == audio.Ready {
			c.track.Play()
		}
		return
	}
	if c.dwellTimer != nil {
		c.sampleProgress()
		c.elapsed += c.clock.Since(c.enteredAt)
	}
	c.disarm()
	if c.audioState == audio.Ready {
		c.track.Pause()
	}
}

// enter swaps the mounted scene. The old scene's timers are stopped and the
// scene unmounted before anything of the new one starts.
func (c *Controller) enter(i int) {
	c.disarm()
	if c.mountGen > 0 {
		c.scenes[c.index].Unmount()
	}
	if c.index == 0 && i != 0 {
		c.opened = true
	}
	c.index = i
	c.progress = 0
	c.elapsed = 0
	c.completed = false
	c.mountGen++
	c.scenes[i].Mount(&navigator{c: c, gen: c.mountGen})
	c.arm()
}

// arm starts the dwell timer and progress ticker for the current scene if it
// auto-advances and playback is not paused.
func (c *Controller) arm() {
	if !c.sequence[c.index].AutoAdvance || !c.playing || c.dwellTimer != nil {
		return
	}
	remaining := c.timings.Dwell - c.elapsed
	if remaining < 0 {
		remaining = 0
	}
	c.timerGen++
	gen := c.timerGen
	c.enteredAt = c.clock.Now()
	c.dwellTimer = c.clock.AfterFunc(remaining, func() {
		c.post(func() error {
			c.onDwell(gen)
			return nil
		})
	})
	c.ticker = c.clock.NewTicker(c.timings.ProgressInterval)
}

func (c *Controller) disarm() {
	c.timerGen++
	if c.dwellTimer != nil {
		c.dwellTimer.Stop()
		c.dwellTimer = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

// onDwell fires when a dwell window closes. A fire from a window that has
// since been disarmed is ignored.
func (c *Controller) onDwell(gen uint64) {
	if gen != c.timerGen {
		slog.Debug("Dropped stale dwell timer", slog.Uint64("gen", gen), slog.Uint64("current", c.timerGen))
		return
	}
	c.progress = 1
	c.disarm()
	c.advance()
}

func (c *Controller) sampleProgress() {
	if c.dwellTimer == nil || c.timings.Dwell <= 0 {
		return
	}
	elapsed := c.elapsed + c.clock.Since(c.enteredAt)
	c.progress = min(float64(elapsed)/float64(c.timings.Dwell), 1)
}

func (c *Controller) onAudio(state audio.LoadState) {
	c.audioState = state
	if state != audio.Ready {
		return
	}
	c.track.SetMuted(c.muted)
	if c.playing {
		c.track.Play()
	}
}

func (c *Controller) publish() {
	s := State{
		Index:     c.index,
		Scene:     c.sequence[c.index].Name,
		Length:    len(c.scenes),
		IsPlaying: c.playing,
		IsMuted:   c.muted || c.audioState == audio.Error,
		Progress:  c.progress,
		HasOpened: c.opened,
		Completed: c.completed,
		Controls:  c.opened,
		Audio:     c.audioState,
		Audible:   c.track != nil && c.track.Audible(),
		View:      c.scenes[c.index].View(),
	}
	if !c.sequence[c.index].AutoAdvance {
		s.Progress = 0
	}
	c.m.Lock()
	c.snapshot = s
	c.m.Unlock()
	if c.observer != nil {
		c.observer(s)
	}
}

// navigator is what a mounted scene sees of the controller. It stops
// working the moment that scene is unmounted.
type navigator struct {
	c   *Controller
	gen uint64
}

func (n *navigator) Next() {
	n.c.post(func() error {
		if n.gen == n.c.mountGen {
			n.c.advance()
		}
		return nil
	})
}

func (n *navigator) Prev() {
	n.c.post(func() error {
		if n.gen == n.c.mountGen {
			n.c.retreat()
		}
		return nil
	})
}

func (n *navigator) Changed() {
	select {
	case n.c.changed <- struct{}{}:
	default:
	}
}
