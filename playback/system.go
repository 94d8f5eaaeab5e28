package playback

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	hmacext "github.com/alexellis/hmac/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/r3labs/sse/v2"

	"github.com/marcus-crane/invitation/audio"
	"github.com/marcus-crane/invitation/events"
	"github.com/marcus-crane/invitation/scenes"
)

// SceneFactory builds a fresh, unshared set of scenes for one session.
type SceneFactory func(clock clockwork.Clock) ([]scenes.Scene, error)

type SystemOptions struct {
	Clock   clockwork.Clock
	Timings Timings
	Secret  string
	Scenes  SceneFactory
	// AudioPath is the background track; empty runs every session muted.
	AudioPath string
	// Throttle limits how often progress-only updates reach the event
	// stream. Zero sends every tick.
	Throttle time.Duration
}

type Session struct {
	ID         string      `json:"id"`
	Token      string      `json:"token"`
	CreatedAt  time.Time   `json:"created_at"`
	Controller *Controller `json:"-"`
}

type Counters struct {
	ActiveSessions int `json:"active_sessions"`
	SessionsSeen   int `json:"sessions_seen"`
	Completed      int `json:"completed"`
}

// PlaybackSystem tracks every live viewer session.
type PlaybackSystem struct {
	opts SystemOptions

	m         sync.RWMutex
	sessions  map[string]*Session
	seen      int
	completed int
}

func NewPlaybackSystem(opts SystemOptions) (*PlaybackSystem, error) {
	if opts.Scenes == nil {
		return nil, fmt.Errorf("playback system needs a scene factory")
	}
	if opts.Secret == "" {
		return nil, fmt.Errorf("playback system needs a session secret")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Timings == (Timings{}) {
		opts.Timings = DefaultTimings()
	}
	return &PlaybackSystem{
		opts:     opts,
		sessions: map[string]*Session{},
	}, nil
}

// Create starts a new session. The session outlives ctx; it ends on Close
// or when reaped.
func (ps *PlaybackSystem) Create(ctx context.Context) (*Session, error) {
	seq, err := ps.opts.Scenes(ps.opts.Clock)
	if err != nil {
		return nil, fmt.Errorf("failed to build scenes: %w", err)
	}

	id := uuid.NewString()
	pub := &publisher{stream: id, clock: ps.opts.Clock, throttle: ps.opts.Throttle}

	opts := []Option{
		WithClock(ps.opts.Clock),
		WithTimings(ps.opts.Timings),
		WithObserver(pub.publish),
		WithCompletion(func() { ps.onComplete(id) }),
	}
	if ps.opts.AudioPath != "" {
		opts = append(opts, WithTrack(audio.NewTrack(ps.opts.AudioPath)))
	}
	c, err := NewController(seq, opts...)
	if err != nil {
		return nil, err
	}

	if events.Server != nil {
		events.Server.CreateStream(id)
	}

	session := &Session{
		ID:         id,
		Token:      ps.sign(id),
		CreatedAt:  ps.opts.Clock.Now(),
		Controller: c,
	}

	// Only running sessions are ever visible to Get or Reap
	c.Start(context.Background())

	ps.m.Lock()
	ps.sessions[id] = session
	ps.seen++
	ps.m.Unlock()

	slog.With(slog.String("session", id)).Debug("Started playback session")
	return session, nil
}

func (ps *PlaybackSystem) sign(id string) string {
	return hex.EncodeToString(hmacext.Sign([]byte(id), []byte(ps.opts.Secret), sha256.New))
}

// Get looks a session up and checks the caller holds its token.
func (ps *PlaybackSystem) Get(id, token string) (*Session, error) {
	ps.m.RLock()
	session, ok := ps.sessions[id]
	ps.m.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if token == "" {
		return nil, ErrBadToken
	}
	if err := hmacext.Validate([]byte(id), fmt.Sprintf("sha256=%s", token), ps.opts.Secret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	return session, nil
}

// Exists reports whether id is a live session, without any token check.
func (ps *PlaybackSystem) Exists(id string) bool {
	ps.m.RLock()
	defer ps.m.RUnlock()
	_, ok := ps.sessions[id]
	return ok
}

// Close ends a session. Only the first call for an id does anything.
func (ps *PlaybackSystem) Close(id string) error {
	ps.m.Lock()
	session, ok := ps.sessions[id]
	delete(ps.sessions, id)
	ps.m.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	session.Controller.Close()
	if events.Server != nil {
		events.Server.RemoveStream(id)
	}
	slog.With(slog.String("session", id)).Debug("Closed playback session")
	return nil
}

// CloseAll ends every session, used on shutdown.
func (ps *PlaybackSystem) CloseAll() {
	for _, id := range ps.ids() {
		ps.Close(id)
	}
}

// Reap closes sessions nobody has interacted with for longer than idle.
func (ps *PlaybackSystem) Reap(idle time.Duration) int {
	now := ps.opts.Clock.Now()
	var stale []string

	ps.m.RLock()
	for id, session := range ps.sessions {
		if now.Sub(session.Controller.LastSeen()) > idle {
			stale = append(stale, id)
		}
	}
	ps.m.RUnlock()

	reaped := 0
	for _, id := range stale {
		if err := ps.Close(id); err == nil {
			reaped++
		}
	}
	if reaped > 0 {
		slog.With(slog.Int("count", reaped)).Info("Reaped idle playback sessions")
	}
	return reaped
}

func (ps *PlaybackSystem) Counters() Counters {
	ps.m.RLock()
	defer ps.m.RUnlock()
	return Counters{
		ActiveSessions: len(ps.sessions),
		SessionsSeen:   ps.seen,
		Completed:      ps.completed,
	}
}

func (ps *PlaybackSystem) ids() []string {
	ps.m.RLock()
	defer ps.m.RUnlock()
	ids := make([]string, 0, len(ps.sessions))
	for id := range ps.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (ps *PlaybackSystem) onComplete(id string) {
	ps.m.Lock()
	ps.completed++
	ps.m.Unlock()
	slog.With(slog.String("session", id)).Info("Viewer reached the end of the invitation")
}

// publisher forwards controller states to the session's event stream. It
// only ever runs on the controller loop.
type publisher struct {
	stream   string
	clock    clockwork.Clock
	throttle time.Duration

	lastKey []byte
	lastAt  time.Time
}

func (p *publisher) publish(s State) {
	if events.Server == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		slog.With(slog.Any("error", err)).Error("Failed to encode playback state")
		return
	}

	// progress-only changes are rate limited; anything else goes out at once
	keyed := s
	keyed.Progress = 0
	key, _ := json.Marshal(keyed)
	now := p.clock.Now()
	if p.throttle > 0 && bytes.Equal(key, p.lastKey) && now.Sub(p.lastAt) < p.throttle {
		return
	}
	p.lastKey = key
	p.lastAt = now

	events.Server.Publish(p.stream, &sse.Event{Data: data})
}
