package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

type LoadState string

const (
	Loading LoadState = "loading"
	Ready   LoadState = "ready"
	Error   LoadState = "error"
)

var (
	ErrNotReady    = errors.New("audio track has not finished loading")
	ErrUnavailable = errors.New("audio track failed to load")
)

// Track is the single background track of a session. Loading happens once;
// a failed load is final for the lifetime of the track.
type Track struct {
	path string

	m       sync.Mutex
	state   LoadState
	started bool
	playing bool
	muted   bool
	loadErr error
}

func NewTrack(path string) *Track {
	return &Track{path: path, state: Loading}
}

// Load probes the file in the background and calls done with the final
// state. Only the first call does anything.
func (t *Track) Load(done func(LoadState)) {
	t.m.Lock()
	if t.started {
		t.m.Unlock()
		return
	}
	t.started = true
	t.m.Unlock()

	go func() {
		err := probe(t.path)
		t.m.Lock()
		if err != nil {
			t.state = Error
			t.loadErr = err
			slog.Warn("Background audio unavailable, continuing silently",
				slog.String("path", t.path), slog.Any("error", err))
		} else {
			t.state = Ready
		}
		state := t.state
		t.m.Unlock()
		if done != nil {
			done(state)
		}
	}()
}

func probe(path string) error {
	if path == "" {
		return errors.New("no audio track configured")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(mime.String(), "audio/") {
		return fmt.Errorf("%s is %s, not audio", path, mime.String())
	}
	return nil
}

func (t *Track) State() LoadState {
	t.m.Lock()
	defer t.m.Unlock()
	return t.state
}

func (t *Track) ready() error {
	switch t.state {
	case Ready:
		return nil
	case Error:
		return ErrUnavailable
	}
	return ErrNotReady
}

func (t *Track) Play() error {
	t.m.Lock()
	defer t.m.Unlock()
	if err := t.ready(); err != nil {
		return err
	}
	t.playing = true
	return nil
}

func (t *Track) Pause() error {
	t.m.Lock()
	defer t.m.Unlock()
	if err := t.ready(); err != nil {
		return err
	}
	t.playing = false
	return nil
}

// Stop is Pause plus a rewind; there is no position to rewind server side.
func (t *Track) Stop() error {
	return t.Pause()
}

func (t *Track) SetMuted(muted bool) error {
	t.m.Lock()
	defer t.m.Unlock()
	if err := t.ready(); err != nil {
		return err
	}
	t.muted = muted
	return nil
}

// Audible is true only for a loaded, playing, unmuted track.
func (t *Track) Audible() bool {
	t.m.Lock()
	defer t.m.Unlock()
	return t.state == Ready && t.playing && !t.muted
}
