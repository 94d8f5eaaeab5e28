package scenes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/shared"
)

type WishStatus string

const (
	StatusIdle    WishStatus = ""
	StatusSending WishStatus = "sending"
	StatusSent    WishStatus = "sent"
	StatusFailed  WishStatus = "error"
	StatusInvalid WishStatus = "invalid"
)

const submitTimeout = 15 * time.Second

// Wishes is the closing guestbook scene. While mounted it holds one live
// subscription to the newest wishes and releases it on unmount.
type Wishes struct {
	clock  clockwork.Clock
	bridge *guestbook.Bridge
	limit  int
	clear  time.Duration
	auto   bool

	m           sync.Mutex
	gen         uint64
	nav         Navigator
	sub         *guestbook.Subscription
	wishes      []guestbook.Wish
	status      WishStatus
	statusTimer clockwork.Timer
}

type WishesView struct {
	Wishes []guestbook.Wish `json:"wishes"`
	Status WishStatus       `json:"status"`
}

func NewWishes(clock clockwork.Clock, bridge *guestbook.Bridge, limit int, clear time.Duration, auto bool) *Wishes {
	return &Wishes{
		clock:  clock,
		bridge: bridge,
		limit:  guestbook.ClampLimit(limit),
		clear:  clear,
		auto:   auto,
		wishes: []guestbook.Wish{},
	}
}

func (w *Wishes) Name() string      { return shared.SCENE_WISHES }
func (w *Wishes) AutoAdvance() bool { return w.auto }

func (w *Wishes) Mount(nav Navigator) {
	w.m.Lock()
	defer w.m.Unlock()
	if w.sub != nil {
		return
	}
	w.gen++
	w.nav = nav

	sub, err := w.bridge.SubscribeLatest(context.Background(), w.limit)
	if err != nil {
		slog.Error("Could not subscribe to guestbook", slog.Any("error", err))
		return
	}
	w.sub = sub

	go func() {
		for snapshot := range sub.C {
			w.m.Lock()
			if w.sub != sub {
				w.m.Unlock()
				return
			}
			w.wishes = snapshot
			w.m.Unlock()
			nav.Changed()
		}
	}()
}

func (w *Wishes) Unmount() {
	w.m.Lock()
	sub := w.sub
	w.sub = nil
	w.nav = nil
	w.gen++
	if w.statusTimer != nil {
		w.statusTimer.Stop()
		w.statusTimer = nil
	}
	w.status = StatusIdle
	w.m.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Subscribed reports whether a live subscription is currently held.
func (w *Wishes) Subscribed() bool {
	w.m.Lock()
	defer w.m.Unlock()
	return w.sub != nil
}

// SubmitWish validates locally and then writes in the background. The
// outcome is only ever shown as a transient status, and only to the mount it
// was submitted from; errors never propagate.
func (w *Wishes) SubmitWish(name, message string) {
	w.m.Lock()
	gen := w.gen
	w.m.Unlock()

	if _, _, err := guestbook.Normalise(name, message); err != nil {
		w.setStatus(gen, StatusInvalid)
		return
	}
	w.setStatus(gen, StatusSending)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		err := w.bridge.Submit(ctx, name, message)
		switch {
		case err == nil:
			w.setStatus(gen, StatusSent)
		case errors.Is(err, guestbook.ErrEmptyField):
			w.setStatus(gen, StatusInvalid)
		default:
			slog.Warn("Failed to submit wish", slog.Any("error", err))
			w.setStatus(gen, StatusFailed)
		}
	}()
}

// setStatus shows a status and schedules it to clear. Sending stays up until
// the write finishes. A status from an earlier mount is dropped.
func (w *Wishes) setStatus(gen uint64, status WishStatus) {
	w.m.Lock()
	if gen != w.gen {
		w.m.Unlock()
		return
	}
	if w.statusTimer != nil {
		w.statusTimer.Stop()
		w.statusTimer = nil
	}
	w.status = status
	nav := w.nav
	if status != StatusSending && status != StatusIdle {
		var timer clockwork.Timer
		timer = w.clock.AfterFunc(w.clear, func() {
			w.m.Lock()
			if w.statusTimer != timer {
				w.m.Unlock()
				return
			}
			w.status = StatusIdle
			w.statusTimer = nil
			nav := w.nav
			w.m.Unlock()
			if nav != nil {
				nav.Changed()
			}
		})
		w.statusTimer = timer
	}
	w.m.Unlock()
	if nav != nil {
		nav.Changed()
	}
}

func (w *Wishes) View() any {
	w.m.Lock()
	defer w.m.Unlock()
	list := make([]guestbook.Wish, len(w.wishes))
	copy(list, w.wishes)
	return WishesView{Wishes: list, Status: w.status}
}
