// Package scenes holds the individual steps of the invitation. A scene only
// knows how to render itself and, occasionally, ask to move on; pacing is
// owned by the playback controller.
package scenes

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/guestbook"
	"github.com/marcus-crane/invitation/shared"
)

// Navigator is handed to a scene when it is mounted. Calls made after the
// scene has been unmounted are dropped by the controller.
type Navigator interface {
	Next()
	Prev()
	// Changed asks for the current view to be pushed to the viewer again.
	Changed()
}

type Scene interface {
	Name() string
	AutoAdvance() bool
	Mount(nav Navigator)
	Unmount()
	View() any
}

// Activator is implemented by scenes that handle taps themselves instead of
// letting them navigate.
type Activator interface {
	Activate()
}

// WishTaker is implemented by the guestbook scene.
type WishTaker interface {
	SubmitWish(name, message string)
}

type Deps struct {
	Clock    clockwork.Clock
	Bridge   *guestbook.Bridge
	BasePath string
	Photos   []GalleryPhoto
}

// Build creates a fresh set of scenes for one session, in content order.
func Build(content config.Content, deps Deps) ([]Scene, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	timings := content.Playback
	out := make([]Scene, 0, len(content.Scenes))
	for i, entry := range content.Scenes {
		auto := content.AutoAdvance(i)
		var s Scene
		switch entry.Kind {
		case shared.SCENE_ENVELOPE:
			s = NewEnvelope(deps.Clock, timings.OpenDelay(), content.Couple, auto)
		case shared.SCENE_COUNTDOWN:
			s = NewCountdown(deps.Clock, content.Event, auto)
		case shared.SCENE_SCHEDULE:
			s = NewSchedule(content.Schedule, content.Contacts, content.Event, auto)
		case shared.SCENE_GALLERY:
			s = NewGallery(deps.Photos, auto)
		case shared.SCENE_GIFT:
			s = NewGift(content.Accounts, deps.BasePath, auto)
		case shared.SCENE_WISHES:
			if deps.Bridge == nil {
				return nil, fmt.Errorf("scene %d needs a guestbook", i)
			}
			s = NewWishes(deps.Clock, deps.Bridge, timings.WishLimit, timings.StatusClear(), auto)
		default:
			return nil, fmt.Errorf("scene %d has unknown kind %q", i, entry.Kind)
		}
		out = append(out, s)
	}
	return out, nil
}

// static is embedded by scenes with no lifecycle of their own.
type static struct {
	name string
	auto bool
}

func (s static) Name() string      { return s.name }
func (s static) AutoAdvance() bool { return s.auto }
func (static) Mount(Navigator)     {}
func (static) Unmount()            {}
