package shared

const (
	SCENE_COUNTDOWN = "countdown"
	SCENE_ENVELOPE  = "envelope"
	SCENE_GALLERY   = "gallery"
	SCENE_GIFT      = "gift"
	SCENE_SCHEDULE  = "schedule"
	SCENE_WISHES    = "wishes"

	STREAM_WISHES = "wishes"
)

var sceneKinds = map[string]bool{
	SCENE_COUNTDOWN: true,
	SCENE_ENVELOPE:  true,
	SCENE_GALLERY:   true,
	SCENE_GIFT:      true,
	SCENE_SCHEDULE:  true,
	SCENE_WISHES:    true,
}

func IsSceneKind(kind string) bool {
	return sceneKinds[kind]
}

// DefaultAutoAdvance is false for the gating envelope and the interactive
// guestbook, which wait for the viewer instead of a timer.
func DefaultAutoAdvance(kind string) bool {
	return kind != SCENE_ENVELOPE && kind != SCENE_WISHES
}
