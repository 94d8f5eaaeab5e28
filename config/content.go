package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/marcus-crane/invitation/shared"
)

// Content is everything the invitation shows: the scene sequence, its
// pacing and the copy each scene renders.
type Content struct {
	Couple   Couple          `toml:"couple"`
	Event    Event           `toml:"event"`
	Playback PlaybackTimings `toml:"playback"`
	Audio    Audio           `toml:"audio"`
	Scenes   []SceneEntry    `toml:"scenes"`
	Schedule []ScheduleItem  `toml:"schedule"`
	Photos   []Photo         `toml:"photos"`
	Accounts []Account       `toml:"accounts"`
	Contacts []Contact       `toml:"contacts"`
}

type Couple struct {
	First  string `toml:"first" json:"first"`
	Second string `toml:"second" json:"second"`
}

type Event struct {
	Date    time.Time `toml:"date"`
	Venue   string    `toml:"venue"`
	Address string    `toml:"address"`
}

// PlaybackTimings are fixed for the lifetime of the process.
type PlaybackTimings struct {
	DwellSeconds       int `toml:"dwell_seconds"`
	ProgressIntervalMs int `toml:"progress_interval_ms"`
	DebounceMs         int `toml:"debounce_ms"`
	LongPressMs        int `toml:"long_press_ms"`
	OpenDelayMs        int `toml:"open_delay_ms"`
	StatusClearMs      int `toml:"status_clear_ms"`
	WishLimit          int `toml:"wish_limit"`
}

type Audio struct {
	Track string `toml:"track"`
}

// SceneEntry is one step of the sequence. AutoAdvance falls back to the
// kind's default when left out.
type SceneEntry struct {
	Kind        string `toml:"kind"`
	AutoAdvance *bool  `toml:"auto_advance"`
}

type ScheduleItem struct {
	Time  string `toml:"time" json:"time"`
	Title string `toml:"title" json:"title"`
	Place string `toml:"place" json:"place"`
	// Link is a map URL for the place.
	Link string `toml:"link" json:"link,omitempty"`
}

// Contact is someone guests can phone about the day.
type Contact struct {
	Label string `toml:"label"`
	Phone string `toml:"phone"`
}

type Photo struct {
	File    string `toml:"file"`
	Caption string `toml:"caption"`
}

type Account struct {
	ID      string `toml:"id"`
	Bank    string `toml:"bank"`
	Holder  string `toml:"holder"`
	Number  string `toml:"number"`
	Payload string `toml:"payload"`
}

func (t PlaybackTimings) Dwell() time.Duration {
	return time.Duration(t.DwellSeconds) * time.Second
}

func (t PlaybackTimings) ProgressInterval() time.Duration {
	return time.Duration(t.ProgressIntervalMs) * time.Millisecond
}

func (t PlaybackTimings) Debounce() time.Duration {
	return time.Duration(t.DebounceMs) * time.Millisecond
}

func (t PlaybackTimings) LongPress() time.Duration {
	return time.Duration(t.LongPressMs) * time.Millisecond
}

func (t PlaybackTimings) OpenDelay() time.Duration {
	return time.Duration(t.OpenDelayMs) * time.Millisecond
}

func (t PlaybackTimings) StatusClear() time.Duration {
	return time.Duration(t.StatusClearMs) * time.Millisecond
}

func DefaultTimings() PlaybackTimings {
	return PlaybackTimings{
		DwellSeconds:       30,
		ProgressIntervalMs: 50,
		DebounceMs:         500,
		LongPressMs:        300,
		OpenDelayMs:        3000,
		StatusClearMs:      3000,
		WishLimit:          1000,
	}
}

func DefaultContent() Content {
	return Content{
		Couple:   Couple{First: "Alex", Second: "Sam"},
		Event:    Event{Date: time.Date(2027, time.March, 20, 16, 0, 0, 0, time.UTC), Venue: "The Old Boathouse"},
		Playback: DefaultTimings(),
		Audio:    Audio{Track: "audio/theme.mp3"},
		Scenes: []SceneEntry{
			{Kind: shared.SCENE_ENVELOPE},
			{Kind: shared.SCENE_COUNTDOWN},
			{Kind: shared.SCENE_SCHEDULE},
			{Kind: shared.SCENE_GALLERY},
			{Kind: shared.SCENE_GIFT},
			{Kind: shared.SCENE_WISHES},
		},
	}
}

// LoadContent reads a TOML content file. Timings and the scene sequence fall
// back to the defaults when left out; an empty path yields the defaults
// alone.
func LoadContent(path string) (Content, error) {
	if path == "" {
		return DefaultContent(), nil
	}
	var content Content
	raw, err := os.ReadFile(path)
	if err != nil {
		return content, fmt.Errorf("read content %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &content); err != nil {
		return content, fmt.Errorf("parse content %s: %w", path, err)
	}
	content.normalise()
	if err := content.Validate(); err != nil {
		return content, err
	}
	return content, nil
}

func (c *Content) normalise() {
	if len(c.Scenes) == 0 {
		c.Scenes = DefaultContent().Scenes
	}
	d := DefaultTimings()
	p := &c.Playback
	if p.DwellSeconds <= 0 {
		p.DwellSeconds = d.DwellSeconds
	}
	if p.ProgressIntervalMs <= 0 {
		p.ProgressIntervalMs = d.ProgressIntervalMs
	}
	if p.DebounceMs <= 0 {
		p.DebounceMs = d.DebounceMs
	}
	if p.LongPressMs <= 0 {
		p.LongPressMs = d.LongPressMs
	}
	if p.OpenDelayMs <= 0 {
		p.OpenDelayMs = d.OpenDelayMs
	}
	if p.StatusClearMs <= 0 {
		p.StatusClearMs = d.StatusClearMs
	}
	if p.WishLimit <= 0 || p.WishLimit > d.WishLimit {
		p.WishLimit = d.WishLimit
	}
}

func (c *Content) Validate() error {
	if len(c.Scenes) == 0 {
		return errors.New("content must list at least one scene")
	}
	for i, s := range c.Scenes {
		if !shared.IsSceneKind(s.Kind) {
			return fmt.Errorf("scene %d has unknown kind %q", i, s.Kind)
		}
	}
	for i, contact := range c.Contacts {
		if strings.TrimSpace(contact.Phone) == "" {
			return fmt.Errorf("contact %d needs a phone number", i)
		}
	}
	seen := map[string]bool{}
	for _, a := range c.Accounts {
		if a.ID == "" {
			return errors.New("every account needs an id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// AutoAdvance reports whether the scene at index i runs the dwell timer.
func (c *Content) AutoAdvance(i int) bool {
	s := c.Scenes[i]
	if s.AutoAdvance != nil {
		return *s.AutoAdvance
	}
	return shared.DefaultAutoAdvance(s.Kind)
}

func (c *Content) Account(id string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
