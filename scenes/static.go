package scenes

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/marcus-crane/invitation/config"
	"github.com/marcus-crane/invitation/shared"
	"github.com/marcus-crane/invitation/utils"
)

type Schedule struct {
	static
	view ScheduleView
}

type ScheduleView struct {
	Date     string                `json:"date"`
	Venue    string                `json:"venue"`
	Address  string                `json:"address"`
	Items    []config.ScheduleItem `json:"items"`
	Contacts []ContactView         `json:"contacts"`
}

type ContactView struct {
	Label string `json:"label"`
	Phone string `json:"phone"`
	Tel   string `json:"tel"`
}

func NewSchedule(items []config.ScheduleItem, contacts []config.Contact, event config.Event, auto bool) *Schedule {
	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, ContactView{Label: c.Label, Phone: c.Phone, Tel: TelURL(c.Phone)})
	}
	return &Schedule{
		static: static{name: shared.SCENE_SCHEDULE, auto: auto},
		view: ScheduleView{
			Date:     event.Date.Format("Monday, 2 January 2006"),
			Venue:    event.Venue,
			Address:  event.Address,
			Items:    items,
			Contacts: views,
		},
	}
}

// TelURL turns a display number like "0975 142 475" into a dialable
// "tel:0975142475". A leading plus is kept.
func TelURL(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return "tel:" + b.String()
}

func (s *Schedule) View() any { return s.view }

// GalleryPhoto is a photo ready to render, with its colours worked out ahead
// of time so the page can paint a matching backdrop before the image loads.
type GalleryPhoto struct {
	ID              string   `json:"id"`
	URL             string   `json:"url"`
	Caption         string   `json:"caption"`
	DominantColours []string `json:"dominant_colours"`
}

type Gallery struct {
	static
	photos []GalleryPhoto
	petals []Petal
}

type GalleryView struct {
	Photos []GalleryPhoto `json:"photos"`
	Petals []Petal        `json:"petals"`
}

const galleryPetals = 24

func NewGallery(photos []GalleryPhoto, auto bool) *Gallery {
	return &Gallery{
		static: static{name: shared.SCENE_GALLERY, auto: auto},
		photos: photos,
		petals: Petals(galleryPetals),
	}
}

func (g *Gallery) View() any { return GalleryView{Photos: g.photos, Petals: g.petals} }

// GeneratePhotoID is deterministic so the same file always gets the same id.
func GeneratePhotoID(file string) string {
	return fmt.Sprintf("photo:%d", xxhash.Sum64String(file))
}

// PreparePhotos resolves every configured photo against the assets
// directory. A photo whose colours cannot be read is still shown, just
// without a backdrop.
func PreparePhotos(photos []config.Photo, assetsDir, basePath string) []GalleryPhoto {
	out := make([]GalleryPhoto, 0, len(photos))
	for _, p := range photos {
		colours, err := utils.DominantColours(filepath.Join(assetsDir, p.File))
		if err != nil {
			slog.Warn("Could not extract photo colours", slog.String("file", p.File), slog.Any("error", err))
		}
		out = append(out, GalleryPhoto{
			ID:              GeneratePhotoID(p.File),
			URL:             config.AssetURL(basePath, p.File),
			Caption:         p.Caption,
			DominantColours: colours,
		})
	}
	return out
}

type Gift struct {
	static
	accounts []GiftAccount
}

// GiftAccount carries the transfer payload exactly as configured; it is
// never parsed.
type GiftAccount struct {
	ID      string `json:"id"`
	Bank    string `json:"bank"`
	Holder  string `json:"holder"`
	Number  string `json:"number"`
	Payload string `json:"payload"`
	QRURL   string `json:"qr_url"`
}

type GiftView struct {
	Accounts []GiftAccount `json:"accounts"`
}

func NewGift(accounts []config.Account, basePath string, auto bool) *Gift {
	out := make([]GiftAccount, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, GiftAccount{
			ID:      a.ID,
			Bank:    a.Bank,
			Holder:  a.Holder,
			Number:  a.Number,
			Payload: a.Payload,
			QRURL:   fmt.Sprintf("%s/qr/%s.png", config.NormaliseBasePath(basePath), a.ID),
		})
	}
	return &Gift{static: static{name: shared.SCENE_GIFT, auto: auto}, accounts: out}
}

func (g *Gift) View() any { return GiftView{Accounts: g.accounts} }
