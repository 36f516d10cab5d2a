package content

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// Document is the whole editable content of the site. It is always loaded and
// persisted as one unit.
type Document struct {
	SiteSettings SiteSettings `json:"siteSettings"`
	Hero         Hero         `json:"hero"`
	Services     Services     `json:"services"`
	About        About        `json:"about"`
	FAQ          FAQ          `json:"faq"`
	Pricing      Pricing      `json:"pricing"`
	OpeningHours OpeningHours `json:"openingHours"`
	Announcement Announcement `json:"announcement"`
	WhatsApp     WhatsApp     `json:"whatsapp"`
}

type SiteSettings struct {
	Title       string           `json:"title"`
	LogoText    string           `json:"logoText"`
	LogoSubtext string           `json:"logoSubtext"`
	Phone       string           `json:"phone"`
	Email       string           `json:"email" validate:"omitempty,email"`
	Address     string           `json:"address"`
	WhatsAppURL string           `json:"whatsappUrl" validate:"omitempty,url"`
	Navigation  []NavigationItem `json:"navigation" validate:"unique=ID,dive"`
}

type NavigationItem struct {
	ID       string `json:"id" validate:"required"`
	Label    string `json:"label"`
	TargetID string `json:"targetId"`
	Visible  bool   `json:"visible"`
}

// UnmarshalJSON defaults Visible to true for documents written before the
// flag existed.
func (n *NavigationItem) UnmarshalJSON(b []byte) error {
	type plain NavigationItem
	p := plain{Visible: true}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*n = NavigationItem(p)
	return nil
}

type Hero struct {
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	CTALabel        string `json:"ctaLabel"`
	CTAURL          string `json:"ctaUrl"`
	BackgroundImage string `json:"backgroundImage" validate:"omitempty,url"`
}

type Services struct {
	Title string        `json:"title"`
	Items []ServiceItem `json:"items" validate:"unique=ID,dive"`
}

type ServiceItem struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Image       string `json:"image" validate:"omitempty,url"`
}

type About struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Image     string `json:"image" validate:"omitempty,url"`
	Signature string `json:"signature"`
	Tagline   string `json:"tagline"`
	CTALabel  string `json:"ctaLabel"`
	CTAURL    string `json:"ctaUrl"`
}

type FAQ struct {
	Title string    `json:"title"`
	Items []FAQItem `json:"items" validate:"unique=ID,dive"`
}

type FAQItem struct {
	ID     string `json:"id" validate:"required"`
	Title  string `json:"title"`
	Answer string `json:"answer"`
}

type Pricing struct {
	Title string      `json:"title"`
	Note  string      `json:"note"`
	Items []PriceItem `json:"items" validate:"unique=ID,dive"`
}

type PriceItem struct {
	ID       string `json:"id" validate:"required"`
	Service  string `json:"service"`
	Duration string `json:"duration"`
	Price    string `json:"price"`
}

type OpeningHours struct {
	Title string `json:"title"`
	Days  []Day  `json:"days" validate:"dive"`
}

type Day struct {
	Day           string `json:"day" validate:"required"`
	Open          bool   `json:"open"`
	OpenTime      string `json:"openTime" validate:"omitempty,datetime=15:04"`
	CloseTime     string `json:"closeTime" validate:"omitempty,datetime=15:04"`
	ByAppointment bool   `json:"byAppointment"`
}

const (
	ColorOrange = "orange"
	ColorRed    = "red"
	ColorBlue   = "blue"

	PositionLeft  = "left"
	PositionRight = "right"
)

type Announcement struct {
	Enabled         bool   `json:"enabled"`
	Message         string `json:"message"`
	StartDate       string `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate         string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	BackgroundColor string `json:"backgroundColor" validate:"omitempty,oneof=orange red blue"`
}

type WhatsApp struct {
	Enabled     bool   `json:"enabled"`
	PhoneNumber string `json:"phoneNumber" validate:"max=32"`
	Message     string `json:"message"`
	Position    string `json:"position" validate:"omitempty,oneof=left right"`
}

// weekdays is the fixed order of the opening hours table.
var weekdays = []string{"Maandag", "Dinsdag", "Woensdag", "Donderdag", "Vrijdag", "Zaterdag", "Zondag"}

// DefaultDays returns the seven days of the week, all closed.
func DefaultDays() []Day {
	days := make([]Day, len(weekdays))
	for i, d := range weekdays {
		days[i] = Day{Day: d}
	}
	return days
}

// Default returns the scalar defaults a decoded document starts from.
// List sections are left nil so decoding never merges into stale elements.
func Default() Document {
	return Document{
		OpeningHours: OpeningHours{Title: "Openingstijden"},
		Announcement: Announcement{BackgroundColor: ColorOrange},
		WhatsApp:     WhatsApp{Position: PositionRight},
	}
}

// Decode parses a document leniently: unknown fields are ignored and missing
// fields keep their defaults. The result is normalized.
func Decode(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, xerrors.New("decode content document: empty input")
	}
	doc := Default()
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, xerrors.Wrap(err, "decode content document")
	}
	doc.normalize(derivedID)
	return &doc, nil
}

// Encode serializes the document. pretty selects 2-space indentation.
func Encode(doc *Document, pretty bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(doc, "", "  ")
	} else {
		b, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "encode content document")
	}
	return b, nil
}

// Normalize fills list-level defaults and assigns a random ID to every list
// item that lacks one. Existing IDs are never changed. It runs on save, so
// IDs given to new items are persisted with them.
func (d *Document) Normalize() { d.normalize(randomID) }

// idFunc returns the ID for the item at index i of a list. The item is
// passed with its empty ID.
type idFunc func(list string, i int, item any) string

func randomID(string, int, any) string { return uuid.NewString() }

// idNamespace scopes the name-based IDs of derivedID.
var idNamespace = uuid.MustParse("6f1f6b2e-3c0b-4d55-9a43-6a8e2b7d51c4")

// derivedID is used on read. A stored document whose items lack IDs then
// reports the same IDs on every read until a save persists them.
func derivedID(list string, i int, item any) string {
	b, _ := json.Marshal(item)
	name := list + "/" + strconv.Itoa(i) + "/" + string(b)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func (d *Document) normalize(newID idFunc) {
	if d.SiteSettings.Navigation == nil {
		d.SiteSettings.Navigation = []NavigationItem{}
	}
	for i, it := range d.SiteSettings.Navigation {
		if it.ID == "" {
			d.SiteSettings.Navigation[i].ID = newID("navigation", i, it)
		}
	}

	if d.Services.Items == nil {
		d.Services.Items = []ServiceItem{}
	}
	for i, it := range d.Services.Items {
		if it.ID == "" {
			d.Services.Items[i].ID = newID("services", i, it)
		}
	}

	if d.FAQ.Items == nil {
		d.FAQ.Items = []FAQItem{}
	}
	for i, it := range d.FAQ.Items {
		if it.ID == "" {
			d.FAQ.Items[i].ID = newID("faq", i, it)
		}
	}

	if d.Pricing.Items == nil {
		d.Pricing.Items = []PriceItem{}
	}
	for i, it := range d.Pricing.Items {
		if it.ID == "" {
			d.Pricing.Items[i].ID = newID("pricing", i, it)
		}
	}

	if len(d.OpeningHours.Days) == 0 {
		d.OpeningHours.Days = DefaultDays()
	}

	if d.Announcement.BackgroundColor == "" {
		d.Announcement.BackgroundColor = ColorOrange
	}
	if d.WhatsApp.Position == "" {
		d.WhatsApp.Position = PositionRight
	}
}
