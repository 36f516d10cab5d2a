package content

import (
	"errors"
	"strings"
	"testing"
)

// Decode

func TestDecode_MissingFieldsTakeDefaults(t *testing.T) {
	doc, err := Decode([]byte(`{"hero":{"title":"Welkom"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Hero.Title != "Welkom" {
		t.Fatalf("Hero.Title = %q", doc.Hero.Title)
	}
	if doc.Announcement.BackgroundColor != ColorOrange {
		t.Fatalf("BackgroundColor = %q, want orange", doc.Announcement.BackgroundColor)
	}
	if doc.WhatsApp.Position != PositionRight {
		t.Fatalf("Position = %q, want right", doc.WhatsApp.Position)
	}
	if doc.OpeningHours.Title != "Openingstijden" {
		t.Fatalf("OpeningHours.Title = %q", doc.OpeningHours.Title)
	}
	if len(doc.OpeningHours.Days) != 7 || doc.OpeningHours.Days[0].Day != "Maandag" || doc.OpeningHours.Days[6].Day != "Zondag" {
		t.Fatalf("Days = %+v", doc.OpeningHours.Days)
	}
	if doc.Services.Items == nil || doc.FAQ.Items == nil || doc.Pricing.Items == nil || doc.SiteSettings.Navigation == nil {
		t.Fatal("expected empty, non-nil lists")
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	doc, err := Decode([]byte(`{"hero":{"title":"x","legacy":true},"gallery":[1,2,3]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Hero.Title != "x" {
		t.Fatalf("Hero.Title = %q", doc.Hero.Title)
	}
}

func TestDecode_ExplicitValuesKept(t *testing.T) {
	doc, err := Decode([]byte(`{"announcement":{"backgroundColor":"blue"},"whatsapp":{"position":"left"},"openingHours":{"title":"Tijden","days":[{"day":"Maandag","open":true,"openTime":"09:00","closeTime":"17:00"}]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Announcement.BackgroundColor != ColorBlue || doc.WhatsApp.Position != PositionLeft {
		t.Fatalf("explicit values lost: %+v %+v", doc.Announcement, doc.WhatsApp)
	}
	if doc.OpeningHours.Title != "Tijden" || len(doc.OpeningHours.Days) != 1 {
		t.Fatalf("OpeningHours = %+v", doc.OpeningHours)
	}
}

func TestDecode_AssignsMissingIDs(t *testing.T) {
	doc, err := Decode([]byte(`{"services":{"items":[{"id":"keep","title":"a"},{"title":"b"}]},"faq":{"items":[{"title":"q"}]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.Services.Items[0].ID != "keep" {
		t.Fatalf("existing ID changed to %q", doc.Services.Items[0].ID)
	}
	if doc.Services.Items[1].ID == "" || doc.FAQ.Items[0].ID == "" {
		t.Fatal("expected generated IDs")
	}
	if doc.Services.Items[1].ID == doc.FAQ.Items[0].ID {
		t.Fatal("generated IDs should differ")
	}
}

func TestDecode_MissingIDsAreStableAcrossReads(t *testing.T) {
	raw := []byte(`{"services":{"items":[{"title":"Knippen"},{"title":"Knippen"}]},"pricing":{"items":[{"service":"Knippen"}]}}`)
	first, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i := range first.Services.Items {
		if first.Services.Items[i].ID != second.Services.Items[i].ID {
			t.Fatalf("service %d: ID %q then %q", i, first.Services.Items[i].ID, second.Services.Items[i].ID)
		}
	}
	if first.Pricing.Items[0].ID != second.Pricing.Items[0].ID {
		t.Fatal("pricing ID changed between reads")
	}
	if first.Services.Items[0].ID == first.Services.Items[1].ID {
		t.Fatal("identical items at different positions need distinct IDs")
	}
}

func TestNormalize_NewItemsGetFreshIDs(t *testing.T) {
	a, b := Default(), Default()
	a.FAQ.Items = []FAQItem{{Title: "Parkeren?"}}
	b.FAQ.Items = []FAQItem{{Title: "Parkeren?"}}
	a.Normalize()
	b.Normalize()
	if a.FAQ.Items[0].ID == "" || a.FAQ.Items[0].ID == b.FAQ.Items[0].ID {
		t.Fatalf("IDs %q and %q", a.FAQ.Items[0].ID, b.FAQ.Items[0].ID)
	}
}

func TestDecode_NavigationVisibleDefaultsTrue(t *testing.T) {
	doc, err := Decode([]byte(`{"siteSettings":{"navigation":[{"id":"a","label":"Home"},{"id":"b","label":"Prijzen","visible":false}]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	nav := doc.SiteSettings.Navigation
	if !nav[0].Visible {
		t.Fatal("missing visible should default to true")
	}
	if nav[1].Visible {
		t.Fatal("explicit visible=false should be kept")
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, in := range []string{"", "   ", "{", "[]", `{"hero":"nope"}`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Errorf("Decode(%q): expected error", in)
		}
	}
}

// Validate

func validDocument() *Document {
	doc := Default()
	doc.SiteSettings = SiteSettings{
		Title:       "Kapsalon",
		Email:       "info@example.nl",
		WhatsAppURL: "https://wa.me/31612345678",
		Navigation:  []NavigationItem{{ID: "nav-1", Label: "Home", TargetID: "hero", Visible: true}},
	}
	doc.Services = Services{Title: "Diensten", Items: []ServiceItem{{ID: "svc-1", Title: "Knippen", Price: "25"}}}
	doc.FAQ = FAQ{Title: "Vragen", Items: []FAQItem{{ID: "faq-1", Title: "Parkeren?", Answer: "Ja, **gratis**."}}}
	doc.Pricing = Pricing{Title: "Prijzen", Items: []PriceItem{{ID: "p-1", Service: "Knippen", Duration: "30 min", Price: "25"}}}
	doc.OpeningHours.Days = DefaultDays()
	doc.Announcement = Announcement{Enabled: true, Message: "Gesloten", StartDate: "2025-12-24", EndDate: "2025-12-27", BackgroundColor: ColorRed}
	return &doc
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validDocument()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(d *Document)
		field string
	}{
		{"duplicate service id", func(d *Document) {
			d.Services.Items = append(d.Services.Items, ServiceItem{ID: "svc-1"})
		}, "Services.Items"},
		{"empty faq id", func(d *Document) { d.FAQ.Items[0].ID = "" }, "FAQ.Items[0].ID"},
		{"bad color", func(d *Document) { d.Announcement.BackgroundColor = "green" }, "BackgroundColor"},
		{"bad position", func(d *Document) { d.WhatsApp.Position = "middle" }, "Position"},
		{"bad start date", func(d *Document) { d.Announcement.StartDate = "24-12-2025" }, "StartDate"},
		{"bad open time", func(d *Document) { d.OpeningHours.Days[0].OpenTime = "9u" }, "OpenTime"},
		{"bad email", func(d *Document) { d.SiteSettings.Email = "not-an-email" }, "Email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDocument()
			tt.mut(d)
			err := Validate(d)
			if !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("err = %v, want ErrInvalidDocument", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("err = %q, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("err = %v", err)
	}
}

// Encode

func TestEncode_PrettyUsesTwoSpaces(t *testing.T) {
	b, err := Encode(validDocument(), true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(b), "\n  \"siteSettings\": {") {
		t.Fatalf("expected 2-space indentation, got:\n%s", b[:80])
	}
}

func TestEncode_Compact(t *testing.T) {
	b, err := Encode(validDocument(), false)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(b), "\n") {
		t.Fatal("compact encoding should be a single line")
	}
}
