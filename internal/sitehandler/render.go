package sitehandler

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/keithlinneman/smallbiz-web/internal/content"
	"github.com/keithlinneman/smallbiz-web/internal/xerrors"
)

// page is the data the index template renders.
type page struct {
	*content.Document

	// Banner is set only when the announcement is active today.
	Banner       *content.Announcement
	Navigation   []content.NavigationItem
	WhatsAppLink string
	Year         int
}

func newPage(doc *content.Document, now time.Time) page {
	p := page{Document: doc, Year: now.Year()}
	if doc.Announcement.ActiveOn(now) {
		a := doc.Announcement
		p.Banner = &a
	}
	for _, n := range doc.SiteSettings.Navigation {
		if n.Visible {
			p.Navigation = append(p.Navigation, n)
		}
	}
	if doc.WhatsApp.Enabled {
		p.WhatsAppLink = whatsAppLink(doc.WhatsApp.PhoneNumber, doc.WhatsApp.Message)
	}
	return p
}

// whatsAppLink builds a wa.me click-to-chat link. Returns "" when the number
// has no digits.
func whatsAppLink(phone, message string) string {
	digits := onlyDigits(phone)
	if digits == "" {
		return ""
	}
	link := "https://wa.me/" + digits
	if message != "" {
		link += "?text=" + url.QueryEscape(message)
	}
	return link
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// telHref keeps a leading + and the digits of a phone number.
func telHref(phone string) string {
	d := onlyDigits(phone)
	if d == "" {
		return ""
	}
	if strings.HasPrefix(strings.TrimSpace(phone), "+") {
		return "tel:+" + d
	}
	return "tel:" + d
}

// markdown renders editor text to HTML. Raw HTML in the source is dropped.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func bannerClass(color string) string {
	switch color {
	case content.ColorRed:
		return "banner banner-red"
	case content.ColorBlue:
		return "banner banner-blue"
	default:
		return "banner banner-orange"
	}
}

func dayHours(d content.Day) string {
	switch {
	case !d.Open:
		return "Gesloten"
	case d.ByAppointment:
		return "Op afspraak"
	default:
		return d.OpenTime + " - " + d.CloseTime
	}
}

var funcs = template.FuncMap{
	"markdown":    renderMarkdown,
	"tel":         telHref,
	"bannerClass": bannerClass,
	"dayHours":    dayHours,
}

func parseTemplate(fsys fs.FS, name string) (*template.Template, error) {
	t, err := template.New(name).Funcs(funcs).ParseFS(fsys, name)
	if err != nil {
		return nil, xerrors.Wrapf(err, "parse template %q", name)
	}
	return t, nil
}
