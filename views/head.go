// Package views renders SEO documents and <head> fragments as templ components.
package views

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Head returns the SEO tags for meta. Empty fields are omitted.
func Head(meta Meta) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		writeHead(&b, meta)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// HeadHTML renders Head to a string.
func HeadHTML(meta Meta) string {
	var b strings.Builder
	writeHead(&b, meta)
	return b.String()
}

func writeHead(b *strings.Builder, m Meta) {
	if m.Title != "" {
		b.WriteString("<title>" + html.EscapeString(m.Title) + "</title>\n")
	}
	nameTag(b, "description", m.Description)
	nameTag(b, "keywords", m.Keywords)
	nameTag(b, "robots", m.Robots)
	if m.Canonical != "" {
		b.WriteString(`<link rel="canonical" href="` + html.EscapeString(m.Canonical) + `">` + "\n")
	}

	propTag(b, "og:title", m.Title)
	propTag(b, "og:description", m.Description)
	propTag(b, "og:url", m.Canonical)
	propTag(b, "og:type", m.Type)
	propTag(b, "og:image", m.Image)
	propTag(b, "og:image:alt", m.ImageAlt)
	propTag(b, "og:site_name", m.SiteName)
	propTag(b, "og:locale", m.Locale)

	nameTag(b, "twitter:card", m.TwitterCard)
	nameTag(b, "twitter:title", m.Title)
	nameTag(b, "twitter:description", m.Description)
	nameTag(b, "twitter:image", m.Image)
	nameTag(b, "twitter:image:alt", m.ImageAlt)
	nameTag(b, "twitter:site", m.TwitterSite)

	for _, ld := range m.JSONLD {
		if ld == "" {
			continue
		}
		b.WriteString(`<script type="application/ld+json">` + escapeScript(ld) + "</script>\n")
	}
}

func nameTag(b *strings.Builder, name, content string) {
	if content == "" {
		return
	}
	b.WriteString(`<meta name="` + name + `" content="` + html.EscapeString(content) + `">` + "\n")
}

func propTag(b *strings.Builder, prop, content string) {
	if content == "" {
		return
	}
	b.WriteString(`<meta property="` + prop + `" content="` + html.EscapeString(content) + `">` + "\n")
}

// escapeScript keeps a JSON payload from closing its <script> element.
func escapeScript(s string) string {
	return strings.ReplaceAll(s, "</", `<\/`)
}
