package views

import (
	"context"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// Document renders a standalone HTML page for crawlers: the full head plus a
// minimal body. body may be nil.
func Document(meta Meta, heading string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html lang=\"" + Lang(meta.Locale) + "\">\n<head>\n")
		b.WriteString(`<meta charset="utf-8">` + "\n")
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
		writeHead(&b, meta)
		b.WriteString("</head>\n<body>\n<main>\n")
		if heading != "" {
			b.WriteString("<h1>" + html.EscapeString(heading) + "</h1>\n")
		}
		if meta.Description != "" {
			b.WriteString("<p>" + html.EscapeString(meta.Description) + "</p>\n")
		}
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "\n</main>\n</body>\n</html>\n")
		return err
	})
}

// NotFound renders the crawler-facing 404 document.
func NotFound(meta Meta) templ.Component {
	meta.Robots = "noindex, nofollow"
	meta.Title = "Page not found | " + meta.SiteName
	meta.Description = "The page you are looking for does not exist."
	meta.JSONLD = nil
	return Document(meta, "Page not found", nil)
}

// ServerError renders the crawler-facing 500 document.
func ServerError(siteName string) templ.Component {
	return Document(Meta{
		Title:    "Something went wrong | " + siteName,
		Robots:   "noindex, nofollow",
		SiteName: siteName,
	}, "Something went wrong", nil)
}

// Lang converts an Open Graph locale such as "en_US" into an html lang value.
func Lang(locale string) string {
	if locale == "" {
		return "en"
	}
	if i := strings.IndexAny(locale, "_-"); i > 0 {
		return strings.ToLower(locale[:i])
	}
	return strings.ToLower(locale)
}
