// Package markdown turns post content into the HTML body served to crawlers
// and into plain text suitable for meta descriptions.
package markdown

import (
	"context"
	"html"
	"io"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/a-h/templ"
)

var (
	reBold        = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	reItalic      = regexp.MustCompile(`\*([^*]+)\*|\b_([^_]+)_\b`)
	reInlineCode  = regexp.MustCompile("`([^`]+)`")
	reLink        = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]*)\)`)
	reImage       = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]*)\)(\{[^}]*\})?`)
	reOrderedItem = regexp.MustCompile(`^\d+\.\s+`)
	reHeading     = regexp.MustCompile(`^(#{1,6})\s+`)
	reSpace       = regexp.MustCompile(`\s+`)
	reBlockPrefix = regexp.MustCompile(`^(?:[-*+]\s+|>\s*)+`)
)

// Render returns a templ.Component that writes md as HTML.
func Render(md string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, HTML(md))
		return err
	})
}

// HTML converts md to HTML. Raw HTML in the input is escaped.
func HTML(md string) string {
	var b strings.Builder
	var open string // closing tag of the current block, "" when none
	inCode := false

	closeBlock := func() {
		if open != "" {
			b.WriteString(open)
			open = ""
		}
	}
	start := func(openTag, closeTag string) {
		if open == closeTag {
			return
		}
		closeBlock()
		b.WriteString(openTag)
		open = closeTag
	}

	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.HasPrefix(line, "```") {
			if inCode {
				b.WriteString("</code></pre>")
				inCode = false
			} else {
				closeBlock()
				b.WriteString("<pre><code>")
				inCode = true
			}
			continue
		}
		if inCode {
			b.WriteString(html.EscapeString(line) + "\n")
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			closeBlock()
		case trimmed == "---" || trimmed == "***":
			closeBlock()
			b.WriteString("<hr/>")
		case reHeading.MatchString(trimmed):
			closeBlock()
			level := len(reHeading.FindStringSubmatch(trimmed)[1])
			tag := "h" + string(rune('0'+level))
			b.WriteString("<" + tag + ">" + Inline(reHeading.ReplaceAllString(trimmed, "")) + "</" + tag + ">")
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			start("<ul>", "</ul>")
			b.WriteString("<li>" + Inline(trimmed[2:]) + "</li>")
		case reOrderedItem.MatchString(trimmed):
			start("<ol>", "</ol>")
			b.WriteString("<li>" + Inline(reOrderedItem.ReplaceAllString(trimmed, "")) + "</li>")
		case strings.HasPrefix(trimmed, ">"):
			start("<blockquote>", "</blockquote>")
			b.WriteString(Inline(strings.TrimSpace(trimmed[1:])) + " ")
		default:
			if open == "</p>" {
				b.WriteString(" ")
			}
			start("<p>", "</p>")
			b.WriteString(Inline(trimmed))
		}
	}
	if inCode {
		b.WriteString("</code></pre>")
	}
	closeBlock()
	return b.String()
}

// Inline escapes s and applies inline formatting: code, images, links,
// bold and italic.
func Inline(s string) string {
	var codes []string
	s = reInlineCode.ReplaceAllStringFunc(s, func(m string) string {
		codes = append(codes, "<code>"+html.EscapeString(reInlineCode.FindStringSubmatch(m)[1])+"</code>")
		return "\x00" + string(rune('A'+len(codes)-1)) + "\x00"
	})
	s = html.EscapeString(s)
	s = reImage.ReplaceAllStringFunc(s, func(m string) string {
		match := reImage.FindStringSubmatch(m)
		src := SafeURL(match[2])
		if src == "" {
			return match[1]
		}
		return `<img src="` + src + `" alt="` + match[1] + `" loading="lazy"/>`
	})
	s = reLink.ReplaceAllStringFunc(s, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		return `<a href="` + href + `">` + match[1] + `</a>`
	})
	s = outsideTags(s, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1$2</strong>")
		return reItalic.ReplaceAllString(seg, "<em>$1$2</em>")
	})
	for i, c := range codes {
		s = strings.Replace(s, "\x00"+string(rune('A'+i))+"\x00", c, 1)
	}
	return s
}

// outsideTags applies fn to the text between HTML tags only, so formatting
// never rewrites attribute values.
func outsideTags(s string, fn func(string) string) string {
	var b strings.Builder
	for s != "" {
		lt := strings.IndexByte(s, '<')
		if lt < 0 {
			b.WriteString(fn(s))
			break
		}
		b.WriteString(fn(s[:lt]))
		gt := strings.IndexByte(s[lt:], '>')
		if gt < 0 {
			b.WriteString(s[lt:])
			break
		}
		b.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return b.String()
}

// SafeURL returns an attribute-escaped URL when it is relative or uses an
// http, https or mailto scheme, and "" otherwise.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		if strings.HasPrefix(val, "//") {
			return ""
		}
		return html.EscapeString(val)
	}
	u, err := url.Parse(val)
	if err != nil || u.Scheme == "" {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return html.EscapeString(val)
	}
	return ""
}

// PlainText strips markdown syntax and collapses whitespace. Code blocks,
// images and horizontal rules are dropped; link text is kept.
func PlainText(md string) string {
	var parts []string
	inCode := false
	for _, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") {
			inCode = !inCode
			continue
		}
		if inCode || line == "---" || line == "***" {
			continue
		}
		line = reHeading.ReplaceAllString(line, "")
		line = reOrderedItem.ReplaceAllString(line, "")
		line = reBlockPrefix.ReplaceAllString(line, "")
		line = reImage.ReplaceAllString(line, "")
		line = reLink.ReplaceAllString(line, "$1")
		line = reInlineCode.ReplaceAllString(line, "$1")
		line = reBold.ReplaceAllString(line, "$1$2")
		line = reItalic.ReplaceAllString(line, "$1$2")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.TrimSpace(reSpace.ReplaceAllString(strings.Join(parts, " "), " "))
}

// Truncate shortens s to at most max runes, cutting at a word boundary and
// appending an ellipsis when anything was removed.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	cut := string(r[:max-1])
	if !unicode.IsSpace(r[max-1]) {
		if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
			cut = cut[:i]
		}
	}
	return strings.TrimRight(cut, " ,.;:-") + "…"
}
