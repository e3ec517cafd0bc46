// Package metacheck validates the SEO markup of HTML documents and verifies
// live pages the way a crawler sees them.
package metacheck

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Severity of an Issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Length limits applied by Check, in runes.
const (
	MaxTitle       = 60
	MaxDescription = 160
	MinDescription = 50
)

// Issue is one problem found in a document.
type Issue struct {
	Severity Severity `json:"severity"`
	Tag      string   `json:"tag"`
	Message  string   `json:"message"`
}

// Report is the result of checking one document.
type Report struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Canonical   string  `json:"canonical"`
	Issues      []Issue `json:"issues"`
}

// OK reports whether the document has no errors. Warnings are allowed.
func (r Report) OK() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Errors returns only the error-level issues.
func (r Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Expect holds optional values the document should carry.
type Expect struct {
	Title       string
	Description string
	Canonical   string
}

// required lists tags every page must have, as selector and label.
var required = []struct{ selector, tag string }{
	{`meta[property="og:title"]`, "og:title"},
	{`meta[property="og:description"]`, "og:description"},
	{`meta[property="og:image"]`, "og:image"},
	{`meta[property="og:url"]`, "og:url"},
	{`meta[name="twitter:card"]`, "twitter:card"},
}

// unique lists tags that must appear at most once.
var unique = []struct{ selector, tag string }{
	{"title", "title"},
	{`meta[name="description"]`, "description"},
	{`link[rel="canonical"]`, "canonical"},
	{`meta[name="robots"]`, "robots"},
	{`meta[property="og:title"]`, "og:title"},
	{`meta[property="og:url"]`, "og:url"},
	{`meta[property="og:image"]`, "og:image"},
}

// Check parses html and reports missing, malformed or suspicious SEO tags.
func Check(html string, expect Expect) (Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Report{}, fmt.Errorf("parse html: %w", err)
	}
	var r Report
	add := func(sev Severity, tag, format string, args ...any) {
		r.Issues = append(r.Issues, Issue{Severity: sev, Tag: tag, Message: fmt.Sprintf(format, args...)})
	}

	head := doc.Find("head")
	r.Title = strings.TrimSpace(head.Find("title").First().Text())
	r.Description = content(head, `meta[name="description"]`)
	r.Canonical, _ = head.Find(`link[rel="canonical"]`).First().Attr("href")

	if r.Title == "" {
		add(SeverityError, "title", "missing <title>")
	} else if n := utf8.RuneCountInString(r.Title); n > MaxTitle {
		add(SeverityWarning, "title", "title is %d characters, recommended max %d", n, MaxTitle)
	}

	if r.Description == "" {
		add(SeverityError, "description", "missing meta description")
	} else {
		n := utf8.RuneCountInString(r.Description)
		if n > MaxDescription {
			add(SeverityWarning, "description", "description is %d characters, recommended max %d", n, MaxDescription)
		}
		if n < MinDescription {
			add(SeverityWarning, "description", "description is %d characters, recommended min %d", n, MinDescription)
		}
	}

	if r.Canonical == "" {
		add(SeverityError, "canonical", "missing canonical link")
	} else if u, err := url.Parse(r.Canonical); err != nil || !u.IsAbs() {
		add(SeverityError, "canonical", "canonical %q is not an absolute URL", r.Canonical)
	}

	for _, req := range required {
		if content(head, req.selector) == "" {
			add(SeverityError, req.tag, "missing %s", req.tag)
		}
	}
	for _, u := range unique {
		if n := head.Find(u.selector).Length(); n > 1 {
			add(SeverityWarning, u.tag, "%s appears %d times", u.tag, n)
		}
	}

	if ogURL := content(head, `meta[property="og:url"]`); ogURL != "" && r.Canonical != "" && ogURL != r.Canonical {
		add(SeverityWarning, "og:url", "og:url %q differs from canonical %q", ogURL, r.Canonical)
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(s.Text()), &v); err != nil {
			add(SeverityError, "ld+json", "structured data block %d is not valid JSON: %v", i+1, err)
		}
	})

	if expect.Title != "" && r.Title != expect.Title {
		add(SeverityWarning, "title", "title %q, expected %q", r.Title, expect.Title)
	}
	if expect.Description != "" && r.Description != expect.Description {
		add(SeverityWarning, "description", "description %q, expected %q", r.Description, expect.Description)
	}
	if expect.Canonical != "" && r.Canonical != expect.Canonical {
		add(SeverityWarning, "canonical", "canonical %q, expected %q", r.Canonical, expect.Canonical)
	}
	return r, nil
}

func content(s *goquery.Selection, selector string) string {
	v, _ := s.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}
