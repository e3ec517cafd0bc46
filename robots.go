package sitemeta

import (
	"fmt"
	"io"
	"strings"
)

// WriteRobots writes robots.txt allowing everything except disallow and
// pointing crawlers at the sitemap.
func WriteRobots(w io.Writer, base string, disallow []string) error {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	for _, d := range FilterEmpty(disallow) {
		fmt.Fprintf(&b, "Disallow: %s\n", NormalizePath(d))
	}
	fmt.Fprintf(&b, "\nSitemap: %s\n", BuildURL(base, "sitemap.xml"))
	_, err := io.WriteString(w, b.String())
	return err
}
