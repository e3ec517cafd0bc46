package sitemeta

import (
	"encoding/xml"
	"io"
	"strconv"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// BuildSitemap converts routes into a sitemap urlset. NoIndex routes are
// excluded; duplicates collapse and "/" sorts first.
func BuildSitemap(base string, routes []Route) sitemapURLSet {
	set := sitemapURLSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, r := range NormalizeRoutes(routes) {
		if r.NoIndex {
			continue
		}
		u := sitemapURL{
			Loc:        BuildURL(base, r.Path),
			LastMod:    r.LastMod,
			ChangeFreq: r.ChangeFreq,
		}
		if r.Priority > 0 {
			u.Priority = strconv.FormatFloat(r.Priority, 'f', 1, 64)
		}
		set.URLs = append(set.URLs, u)
	}
	return set
}

// WriteSitemap writes the XML sitemap for routes to w.
func WriteSitemap(w io.Writer, base string, routes []Route) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(BuildSitemap(base, routes)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
