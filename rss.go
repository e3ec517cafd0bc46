package sitemeta

import (
	"encoding/xml"
	"io"
	"strings"
	"time"
)

const atomNS = "http://www.w3.org/2005/Atom"

type feedDoc struct {
	XMLName xml.Name    `xml:"rss"`
	Version string      `xml:"version,attr"`
	Atom    string      `xml:"xmlns:atom,attr"`
	Channel feedChannel `xml:"channel"`
}

type feedChannel struct {
	Title         string     `xml:"title"`
	Link          string     `xml:"link"`
	Self          feedLink   `xml:"atom:link"`
	Description   string     `xml:"description"`
	Language      string     `xml:"language,omitempty"`
	LastBuildDate string     `xml:"lastBuildDate,omitempty"`
	Items         []feedItem `xml:"item"`
}

type feedLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type feedItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        feedGUID `xml:"guid"`
	Categories  []string `xml:"category"`
}

type feedGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink bool   `xml:"isPermaLink,attr"`
}

// WriteFeed writes the RSS 2.0 feed of posts to w. Items keep the order of
// posts; lastBuildDate is the newest post update.
func WriteFeed(w io.Writer, cfg SiteConfig, posts []BlogPost) error {
	ch := feedChannel{
		Title:       cfg.Name,
		Link:        BuildURL(cfg.URL),
		Self:        feedLink{Href: BuildURL(cfg.URL, "feed.xml"), Rel: "self", Type: "application/rss+xml"},
		Description: cfg.Description,
		Language:    strings.ToLower(strings.ReplaceAll(cfg.Locale, "_", "-")),
		Items:       make([]feedItem, 0, len(posts)),
	}

	var newest time.Time
	for _, p := range posts {
		link := BuildURL(cfg.URL, "blog", p.Slug)
		item := feedItem{
			Title:       p.Title,
			Link:        link,
			Description: p.Summary,
			GUID:        feedGUID{Value: link, IsPermaLink: true},
			Categories:  p.Tags,
		}
		if t, err := time.Parse("2006-01-02", p.Date); err == nil {
			item.PubDate = t.Format(time.RFC1123Z)
		}
		if p.UpdatedAt.After(newest) {
			newest = p.UpdatedAt
		}
		ch.Items = append(ch.Items, item)
	}
	if !newest.IsZero() {
		ch.LastBuildDate = newest.UTC().Format(time.RFC1123Z)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(feedDoc{Version: "2.0", Atom: atomNS, Channel: ch})
}
