package sitemeta

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"
	"testing"
	"time"
)

func TestBuildSitemap(t *testing.T) {
	set := BuildSitemap("https://folio.dev", []Route{
		{Path: "/projects", ChangeFreq: "weekly", Priority: 0.8},
		{Path: "/private", NoIndex: true},
		{Path: "/", Priority: 1},
		{Path: "/projects/"},
	})
	if len(set.URLs) != 2 {
		t.Fatalf("got %d urls, want 2", len(set.URLs))
	}
	if set.URLs[0].Loc != "https://folio.dev/" || set.URLs[0].Priority != "1.0" {
		t.Errorf("URLs[0] = %+v", set.URLs[0])
	}
	if set.URLs[1].Loc != "https://folio.dev/projects" {
		t.Errorf("URLs[1] = %+v", set.URLs[1])
	}
	if set.URLs[1].Priority != "" || set.URLs[1].ChangeFreq != "" {
		t.Errorf("duplicate path should collapse to the last entry, got %+v", set.URLs[1])
	}
}

func TestWriteSitemap(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSitemap(&buf, "https://folio.dev", []Route{
		{Path: "/", Priority: 1, ChangeFreq: "weekly"},
		{Path: "/blog/a&b", LastMod: "2026-03-01"},
	})
	if err != nil {
		t.Fatalf("WriteSitemap failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") {
		t.Error("missing XML header")
	}
	for _, want := range []string{
		`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`,
		"<loc>https://folio.dev/</loc>",
		"<changefreq>weekly</changefreq>",
		"<priority>1.0</priority>",
		"<loc>https://folio.dev/blog/a&amp;b</loc>",
		"<lastmod>2026-03-01</lastmod>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("sitemap missing %q:\n%s", want, out)
		}
	}

	var parsed sitemapURLSet
	if err := xml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("sitemap is not valid XML: %v", err)
	}
	if len(parsed.URLs) != 2 {
		t.Errorf("parsed %d urls, want 2", len(parsed.URLs))
	}
}

func TestWriteRobots(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRobots(&buf, "https://folio.dev/", []string{"admin/", "", "/drafts"}); err != nil {
		t.Fatalf("WriteRobots failed: %v", err)
	}
	want := "User-agent: *\nAllow: /\nDisallow: /admin\nDisallow: /drafts\n\nSitemap: https://folio.dev/sitemap.xml\n"
	if buf.String() != want {
		t.Errorf("robots.txt =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestWriteFeed(t *testing.T) {
	cfg := SiteConfig{Name: "Folio", URL: "https://folio.dev", Description: "Work by Sam", Locale: "en_US"}
	updated := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := WriteFeed(&buf, cfg, []BlogPost{
		{Slug: "hello", Title: "Hello", Date: "2026-01-02", Summary: "First post", Tags: []string{"go"}, UpdatedAt: updated},
		{Slug: "undated", Title: "Undated"},
	})
	if err != nil {
		t.Fatalf("WriteFeed failed: %v", err)
	}
	if err := xml.Unmarshal(buf.Bytes(), new(feedDoc)); err != nil {
		t.Fatalf("feed is not valid XML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`,
		"<title>Folio</title>",
		`<atom:link href="https://folio.dev/feed.xml" rel="self" type="application/rss+xml"></atom:link>`,
		"<language>en-us</language>",
		"<lastBuildDate>Mon, 05 Jan 2026 10:00:00 +0000</lastBuildDate>",
		"<link>https://folio.dev/blog/hello</link>",
		`<guid isPermaLink="true">https://folio.dev/blog/hello</guid>`,
		"<pubDate>Fri, 02 Jan 2026 00:00:00 +0000</pubDate>",
		"<category>go</category>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("feed missing %s\n%s", want, out)
		}
	}
	if strings.Count(out, "<pubDate>") != 1 {
		t.Error("an undated post should have no pubDate")
	}
}

func TestCollectRoutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SavePost(ctx, BlogPost{Slug: "hello", Title: "Hello", Date: "2026-01-02", Published: true})
	s.SavePost(ctx, BlogPost{Slug: "draft", Title: "Draft", Date: "2026-01-03"})
	s.SavePage(ctx, PageMetadata{Path: "/about", Title: "About me", ChangeFreq: "yearly"})
	s.SavePage(ctx, PageMetadata{Path: "/uses", Priority: 0.3})
	s.SaveSEOMeta(ctx, SEOMeta{Path: "/uses", NoIndex: true})

	cfg := SiteConfig{Routes: []Route{
		{Path: "/", Priority: 1},
		{Path: "/about", Title: "About", Priority: 0.8},
	}}
	routes, err := CollectRoutes(ctx, cfg, NewMetaCache(s, time.Hour))
	if err != nil {
		t.Fatalf("CollectRoutes failed: %v", err)
	}

	byPath := make(map[string]Route)
	for _, r := range routes {
		byPath[r.Path] = r
	}
	if len(routes) != 4 {
		t.Fatalf("got %d routes, want 4: %+v", len(routes), routes)
	}
	if routes[0].Path != "/" {
		t.Errorf("routes[0] = %q, want /", routes[0].Path)
	}
	about := byPath["/about"]
	if about.Title != "About me" || about.ChangeFreq != "yearly" || about.Priority != 0.8 {
		t.Errorf("/about = %+v, page_metadata should merge over the site file", about)
	}
	if post, ok := byPath["/blog/hello"]; !ok || post.LastMod != "2026-01-02" {
		t.Errorf("/blog/hello = %+v, %v", post, ok)
	}
	if _, ok := byPath["/blog/draft"]; ok {
		t.Error("drafts must not be collected")
	}
	if !byPath["/uses"].NoIndex {
		t.Error("/uses should be marked noindex by its seo_meta row")
	}

	set := BuildSitemap("https://folio.dev", routes)
	if len(set.URLs) != 3 {
		t.Errorf("sitemap has %d urls, want 3", len(set.URLs))
	}
}
