package sitemeta

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/eringen/sitemeta/caption"
	"github.com/eringen/sitemeta/markdown"
	"github.com/eringen/sitemeta/views"
)

// MaxDescriptionLength is the longest meta description emitted, in runes.
const MaxDescriptionLength = 160

// Resolver computes the <head> metadata for a route by layering, lowest to
// highest precedence: site defaults, the site file route, the page_metadata
// row, the blog post and finally the seo_meta override.
type Resolver struct {
	cache  *MetaCache
	config func() SiteConfig
}

// NewResolver creates a Resolver. config is called on every resolution so
// that a reloaded site file takes effect immediately.
func NewResolver(cache *MetaCache, config func() SiteConfig) *Resolver {
	return &Resolver{cache: cache, config: config}
}

type layer struct {
	title, description, image, imageAlt, keywords, ogType string
	noindex                                                bool
}

func (l *layer) merge(title, description, image string) {
	if title != "" {
		l.title = title
	}
	if description != "" {
		l.description = description
	}
	if image != "" {
		l.image = image
	}
}

// Resolve returns the metadata for path. For an unknown blog slug it returns
// site-level metadata together with ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, path string) (views.Meta, error) {
	path = NormalizePath(path)
	cfg := r.config()
	l := layer{description: cfg.Description, ogType: "website"}

	for _, rt := range cfg.Routes {
		if rt.Path == path {
			l.merge(rt.Title, rt.Description, rt.Image)
			l.noindex = rt.NoIndex
			break
		}
	}

	page, ok, err := r.cache.Page(ctx, path)
	if err != nil {
		return views.Meta{}, err
	}
	if ok {
		l.merge(page.Title, page.Description, "")
	}

	var post *BlogPost
	if slug, ok := BlogSlug(path); ok {
		p, err := r.cache.GetPost(ctx, slug)
		if errors.Is(err, ErrNotFound) {
			return r.build(cfg, path, layer{description: cfg.Description, ogType: "website"}, nil), ErrNotFound
		}
		if err != nil {
			return views.Meta{}, err
		}
		post = &p
		desc := p.Summary
		if desc == "" {
			desc = p.Content
		}
		l.merge(p.Title, desc, p.Image)
		l.keywords = strings.Join(p.Tags, ", ")
		l.ogType = "article"
	}

	override, ok, err := r.cache.SEOMeta(ctx, path)
	if err != nil {
		return views.Meta{}, err
	}
	if ok {
		l.merge(override.Title, override.Description, override.Image)
		if override.ImageAlt != "" {
			l.imageAlt = override.ImageAlt
		}
		if override.Keywords != "" {
			l.keywords = override.Keywords
		}
		if override.OGType != "" {
			l.ogType = override.OGType
		}
		l.noindex = l.noindex || override.NoIndex
	}

	if path == "/" && l.keywords == "" {
		tags, err := r.cache.ListTags(ctx)
		if err != nil {
			return views.Meta{}, err
		}
		l.keywords = strings.Join(tags, ", ")
	}

	return r.build(cfg, path, l, post), nil
}

func (r *Resolver) build(cfg SiteConfig, path string, l layer, post *BlogPost) views.Meta {
	m := views.Meta{
		Title:       FormatTitle(l.title, cfg.Name),
		Description: markdown.Truncate(markdown.PlainText(l.description), MaxDescriptionLength),
		Canonical:   BuildURL(cfg.URL, path),
		Type:        l.ogType,
		Keywords:    l.keywords,
		Robots:      "index, follow",
		TwitterCard: "summary_large_image",
		TwitterSite: cfg.TwitterHandle,
		Locale:      cfg.Locale,
		SiteName:    cfg.Name,
	}
	if l.noindex {
		m.Robots = "noindex, nofollow"
	}

	image := l.image
	if image == "" {
		image = cfg.DefaultImage
	}
	if image == "" {
		cardTitle := l.title
		if cardTitle == "" {
			cardTitle = cfg.Name
		}
		image = BuildURL(cfg.URL, "og-image") + "?title=" + url.QueryEscape(cardTitle)
	}
	m.Image = AbsoluteURL(BuildURL(cfg.URL), image)
	m.ImageAlt = l.imageAlt
	if m.ImageAlt == "" {
		m.ImageAlt = caption.Default(caption.Input{Title: l.title, SiteName: cfg.Name})
	}

	switch {
	case post != nil:
		m.JSONLD = []string{BlogPostingJsonLD(*post, m.Image, cfg)}
	case path == "/":
		m.JSONLD = FilterEmpty([]string{WebsiteJsonLD(cfg), PersonJsonLD(cfg)})
	default:
		m.JSONLD = []string{WebPageJsonLD(m.Title, m.Description, m.Canonical, cfg)}
	}
	return m
}

// FormatTitle combines a page title with the site name.
func FormatTitle(page, site string) string {
	page = strings.TrimSpace(page)
	switch {
	case page == "" || page == site:
		return site
	case site == "":
		return page
	}
	return page + " | " + site
}

// BlogSlug extracts the slug from a /blog/<slug> path.
func BlogSlug(path string) (string, bool) {
	rest, ok := strings.CutPrefix(NormalizePath(path), "/blog/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
