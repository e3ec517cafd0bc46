package sitemeta

import (
	"context"
)

// CollectRoutes merges the site file routes, page_metadata rows and
// published blog posts into one normalized route list. seo_meta rows with
// noindex set mark their route NoIndex.
func CollectRoutes(ctx context.Context, cfg SiteConfig, cache *MetaCache) ([]Route, error) {
	byPath := make(map[string]Route)
	var order []string
	put := func(r Route) {
		r.Path = NormalizePath(r.Path)
		if _, ok := byPath[r.Path]; !ok {
			order = append(order, r.Path)
		}
		byPath[r.Path] = r
	}

	for _, r := range cfg.Routes {
		put(r)
	}

	pages, err := cache.Pages(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		r := byPath[NormalizePath(p.Path)]
		r.Path = p.Path
		if p.Title != "" {
			r.Title = p.Title
		}
		if p.Description != "" {
			r.Description = p.Description
		}
		if p.ChangeFreq != "" {
			r.ChangeFreq = p.ChangeFreq
		}
		if p.Priority > 0 {
			r.Priority = p.Priority
		}
		if p.LastMod != "" {
			r.LastMod = p.LastMod
		}
		put(r)
	}

	posts, err := cache.ListPosts(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		put(Route{
			Path:        p.Link,
			Title:       p.Title,
			Description: p.Summary,
			Image:       p.Image,
			ChangeFreq:  "monthly",
			Priority:    0.6,
			LastMod:     p.Date,
		})
	}

	for _, path := range order {
		m, ok, err := cache.SEOMeta(ctx, path)
		if err != nil {
			return nil, err
		}
		if ok && m.NoIndex {
			r := byPath[path]
			r.NoIndex = true
			byPath[path] = r
		}
	}

	routes := make([]Route, 0, len(order))
	for _, path := range order {
		routes = append(routes, byPath[path])
	}
	return NormalizeRoutes(routes), nil
}
