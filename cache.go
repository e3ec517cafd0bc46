package sitemeta

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MetaCache is an in-memory cache of published posts, tags, seo_meta
// overrides and page_metadata rows with TTL.
type MetaCache struct {
	mu      sync.RWMutex
	snap    *snapshot
	fetched time.Time
	ttl     time.Duration
	store   *Store
}

type snapshot struct {
	posts []BlogPost
	tags  []string
	seo   map[string]SEOMeta
	pages []PageMetadata
}

// NewMetaCache creates a MetaCache backed by the given Store.
func NewMetaCache(s *Store, ttl time.Duration) *MetaCache {
	return &MetaCache{store: s, ttl: ttl}
}

func (c *MetaCache) valid() bool {
	return c.snap != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *MetaCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

func (c *MetaCache) load(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	posts, err := c.store.ListPosts(ctx, "")
	if err != nil {
		return err
	}
	overrides, err := c.store.ListSEOMeta(ctx)
	if err != nil {
		return err
	}
	pages, err := c.store.ListPages(ctx)
	if err != nil {
		return err
	}
	seo := make(map[string]SEOMeta, len(overrides))
	for _, m := range overrides {
		seo[NormalizePath(m.Path)] = m
	}
	c.snap = &snapshot{posts: posts, tags: collectTags(posts), seo: seo, pages: pages}
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns the cached snapshot after ensuring it is fresh.
// It tries a read lock first; only takes a write lock if a reload is needed.
func (c *MetaCache) ensureLoaded(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	if c.valid() {
		snap := c.snap
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return nil, err
	}
	return c.snap, nil
}

// ListPosts returns published posts, optionally filtered by tag.
func (c *MetaCache) ListPosts(ctx context.Context, tag string) ([]BlogPost, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return snap.posts, nil
	}
	normalized := normalizeTag(tag)
	var filtered []BlogPost
	for _, p := range snap.posts {
		for _, t := range p.Tags {
			if normalizeTag(t) == normalized {
				filtered = append(filtered, p)
				break
			}
		}
	}
	return filtered, nil
}

// ListTags returns all unique tags from published posts.
func (c *MetaCache) ListTags(ctx context.Context) ([]string, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return snap.tags, nil
}

// GetPost returns a single published post by slug from the cache.
func (c *MetaCache) GetPost(ctx context.Context, slug string) (BlogPost, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return BlogPost{}, err
	}
	for _, p := range snap.posts {
		if p.Slug == slug {
			return p, nil
		}
	}
	return BlogPost{}, ErrNotFound
}

// SEOMeta returns the override for path, if any.
func (c *MetaCache) SEOMeta(ctx context.Context, path string) (SEOMeta, bool, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return SEOMeta{}, false, err
	}
	m, ok := snap.seo[NormalizePath(path)]
	return m, ok, nil
}

// Pages returns all page_metadata rows.
func (c *MetaCache) Pages(ctx context.Context) ([]PageMetadata, error) {
	snap, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return snap.pages, nil
}

// Page returns the page_metadata row for path, if any.
func (c *MetaCache) Page(ctx context.Context, path string) (PageMetadata, bool, error) {
	pages, err := c.Pages(ctx)
	if err != nil {
		return PageMetadata{}, false, err
	}
	path = NormalizePath(path)
	for _, p := range pages {
		if NormalizePath(p.Path) == path {
			return p, true, nil
		}
	}
	return PageMetadata{}, false, nil
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
